package operators

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/process"
)

// single 只作用于一个方向的算子的公共部分.
type single struct {
	direction int
	dims      int
	mapT      *TripleBand
}

func (s *single) Directions() int { return s.dims }

func (s *single) Apply(r []float64) ([]float64, error) { return s.mapT.Apply(r) }

func (s *single) ApplyMixed(r []float64) ([]float64, error) {
	if err := checkRhs(r, s.mapT.Size()); err != nil {
		return nil, err
	}
	return zeros(len(r)), nil
}

func (s *single) ApplyDirection(direction int, r []float64) ([]float64, error) {
	if err := checkDirection(direction, s.dims); err != nil {
		return nil, err
	}
	if direction == s.direction {
		return s.mapT.Apply(r)
	}
	if err := checkRhs(r, s.mapT.Size()); err != nil {
		return nil, err
	}
	return zeros(len(r)), nil
}

func (s *single) SolveSplitting(direction int, r []float64, a float64) ([]float64, error) {
	if err := checkDirection(direction, s.dims); err != nil {
		return nil, err
	}
	if direction == s.direction {
		return s.mapT.SolveSplitting(r, a, 1)
	}
	if err := checkRhs(r, s.mapT.Size()); err != nil {
		return nil, err
	}
	return append([]float64(nil), r...), nil
}

// Preconditioner 在算子自身的方向上求解 (I - dt·L) x = r.
func (s *single) Preconditioner(r []float64, dt float64) ([]float64, error) {
	return s.mapT.SolveSplitting(r, -dt, 1)
}

func (s *single) ToMatrixDecomp() []*mat.Dense {
	return []*mat.Dense{s.mapT.ToMatrix()}
}

// BlackScholesOp 对数价格坐标下的 Black-Scholes 算子:
//
//	L = (r - q - σ²/2) ∂x + σ²/2 ∂xx - r
type BlackScholesOp struct {
	single
	x        []float64
	dx, dxx  *TripleBand
	rTS, qTS process.YieldCurve
	vol      process.BlackVol
	localVol process.LocalVol
	strike   float64
}

// NewBlackScholesOp 在 mesher 的 direction 方向上构造算子. strike 用于读取隐含波动率.
func NewBlackScholesOp(m mesher.Mesher, p *process.BlackScholes, strike float64, direction int) (*BlackScholesOp, error) {
	if err := checkDirection(direction, m.Layout().Dimensions()); err != nil {
		return nil, err
	}
	return &BlackScholesOp{
		single: single{
			direction: direction,
			dims:      m.Layout().Dimensions(),
			mapT:      NewTripleBand(direction, m),
		},
		x:        m.Locations(direction),
		dx:       FirstDerivative(direction, m),
		dxx:      SecondDerivative(direction, m),
		rTS:      p.RiskFreeRate(),
		qTS:      p.DividendYield(),
		vol:      p.BlackVolatility(),
		localVol: p.LocalVolatility(),
		strike:   strike,
	}, nil
}

// forwardVariance [t1, t2] 上的年化远期方差.
func forwardVariance(vol process.BlackVol, t1, t2, strike float64) float64 {
	if t2-t1 > 1e-12 {
		return vol.BlackForwardVariance(t1, t2, strike) / (t2 - t1)
	}
	s := vol.BlackVol(t1, strike)
	return s * s
}

func (op *BlackScholesOp) SetTime(t1, t2 float64) error {
	r := op.rTS.ForwardRate(t1, t2)
	q := op.qTS.ForwardRate(t1, t2)

	if op.localVol != nil {
		tm := 0.5 * (t1 + t2)
		n := len(op.x)
		v := make([]float64, n)
		drift := make([]float64, n)
		for i, x := range op.x {
			sigma := op.localVol.LocalVol(tm, math.Exp(x))
			v[i] = 0.5 * sigma * sigma
			drift[i] = r - q - v[i]
		}
		dxx, err := op.dxx.Mult(v)
		if err != nil {
			return err
		}
		return op.mapT.Axpyb(drift, op.dx, dxx, []float64{-r})
	}

	v := forwardVariance(op.vol, t1, t2, op.strike)
	dxx, err := op.dxx.Mult([]float64{0.5 * v})
	if err != nil {
		return err
	}
	return op.mapT.Axpyb([]float64{r - q - 0.5*v}, op.dx, dxx, []float64{-r})
}

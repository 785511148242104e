package operators

import (
	"encoding/json"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

// VarianceTransform Heston 方差维度使用的坐标.
type VarianceTransform int

const (
	// PlainVariance 方差 v 本身.
	PlainVariance VarianceTransform = iota
	// LogVariance y = ln v.
	LogVariance
)

func (t VarianceTransform) String() string {
	if t == LogVariance {
		return "log"
	}
	return "plain"
}

// ParseVarianceTransform 解析 "plain" / "log".
func ParseVarianceTransform(s string) (VarianceTransform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain":
		return PlainVariance, nil
	case "log":
		return LogVariance, nil
	}
	return PlainVariance, xerrors.Derive(xerrors.ErrInvalidArgument, "unknown variance transform %q", s)
}

func (t VarianceTransform) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *VarianceTransform) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseVarianceTransform(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// varianceValues 方差维度坐标还原为方差.
func varianceValues(m mesher.Mesher, direction int, transform VarianceTransform) []float64 {
	loc := m.Locations(direction)
	v := make([]float64, len(loc))
	for i, y := range loc {
		if transform == LogVariance {
			v[i] = math.Exp(y)
		} else {
			v[i] = y
		}
	}
	return v
}

// varianceGenerator 方差方向上不含贴现的生成元.
//
//	plain: σ²v/2 ∂vv + κ(θ - v) ∂v
//	log:   σ²e^{-y}/2 ∂yy + ((κθ - σ²/2)e^{-y} - κ) ∂y
func varianceGenerator(m mesher.Mesher, direction int, p *process.Heston, transform VarianceTransform) (*TripleBand, error) {
	kappa, theta, sigma := p.Kappa(), p.Theta(), p.Sigma()
	v := varianceValues(m, direction, transform)
	n := len(v)
	diffusion := make([]float64, n)
	drift := make([]float64, n)
	for i := range v {
		if transform == LogVariance {
			diffusion[i] = 0.5 * sigma * sigma / v[i]
			drift[i] = (kappa*theta-0.5*sigma*sigma)/v[i] - kappa
		} else {
			diffusion[i] = 0.5 * sigma * sigma * v[i]
			drift[i] = kappa * (theta - v[i])
		}
	}
	dyy, err := SecondDerivative(direction, m).Mult(diffusion)
	if err != nil {
		return nil, err
	}
	dy, err := FirstDerivative(direction, m).Mult(drift)
	if err != nil {
		return nil, err
	}
	return dyy.Add(dy)
}

// HestonOp Heston 模型算子，方向 0 为对数价格，方向 1 为方差坐标.
// 贴现项 -r 平分到两个方向.
type HestonOp struct {
	mesher    mesher.Mesher
	rTS, qTS  process.YieldCurve
	transform VarianceTransform

	// 0.5·v
	halfVariance []float64
	dx, dxx      *TripleBand
	dyMap        *TripleBand
	dxyMap       *NinePoint
	mapX, mapY   *TripleBand
}

// NewHestonOp 构造 Heston 算子.
func NewHestonOp(m mesher.Mesher, p *process.Heston, transform VarianceTransform) (*HestonOp, error) {
	if m.Layout().Dimensions() != 2 {
		return nil, errDims("heston", 2, m.Layout().Dimensions())
	}
	v := varianceValues(m, 1, transform)
	half := make([]float64, len(v))
	for i := range v {
		half[i] = 0.5 * v[i]
	}
	dxx, err := SecondDerivative(0, m).Mult(half)
	if err != nil {
		return nil, err
	}
	dyMap, err := varianceGenerator(m, 1, p, transform)
	if err != nil {
		return nil, err
	}
	mixed, err := MixedDerivative(0, 1, m)
	if err != nil {
		return nil, err
	}
	corr := make([]float64, len(v))
	for i := range v {
		if transform == LogVariance {
			corr[i] = p.Rho() * p.Sigma()
		} else {
			corr[i] = p.Rho() * p.Sigma() * v[i]
		}
	}
	dxyMap, err := mixed.Mult(corr)
	if err != nil {
		return nil, err
	}
	return &HestonOp{
		mesher:       m,
		rTS:          p.RiskFreeRate(),
		qTS:          p.DividendYield(),
		transform:    transform,
		halfVariance: half,
		dx:           FirstDerivative(0, m),
		dxx:          dxx,
		dyMap:        dyMap,
		dxyMap:       dxyMap,
		mapX:         NewTripleBand(0, m),
		mapY:         NewTripleBand(1, m),
	}, nil
}

func (op *HestonOp) Directions() int { return 2 }

func (op *HestonOp) SetTime(t1, t2 float64) error {
	r := op.rTS.ForwardRate(t1, t2)
	q := op.qTS.ForwardRate(t1, t2)
	drift := make([]float64, len(op.halfVariance))
	for i, hv := range op.halfVariance {
		drift[i] = r - q - hv
	}
	if err := op.mapX.Axpyb(drift, op.dx, op.dxx, []float64{-0.5 * r}); err != nil {
		return err
	}
	return op.mapY.Axpyb(nil, op.dyMap, op.dyMap, []float64{-0.5 * r})
}

func (op *HestonOp) Apply(r []float64) ([]float64, error) {
	return applyAll(r, op.mapX, op.mapY, op.dxyMap)
}

func (op *HestonOp) ApplyMixed(r []float64) ([]float64, error) { return op.dxyMap.Apply(r) }

func (op *HestonOp) ApplyDirection(direction int, r []float64) ([]float64, error) {
	switch direction {
	case 0:
		return op.mapX.Apply(r)
	case 1:
		return op.mapY.Apply(r)
	}
	return nil, checkDirection(direction, 2)
}

func (op *HestonOp) SolveSplitting(direction int, r []float64, a float64) ([]float64, error) {
	switch direction {
	case 0:
		return op.mapX.SolveSplitting(r, a, 1)
	case 1:
		return op.mapY.SolveSplitting(r, a, 1)
	}
	return nil, checkDirection(direction, 2)
}

// Preconditioner 只用对数价格方向.
func (op *HestonOp) Preconditioner(r []float64, dt float64) ([]float64, error) {
	return op.SolveSplitting(0, r, -dt)
}

func (op *HestonOp) ToMatrixDecomp() []*mat.Dense {
	return []*mat.Dense{op.mapX.ToMatrix(), op.mapY.ToMatrix(), op.dxyMap.ToMatrix()}
}

// Transform 方差坐标.
func (op *HestonOp) Transform() VarianceTransform { return op.transform }

package operators

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

// ValidateCorrelation 校验相关系数矩阵: n×n、对称、单位对角、|ρ| ≤ 1 且半正定.
func ValidateCorrelation(rho [][]float64, n int) (*mat.SymDense, error) {
	if len(rho) != n {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "correlation matrix has %d rows, expected %d", len(rho), n)
	}
	for i := range rho {
		if len(rho[i]) != n {
			return nil, xerrors.Derive(xerrors.ErrNotSquare, "correlation row %d has %d columns, expected %d", i, len(rho[i]), n)
		}
	}
	sym := mat.NewSymDense(n, nil)
	for i := range rho {
		for j := range rho[i] {
			v := rho[i][j]
			switch {
			case i == j && math.Abs(v-1) > 1e-12:
				return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "correlation diagonal (%d,%d) is %g", i, j, v)
			case math.Abs(v) > 1 || math.IsNaN(v):
				return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "correlation (%d,%d) = %g outside [-1, 1]", i, j, v)
			case math.Abs(v-rho[j][i]) > 1e-12:
				return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "correlation matrix is not symmetric at (%d,%d)", i, j)
			}
			if j >= i {
				sym.SetSym(i, j, v)
			}
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return nil, xerrors.Derive(xerrors.ErrNotPositiveSemiDefinite, "eigen decomposition of correlation matrix failed")
	}
	for _, ev := range eig.Values(nil) {
		if ev < -1e-10 {
			return nil, xerrors.Derive(xerrors.ErrNotPositiveSemiDefinite, "correlation matrix has negative eigenvalue %g", ev)
		}
	}
	return sym, nil
}

// NdBlackScholesOp n 个相关资产的对数价格 Black-Scholes 算子.
// 方向 i 的贴现项为 -r/n，交叉项系数 ρ_ij σ_i σ_j.
type NdBlackScholesOp struct {
	mesher    mesher.Mesher
	processes []*process.BlackScholes
	rho       *mat.SymDense
	strikes   []float64

	dx, dxx []*TripleBand
	maps    []*TripleBand
	pairs   [][2]int
	mixed   []*NinePoint
	corrMap []*NinePoint
}

// NewNdBlackScholesOp mesher 的第 i 维对应 processes[i]. strikes 用于读取各资产的隐含波动率，
// 可为空.
func NewNdBlackScholesOp(m mesher.Mesher, processes []*process.BlackScholes, rho [][]float64, strikes []float64) (*NdBlackScholesOp, error) {
	n := len(processes)
	if n == 0 || m.Layout().Dimensions() != n {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "%d processes on a %d-d mesher", n, m.Layout().Dimensions())
	}
	if len(strikes) != 0 && len(strikes) != n {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "%d strikes for %d assets", len(strikes), n)
	}
	sym, err := ValidateCorrelation(rho, n)
	if err != nil {
		return nil, err
	}
	op := &NdBlackScholesOp{
		mesher:    m,
		processes: processes,
		rho:       sym,
		strikes:   strikes,
		dx:        make([]*TripleBand, n),
		dxx:       make([]*TripleBand, n),
		maps:      make([]*TripleBand, n),
	}
	for i := 0; i < n; i++ {
		op.dx[i] = FirstDerivative(i, m)
		op.dxx[i] = SecondDerivative(i, m)
		op.maps[i] = NewTripleBand(i, m)
		for j := i + 1; j < n; j++ {
			md, err := MixedDerivative(i, j, m)
			if err != nil {
				return nil, err
			}
			op.pairs = append(op.pairs, [2]int{i, j})
			op.mixed = append(op.mixed, md)
		}
	}
	op.corrMap = make([]*NinePoint, len(op.mixed))
	return op, nil
}

func (op *NdBlackScholesOp) Directions() int { return len(op.processes) }

func (op *NdBlackScholesOp) strike(i int) float64 {
	if len(op.strikes) == 0 {
		return op.processes[i].X0()
	}
	return op.strikes[i]
}

func (op *NdBlackScholesOp) SetTime(t1, t2 float64) error {
	n := len(op.processes)
	r := op.processes[0].RiskFreeRate().ForwardRate(t1, t2)
	sigma := make([]float64, n)
	for i, p := range op.processes {
		ri := p.RiskFreeRate().ForwardRate(t1, t2)
		q := p.DividendYield().ForwardRate(t1, t2)
		v := forwardVariance(p.BlackVolatility(), t1, t2, op.strike(i))
		sigma[i] = math.Sqrt(v)
		dxx, err := op.dxx[i].Mult([]float64{0.5 * v})
		if err != nil {
			return err
		}
		if err := op.maps[i].Axpyb([]float64{ri - q - 0.5*v}, op.dx[i], dxx, []float64{-r / float64(n)}); err != nil {
			return err
		}
	}
	for k, pair := range op.pairs {
		c := op.rho.At(pair[0], pair[1]) * sigma[pair[0]] * sigma[pair[1]]
		cm, err := op.mixed[k].Mult([]float64{c})
		if err != nil {
			return err
		}
		op.corrMap[k] = cm
	}
	return nil
}

func (op *NdBlackScholesOp) Apply(r []float64) ([]float64, error) {
	out, err := op.ApplyMixed(r)
	if err != nil {
		return nil, err
	}
	for _, m := range op.maps {
		y, err := m.Apply(r)
		if err != nil {
			return nil, err
		}
		sum(out, y)
	}
	return out, nil
}

func (op *NdBlackScholesOp) ApplyMixed(r []float64) ([]float64, error) {
	if err := checkRhs(r, op.mesher.Layout().Size()); err != nil {
		return nil, err
	}
	out := zeros(len(r))
	for _, cm := range op.corrMap {
		if cm == nil {
			continue
		}
		y, err := cm.Apply(r)
		if err != nil {
			return nil, err
		}
		sum(out, y)
	}
	return out, nil
}

func (op *NdBlackScholesOp) ApplyDirection(direction int, r []float64) ([]float64, error) {
	if err := checkDirection(direction, len(op.maps)); err != nil {
		return nil, err
	}
	return op.maps[direction].Apply(r)
}

func (op *NdBlackScholesOp) SolveSplitting(direction int, r []float64, a float64) ([]float64, error) {
	if err := checkDirection(direction, len(op.maps)); err != nil {
		return nil, err
	}
	return op.maps[direction].SolveSplitting(r, a, 1)
}

// Preconditioner 第一个资产方向上的隐式求解.
func (op *NdBlackScholesOp) Preconditioner(r []float64, dt float64) ([]float64, error) {
	return op.SolveSplitting(0, r, -dt)
}

func (op *NdBlackScholesOp) ToMatrixDecomp() []*mat.Dense {
	out := make([]*mat.Dense, 0, len(op.maps)+len(op.corrMap))
	for _, m := range op.maps {
		out = append(out, m.ToMatrix())
	}
	for _, cm := range op.corrMap {
		if cm != nil {
			out = append(out, cm.ToMatrix())
		}
	}
	return out
}

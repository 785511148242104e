package operators

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/xerrors"
)

// Composite 按方向分解的模型算子 L = Σ L_i + L_mixed，供 ADI 格式使用.
type Composite interface {
	// Directions 可分裂的方向数.
	Directions() int
	// SetTime 刷新 [t1, t2] 上的时变系数.
	SetTime(t1, t2 float64) error
	Apply(r []float64) ([]float64, error)
	ApplyMixed(r []float64) ([]float64, error)
	ApplyDirection(direction int, r []float64) ([]float64, error)
	// SolveSplitting 求解 (I + a·L_direction) x = r.
	SolveSplitting(direction int, r []float64, a float64) ([]float64, error)
	// Preconditioner 近似求逆 (I - dt·L_0)，供迭代求解器使用.
	Preconditioner(r []float64, dt float64) ([]float64, error)
	// ToMatrixDecomp 各方向算子及 (若有) 交叉项的稠密矩阵，仅用于测试与诊断.
	ToMatrixDecomp() []*mat.Dense
}

func zeros(n int) []float64 { return make([]float64, n) }

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func checkRhs(r []float64, n int) error {
	if len(r) != n {
		return xerrors.Derive(xerrors.ErrDimensionMismatch, "rhs has length %d, grid size is %d", len(r), n)
	}
	return nil
}

func checkDirection(direction, n int) error {
	if direction < 0 || direction >= n {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "direction %d out of range [0, %d)", direction, n)
	}
	return nil
}

// sum 逐点相加，结果写入 a.
func sum(a []float64, bs ...[]float64) []float64 {
	for _, b := range bs {
		for i := range a {
			a[i] += b[i]
		}
	}
	return a
}

func applyAll(r []float64, ops ...interface {
	Apply([]float64) ([]float64, error)
}) ([]float64, error) {
	out := zeros(len(r))
	for _, op := range ops {
		y, err := op.Apply(r)
		if err != nil {
			return nil, err
		}
		sum(out, y)
	}
	return out, nil
}

// must 仅用于构造期形状已知一致的代数运算.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func errDims(name string, want, got int) error {
	return xerrors.Derive(xerrors.ErrDimensionMismatch, "%s operator needs a %d-d mesher, got %d", name, want, got)
}

func checkCorrelation(rho float64) error {
	if !(rho >= -1 && rho <= 1) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "correlation %g outside [-1, 1]", rho)
	}
	return nil
}

func sqrtPositive(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Sqrt(x)
}

package solver

import (
	"context"
	"math"

	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/xerrors"
)

// Greeks 以现货为自变量的价格与敏感度.
type Greeks struct {
	Value float64 `json:"value"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
}

// spotGreeks 对数价格坐标下的导数换算到现货: Δ = V_x/S，Γ = (V_xx - V_x)/S².
func spotGreeks(spot, value, vx, vxx, theta float64) Greeks {
	return Greeks{
		Value: value,
		Delta: vx / spot,
		Gamma: (vxx - vx) / (spot * spot),
		Theta: theta,
	}
}

// BlackScholesSolver 一维对数价格网格上的 Black-Scholes 求解器.
type BlackScholesSolver struct {
	solver *Solver1d
	spot   float64
}

// NewBlackScholesSolver strike 用于从波动率曲面取前向方差.
func NewBlackScholesSolver(p *process.BlackScholes, strike float64, desc Desc, schemeDesc scheme.Desc, opts ...Option) (*BlackScholesSolver, error) {
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidProcess, "nil Black-Scholes process")
	}
	if err := checkDims(desc, 1); err != nil {
		return nil, err
	}
	op, err := operators.NewBlackScholesOp(desc.Mesher, p, strike, 0)
	if err != nil {
		return nil, err
	}
	s, err := NewSolver1d(desc, op, schemeDesc, opts...)
	if err != nil {
		return nil, err
	}
	return &BlackScholesSolver{solver: s, spot: p.X0()}, nil
}

// Calculate 在过程现货处求值.
func (s *BlackScholesSolver) Calculate(ctx context.Context) (Greeks, error) {
	sol, err := s.solver.Solve(ctx)
	if err != nil {
		return Greeks{}, err
	}
	return blackScholesGreeks(sol, s.spot)
}

func blackScholesGreeks(sol *Solution1d, spot float64) (Greeks, error) {
	x := math.Log(spot)
	value, err := sol.Value(x)
	if err != nil {
		return Greeks{}, err
	}
	vx, err := sol.Derivative(x)
	if err != nil {
		return Greeks{}, err
	}
	vxx, err := sol.SecondDerivative(x)
	if err != nil {
		return Greeks{}, err
	}
	theta, err := sol.Theta(x)
	if err != nil {
		return Greeks{}, err
	}
	return spotGreeks(spot, value, vx, vxx, theta), nil
}

// HestonGreeks Heston 结果，额外给出对初始方差的敏感度.
type HestonGreeks struct {
	Greeks
	Vega float64 `json:"vega"` // ∂V/∂v0
}

// HestonSolver 二维 (对数价格, 方差) 网格上的 Heston 求解器.
type HestonSolver struct {
	solver    *Solver2d
	process   *process.Heston
	transform operators.VarianceTransform
}

func NewHestonSolver(p *process.Heston, transform operators.VarianceTransform, desc Desc, schemeDesc scheme.Desc, opts ...Option) (*HestonSolver, error) {
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidProcess, "nil Heston process")
	}
	if err := checkDims(desc, 2); err != nil {
		return nil, err
	}
	op, err := operators.NewHestonOp(desc.Mesher, p, transform)
	if err != nil {
		return nil, err
	}
	s, err := NewSolver2d(desc, op, schemeDesc, opts...)
	if err != nil {
		return nil, err
	}
	return &HestonSolver{solver: s, process: p, transform: transform}, nil
}

// Calculate 在 (S0, v0) 处求值；对数方差网格上 v0 取 ln v0.
func (s *HestonSolver) Calculate(ctx context.Context) (HestonGreeks, error) {
	sol, err := s.solver.Solve(ctx)
	if err != nil {
		return HestonGreeks{}, err
	}
	return hestonGreeks(sol, s.process.X0(), s.process.V0(), s.transform)
}

func hestonGreeks(sol *Solution2d, spot, v0 float64, transform operators.VarianceTransform) (HestonGreeks, error) {
	x, y := math.Log(spot), v0
	if transform == operators.LogVariance {
		if !(v0 > 0) {
			return HestonGreeks{}, xerrors.Derive(xerrors.ErrInvalidArgument, "log variance grid needs v0 > 0, got %g", v0)
		}
		y = math.Log(v0)
	}
	value, err := sol.Value(x, y)
	if err != nil {
		return HestonGreeks{}, err
	}
	vx, err := sol.DerivativeX(x, y)
	if err != nil {
		return HestonGreeks{}, err
	}
	vxx, err := sol.DerivativeXX(x, y)
	if err != nil {
		return HestonGreeks{}, err
	}
	vy, err := sol.DerivativeY(x, y)
	if err != nil {
		return HestonGreeks{}, err
	}
	theta, err := sol.Theta(x, y)
	if err != nil {
		return HestonGreeks{}, err
	}
	vega := vy
	if transform == operators.LogVariance {
		vega = vy / v0
	}
	return HestonGreeks{Greeks: spotGreeks(spot, value, vx, vxx, theta), Vega: vega}, nil
}

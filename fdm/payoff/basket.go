package payoff

import (
	"fmt"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wyfcoding/quant/xerrors"
)

// Basket 多资产到期收益，s 为各资产价格.
type Basket interface {
	Value(s []float64) float64
	Name() string
}

// SpreadBasket 以 S1 - S2 为标的的收益.
type SpreadBasket struct {
	Payoff Payoff
}

func (b SpreadBasket) Value(s []float64) float64 { return b.Payoff.Value(s[0] - s[1]) }
func (b SpreadBasket) Name() string              { return "spread" }

// MaxBasket 以最大价格为标的.
type MaxBasket struct {
	Payoff Payoff
}

func (b MaxBasket) Value(s []float64) float64 {
	m := math.Inf(-1)
	for _, v := range s {
		m = math.Max(m, v)
	}
	return b.Payoff.Value(m)
}

func (b MaxBasket) Name() string { return "max" }

// MinBasket 以最小价格为标的.
type MinBasket struct {
	Payoff Payoff
}

func (b MinBasket) Value(s []float64) float64 {
	m := math.Inf(1)
	for _, v := range s {
		m = math.Min(m, v)
	}
	return b.Payoff.Value(m)
}

func (b MinBasket) Name() string { return "min" }

// AverageBasket 以加权平均价格为标的，Weights 为空时等权.
type AverageBasket struct {
	Payoff  Payoff
	Weights []float64
}

func (b AverageBasket) Value(s []float64) float64 {
	avg := 0.0
	for i, v := range s {
		w := 1 / float64(len(s))
		if len(b.Weights) == len(s) {
			w = b.Weights[i]
		}
		avg += w * v
	}
	return b.Payoff.Value(avg)
}

func (b AverageBasket) Name() string { return "average" }

// NewBasket 按名称构造内置的篮子收益. kind 取 spread/max/min/average.
func NewBasket(kind string, p Payoff, dims int, weights []float64) (Basket, error) {
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "basket %q needs an underlying payoff", kind)
	}
	switch kind {
	case "spread":
		if dims != 2 {
			return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "spread basket needs 2 assets, got %d", dims)
		}
		return SpreadBasket{Payoff: p}, nil
	case "max":
		return MaxBasket{Payoff: p}, nil
	case "min":
		return MinBasket{Payoff: p}, nil
	case "average":
		if len(weights) != 0 && len(weights) != dims {
			return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "%d weights for %d assets", len(weights), dims)
		}
		return AverageBasket{Payoff: p, Weights: weights}, nil
	}
	return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "unknown basket kind %q", kind)
}

// Expression 以表达式定义的篮子收益. 可用变量:
//
//	s     资产价格数组
//	s1…s3 各资产价格
//	k     行权价
//
// 例如 "max(s1 - s2 - k, 0)".
type Expression struct {
	source  string
	strike  float64
	dims    int
	program *vm.Program
	envPool sync.Pool
}

// NewExpression 编译表达式，编译期即检查变量与返回类型.
func NewExpression(source string, strike float64, dims int) (*Expression, error) {
	if dims < 1 || dims > 3 {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "expression payoff supports 1 to 3 assets, got %d", dims)
	}
	program, err := expr.Compile(source, expr.Env(newEnv(dims, strike)), expr.AsFloat64())
	if err != nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "failed to compile payoff expression %q: %v", source, err)
	}
	e := &Expression{source: source, strike: strike, dims: dims, program: program}
	e.envPool.New = func() any { return newEnv(dims, strike) }

	probe := make([]float64, dims)
	for i := range probe {
		probe[i] = math.Max(strike, 1)
	}
	if _, err := e.eval(probe); err != nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "payoff expression %q fails to evaluate: %v", source, err)
	}
	return e, nil
}

var assetKeys = [3]string{"s1", "s2", "s3"}

func newEnv(dims int, strike float64) map[string]any {
	env := map[string]any{
		"s": make([]float64, dims),
		"k": strike,
	}
	for _, key := range assetKeys {
		env[key] = 0.0
	}
	return env
}

// Value 运行期错误返回 NaN，由求解器的数值检查报告.
func (e *Expression) Value(s []float64) float64 {
	v, err := e.eval(s)
	if err != nil {
		return math.NaN()
	}
	return v
}

func (e *Expression) eval(s []float64) (float64, error) {
	env := e.envPool.Get().(map[string]any)
	defer e.envPool.Put(env)

	prices := env["s"].([]float64)
	copy(prices, s)
	for i := 0; i < e.dims && i < len(s); i++ {
		env[assetKeys[i]] = s[i]
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return 0, err
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("expression returned %T", out)
	}
	return v, nil
}

func (e *Expression) Name() string { return "expression" }

// Source 原始表达式.
func (e *Expression) Source() string { return e.source }

// Package scheme 实现算子分裂 (ADI) 族的时间步进格式.
//
// 所有格式都按回滚方向推进: Step(a, t) 把 t 时刻的解推进到 t-dt.
package scheme

import (
	"math"
	"strings"

	"github.com/wyfcoding/quant/fdm/boundary"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/xerrors"
)

// Type 格式种类.
type Type string

const (
	Douglas             Type = "douglas"
	CraigSneyd          Type = "craigsneyd"
	ModifiedCraigSneyd  Type = "modifiedcraigsneyd"
	Hundsdorfer         Type = "hundsdorfer"
	ModifiedHundsdorfer Type = "modifiedhundsdorfer"
	ExplicitEuler       Type = "expliciteuler"
)

// thetaMin 各格式保持无条件稳定的最小 θ.
var thetaMin = map[Type]float64{
	Douglas:             0.5,
	CraigSneyd:          0.5,
	ModifiedCraigSneyd:  1.0 / 3,
	Hundsdorfer:         0.5,
	ModifiedHundsdorfer: 1 - math.Sqrt2/2,
	ExplicitEuler:       0,
}

// Parse 忽略大小写以及 '-', '_', 空格.
func Parse(name string) (Type, error) {
	t := Type(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name)))
	if _, ok := thetaMin[t]; !ok {
		return "", xerrors.Derive(xerrors.ErrInvalidArgument, "unknown scheme %q", name)
	}
	return t, nil
}

// Desc 格式描述，不可变配置值.
type Desc struct {
	Type  Type    `json:"type" mapstructure:"type"`
	Theta float64 `json:"theta" mapstructure:"theta"`
	Mu    float64 `json:"mu" mapstructure:"mu"`
}

// 各格式的默认参数.
func DouglasDesc() Desc             { return Desc{Type: Douglas, Theta: 0.5} }
func CraigSneydDesc() Desc          { return Desc{Type: CraigSneyd, Theta: 0.5, Mu: 0.5} }
func ModifiedCraigSneydDesc() Desc  { return Desc{Type: ModifiedCraigSneyd, Theta: 1.0 / 3, Mu: 1.0 / 3} }
func HundsdorferDesc() Desc         { return Desc{Type: Hundsdorfer, Theta: 0.5 + math.Sqrt(3)/6, Mu: 0.5} }
func ModifiedHundsdorferDesc() Desc { return Desc{Type: ModifiedHundsdorfer, Theta: 1 - math.Sqrt2/2, Mu: 0.5} }
func ExplicitEulerDesc() Desc       { return Desc{Type: ExplicitEuler} }

// ImplicitEulerDesc 全隐式 Douglas (θ = 1)，用作阻尼步.
func ImplicitEulerDesc() Desc { return Desc{Type: Douglas, Theta: 1} }

// Preset 按种类返回默认参数.
func Preset(t Type) (Desc, error) {
	switch t {
	case Douglas:
		return DouglasDesc(), nil
	case CraigSneyd:
		return CraigSneydDesc(), nil
	case ModifiedCraigSneyd:
		return ModifiedCraigSneydDesc(), nil
	case Hundsdorfer:
		return HundsdorferDesc(), nil
	case ModifiedHundsdorfer:
		return ModifiedHundsdorferDesc(), nil
	case ExplicitEuler:
		return ExplicitEulerDesc(), nil
	}
	return Desc{}, xerrors.Derive(xerrors.ErrInvalidArgument, "unknown scheme %q", string(t))
}

// Validate θ ∈ [θ_min, 1]，μ ∈ [0, 1].
func (d Desc) Validate() error {
	lo, ok := thetaMin[d.Type]
	if !ok {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "unknown scheme %q", string(d.Type))
	}
	if d.Type == ExplicitEuler {
		return nil
	}
	if !(d.Theta >= lo-1e-12 && d.Theta <= 1) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "%s scheme needs theta in [%.4f, 1], got %g", d.Type, lo, d.Theta)
	}
	if !(d.Mu >= 0 && d.Mu <= 1) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "%s scheme needs mu in [0, 1], got %g", d.Type, d.Mu)
	}
	return nil
}

func (d Desc) String() string {
	if d.Type == ExplicitEuler {
		return string(d.Type)
	}
	return string(d.Type) + "(θ=" + formatFloat(d.Theta) + ",μ=" + formatFloat(d.Mu) + ")"
}

// Stepper 单步推进器. SetStep 之后的每次 Step 都以同一 dt 推进.
type Stepper interface {
	SetStep(dt float64)
	Step(a []float64, t float64) ([]float64, error)
}

// New 按描述构造推进器.
func New(desc Desc, op operators.Composite, bcs boundary.Set) (Stepper, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if op == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil operator")
	}
	b := base{op: op, bcs: bcs, theta: desc.Theta, mu: desc.Mu}
	switch desc.Type {
	case Douglas:
		return &douglasStepper{b}, nil
	case CraigSneyd:
		return &craigSneydStepper{b}, nil
	case ModifiedCraigSneyd:
		return &modifiedCraigSneydStepper{b}, nil
	case Hundsdorfer, ModifiedHundsdorfer:
		return &hundsdorferStepper{b}, nil
	default:
		return &explicitEulerStepper{b}, nil
	}
}

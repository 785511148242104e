// Package payoff 定义到期收益及网格上的内在价值计算.
package payoff

import (
	"math"
	"strings"

	"github.com/wyfcoding/quant/xerrors"
)

// OptionType 期权方向.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType 大小写不敏感.
func ParseOptionType(s string) (OptionType, error) {
	t := OptionType(strings.ToLower(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t OptionType) Validate() error {
	if t != Call && t != Put {
		return xerrors.Derive(xerrors.ErrInvalidOptionType, "unknown option type %q", string(t))
	}
	return nil
}

// sign 看涨为 1，看跌为 -1.
func (t OptionType) sign() float64 {
	if t == Put {
		return -1
	}
	return 1
}

// Payoff 单资产到期收益.
type Payoff interface {
	Value(s float64) float64
	Name() string
}

// Striked 带行权价的收益.
type Striked interface {
	Payoff
	Strike() float64
	Type() OptionType
}

// PlainVanilla max(φ(S-K), 0).
type PlainVanilla struct {
	OptionType OptionType `json:"type"`
	K          float64    `json:"strike"`
}

func NewPlainVanilla(t OptionType, strike float64) (*PlainVanilla, error) {
	if err := checkStriked(t, strike); err != nil {
		return nil, err
	}
	return &PlainVanilla{OptionType: t, K: strike}, nil
}

func (p *PlainVanilla) Value(s float64) float64 { return math.Max(p.OptionType.sign()*(s-p.K), 0) }
func (p *PlainVanilla) Name() string            { return "vanilla" }
func (p *PlainVanilla) Strike() float64         { return p.K }
func (p *PlainVanilla) Type() OptionType        { return p.OptionType }

// CashOrNothing 价内时支付固定金额.
type CashOrNothing struct {
	OptionType OptionType `json:"type"`
	K          float64    `json:"strike"`
	Cash       float64    `json:"cash"`
}

func NewCashOrNothing(t OptionType, strike, cash float64) (*CashOrNothing, error) {
	if err := checkStriked(t, strike); err != nil {
		return nil, err
	}
	return &CashOrNothing{OptionType: t, K: strike, Cash: cash}, nil
}

func (p *CashOrNothing) Value(s float64) float64 {
	if p.OptionType.sign()*(s-p.K) > 0 {
		return p.Cash
	}
	return 0
}

func (p *CashOrNothing) Name() string     { return "cash-or-nothing" }
func (p *CashOrNothing) Strike() float64  { return p.K }
func (p *CashOrNothing) Type() OptionType { return p.OptionType }

// AssetOrNothing 价内时支付标的本身.
type AssetOrNothing struct {
	OptionType OptionType `json:"type"`
	K          float64    `json:"strike"`
}

func NewAssetOrNothing(t OptionType, strike float64) (*AssetOrNothing, error) {
	if err := checkStriked(t, strike); err != nil {
		return nil, err
	}
	return &AssetOrNothing{OptionType: t, K: strike}, nil
}

func (p *AssetOrNothing) Value(s float64) float64 {
	if p.OptionType.sign()*(s-p.K) > 0 {
		return s
	}
	return 0
}

func (p *AssetOrNothing) Name() string     { return "asset-or-nothing" }
func (p *AssetOrNothing) Strike() float64  { return p.K }
func (p *AssetOrNothing) Type() OptionType { return p.OptionType }

// Func 任意函数形式的收益.
type Func func(s float64) float64

func (f Func) Value(s float64) float64 { return f(s) }
func (f Func) Name() string            { return "func" }

func checkStriked(t OptionType, strike float64) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if !(strike >= 0) || math.IsInf(strike, 0) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "strike must be finite and non-negative, got %g", strike)
	}
	return nil
}

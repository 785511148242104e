// Package engine 把网格、算子、条件与求解器组装成面向产品的定价引擎。
//
// 每个引擎在 Calculate 时检查过程类型与行权方式，再构建网格并回滚；
// 引擎本身除配置外不持有状态，可被多个 goroutine 同时调用。
package engine

import (
	"log/slog"

	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/fdm/solver"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// Results 定价结果. 希腊值以标的价格 (利率模型为状态变量) 为自变量.
type Results struct {
	Value float64            `json:"value"`
	Delta float64            `json:"delta"`
	Gamma float64            `json:"gamma"`
	Theta float64            `json:"theta"`
	Extra map[string]float64 `json:"extra,omitempty"`
}

// Config 网格与时间离散参数.
type Config struct {
	Scheme       scheme.Desc                 `json:"scheme"`
	TimeSteps    int                         `json:"time_steps"`
	DampingSteps int                         `json:"damping_steps"`
	XGrid        int                         `json:"x_grid"`
	VGrid        int                         `json:"v_grid"`
	RGrid        int                         `json:"r_grid"`
	BasketGrid   int                         `json:"basket_grid"` // 多资产时每个资产方向的点数
	Transform    operators.VarianceTransform `json:"variance_transform"`
}

func DefaultConfig() Config {
	return Config{
		Scheme:       scheme.HundsdorferDesc(),
		TimeSteps:    100,
		DampingSteps: 0,
		XGrid:        200,
		VGrid:        100,
		RGrid:        31,
		BasketGrid:   50,
		Transform:    operators.PlainVariance,
	}
}

// minGrid 各维最少点数，平方根前向算子需要 3 个点.
const minGrid = 3

func (c Config) Validate() error {
	if err := c.Scheme.Validate(); err != nil {
		return err
	}
	if c.TimeSteps < 1 || c.DampingSteps < 0 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "invalid time steps %d or damping steps %d", c.TimeSteps, c.DampingSteps)
	}
	for name, n := range map[string]int{"x": c.XGrid, "v": c.VGrid, "r": c.RGrid, "basket": c.BasketGrid} {
		if n < minGrid {
			return xerrors.Derive(xerrors.ErrInvalidArgument, "%s grid needs at least %d points, got %d", name, minGrid, n)
		}
	}
	return nil
}

// Option 引擎可选参数.
type Option func(*base)

// WithLogger 引擎与回滚使用的日志.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
			b.solverOpts = append(b.solverOpts, solver.WithLogger(l))
		}
	}
}

// WithObserver 回滚度量钩子.
func WithObserver(o solver.Observer) Option {
	return func(b *base) { b.solverOpts = append(b.solverOpts, solver.WithObserver(o)) }
}

type base struct {
	cfg        Config
	logger     *slog.Logger
	solverOpts []solver.Option
}

func newBase(cfg Config, opts []Option) (base, error) {
	if err := cfg.Validate(); err != nil {
		return base{}, err
	}
	b := base{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(&b)
	}
	return b, nil
}

// Config 引擎配置.
func (b *base) Config() Config { return b.cfg }

func (b *base) desc() solver.Desc {
	return solver.Desc{TimeSteps: b.cfg.TimeSteps, DampingSteps: b.cfg.DampingSteps}
}

// checkExercise 在任何回滚之前拒绝不支持的行权方式.
func checkExercise(e step.Exercise, supported ...step.ExerciseType) error {
	if err := e.Validate(); err != nil {
		return err
	}
	for _, t := range supported {
		if e.Type == t {
			return nil
		}
	}
	return xerrors.Derive(xerrors.ErrUnsupportedExercise, "%s exercise is not supported here", e.Type)
}

func processError(want string, got any) error {
	return xerrors.Derive(xerrors.ErrInvalidProcess, "engine needs a %s process, got %T", want, got)
}

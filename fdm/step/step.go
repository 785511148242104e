// Package step 定义回滚过程中作用于解数组的离散事件 (行权、股息、障碍、观察).
package step

import (
	"math"
	"sort"

	"github.com/wyfcoding/quant/xerrors"
)

// Condition 在时刻 t 原地修改解数组.
type Condition interface {
	ApplyTo(a []float64, t float64)
}

// Scheduled 只在给定时刻生效的条件，时刻即为求解器的停止时间.
// 未实现该接口或 Times 返回 nil 的条件在每个时间步末尾都会被调用.
type Scheduled interface {
	Condition
	Times() []float64
}

// snapTolerance 相对期限的时刻吸附容差.
const snapTolerance = 1e-6

// matchTolerance 求解器传入时刻与停止时间的匹配容差.
const matchTolerance = 1e-10

type entry struct {
	cond Condition
	// raw 条件声明的原始时刻，snapped 为吸附到 [0, maturity] 端点后的时刻.
	raw     []float64
	snapped []float64
}

// Composite 按注册顺序组合的条件集合.
//
// 距到期日或 0 在 1e-6·maturity 以内的时刻被吸附到端点. 到期日的事件在终端收益
// 设定后、第一个时间步之前作用一次；0 时刻的事件在最后一个时间步之后作用.
type Composite struct {
	maturity float64
	entries  []entry
	stopping []float64
}

// NewComposite 校验所有事件时刻位于 [0, maturity].
func NewComposite(maturity float64, conds ...Condition) (*Composite, error) {
	if !(maturity > 0) || math.IsInf(maturity, 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "maturity must be positive and finite, got %g", maturity)
	}
	c := &Composite{maturity: maturity}
	for _, cond := range conds {
		if err := c.add(cond); err != nil {
			return nil, err
		}
	}
	c.collect()
	return c, nil
}

func (c *Composite) add(cond Condition) error {
	if cond == nil {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "nil step condition")
	}
	e := entry{cond: cond}
	if s, ok := cond.(Scheduled); ok && s.Times() != nil {
		e.raw = s.Times()
		e.snapped = make([]float64, len(e.raw))
		for i, t := range e.raw {
			snapped, err := c.snap(t)
			if err != nil {
				return err
			}
			e.snapped[i] = snapped
		}
	}
	c.entries = append(c.entries, e)
	return nil
}

func (c *Composite) snap(t float64) (float64, error) {
	tol := snapTolerance * c.maturity
	switch {
	case math.IsNaN(t) || t < -tol || t > c.maturity+tol:
		return 0, xerrors.Derive(xerrors.ErrInvalidArgument, "event time %g outside [0, %g]", t, c.maturity)
	case math.Abs(t) <= tol:
		return 0, nil
	case math.Abs(t-c.maturity) <= tol:
		return c.maturity, nil
	}
	return t, nil
}

func (c *Composite) collect() {
	var all []float64
	for _, e := range c.entries {
		all = append(all, e.snapped...)
	}
	sort.Float64s(all)
	c.stopping = c.stopping[:0]
	for _, t := range all {
		if n := len(c.stopping); n > 0 && t-c.stopping[n-1] <= matchTolerance {
			continue
		}
		c.stopping = append(c.stopping, t)
	}
}

// Maturity 事件时间轴的终点.
func (c *Composite) Maturity() float64 { return c.maturity }

// StoppingTimes 升序且去重的停止时间.
func (c *Composite) StoppingTimes() []float64 {
	out := make([]float64, len(c.stopping))
	copy(out, c.stopping)
	return out
}

// ApplyTo 依次作用每个条件: 无时刻的条件总是作用，定时条件在 t 命中其某个时刻时
// 以该条件的原始时刻调用.
func (c *Composite) ApplyTo(a []float64, t float64) {
	for _, e := range c.entries {
		if e.snapped == nil {
			e.cond.ApplyTo(a, t)
			continue
		}
		for i, s := range e.snapped {
			if math.Abs(s-t) <= matchTolerance {
				e.cond.ApplyTo(a, e.raw[i])
				break
			}
		}
	}
}

// Join 返回追加了 extra 的新组合，原组合不变.
func (c *Composite) Join(extra ...Condition) (*Composite, error) {
	out := &Composite{maturity: c.maturity, entries: make([]entry, len(c.entries))}
	copy(out.entries, c.entries)
	for _, cond := range extra {
		if err := out.add(cond); err != nil {
			return nil, err
		}
	}
	out.collect()
	return out, nil
}

// Len 已注册条件数.
func (c *Composite) Len() int { return len(c.entries) }

// indexOf 精确查找 t 在 times 中的位置.
func indexOf(times []float64, t float64) int {
	for i, s := range times {
		if s == t {
			return i
		}
	}
	return -1
}

func checkTimes(what string, times []float64) error {
	if len(times) == 0 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "%s needs at least one event time", what)
	}
	for _, t := range times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return xerrors.Derive(xerrors.ErrInvalidArgument, "%s event time %g is not finite", what, t)
		}
	}
	return nil
}

package step

import (
	"sort"
	"strings"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

// ExerciseType 行权方式.
type ExerciseType string

const (
	ExerciseEuropean ExerciseType = "european"
	ExerciseAmerican ExerciseType = "american"
	ExerciseBermudan ExerciseType = "bermudan"
)

// Exercise 行权安排. 欧式只有到期日，美式在 [0, 到期日] 内连续，
// 百慕大为升序的离散行权日 (最后一个即到期日).
type Exercise struct {
	Type  ExerciseType `json:"type"`
	Times []float64    `json:"times"`
}

func NewEuropeanExercise(maturity float64) Exercise {
	return Exercise{Type: ExerciseEuropean, Times: []float64{maturity}}
}

func NewAmericanExercise(maturity float64) Exercise {
	return Exercise{Type: ExerciseAmerican, Times: []float64{maturity}}
}

func NewBermudanExercise(times []float64) Exercise {
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)
	return Exercise{Type: ExerciseBermudan, Times: sorted}
}

// ParseExerciseType 大小写不敏感.
func ParseExerciseType(s string) (ExerciseType, error) {
	t := ExerciseType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ExerciseEuropean, ExerciseAmerican, ExerciseBermudan:
		return t, nil
	}
	return "", xerrors.Derive(xerrors.ErrUnsupportedExercise, "unknown exercise type %q", s)
}

// Validate 检查行权日非空、非负且升序.
func (e Exercise) Validate() error {
	if _, err := ParseExerciseType(string(e.Type)); err != nil {
		return err
	}
	if len(e.Times) == 0 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "%s exercise has no dates", e.Type)
	}
	for i, t := range e.Times {
		if !(t > 0) {
			return xerrors.Derive(xerrors.ErrInvalidArgument, "exercise time must be positive, got %g", t)
		}
		if i > 0 && t <= e.Times[i-1] {
			return xerrors.Derive(xerrors.ErrInvalidArgument, "exercise times must be strictly increasing")
		}
	}
	return nil
}

// Maturity 最后行权日.
func (e Exercise) Maturity() float64 { return e.Times[len(e.Times)-1] }

// NewVanillaComposite 普通期权的标准条件组合: 股息平移在前，行权下界在后.
// direction 为对数价格方向.
func NewVanillaComposite(
	m mesher.Mesher,
	calc payoff.InnerValueCalculator,
	exercise Exercise,
	divs []process.Dividend,
	direction int,
) (*Composite, error) {
	if err := exercise.Validate(); err != nil {
		return nil, err
	}
	maturity := exercise.Maturity()
	var conds []Condition
	if len(divs) > 0 {
		// 到期日之后的股息与本期权无关.
		var live []process.Dividend
		for _, d := range divs {
			if d.Time <= maturity {
				live = append(live, d)
			}
		}
		if len(live) > 0 {
			d, err := NewDividend(m, direction, live)
			if err != nil {
				return nil, err
			}
			conds = append(conds, d)
		}
	}
	switch exercise.Type {
	case ExerciseAmerican:
		c, err := NewAmerican(m, calc)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	case ExerciseBermudan:
		c, err := NewBermudan(m, calc, exercise.Times)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return NewComposite(maturity, conds...)
}

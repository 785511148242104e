package step

import (
	"math"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/xerrors"
)

// American 连续行权: 每一步后以内在价值为下界.
type American struct {
	mesher mesher.Mesher
	calc   payoff.InnerValueCalculator
}

func NewAmerican(m mesher.Mesher, calc payoff.InnerValueCalculator) (*American, error) {
	if m == nil || calc == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "american condition needs a mesher and an inner value calculator")
	}
	return &American{mesher: m, calc: calc}, nil
}

func (c *American) ApplyTo(a []float64, t float64) {
	floorAtInner(c.mesher, c.calc, a, t)
}

func floorAtInner(m mesher.Mesher, calc payoff.InnerValueCalculator, a []float64, t float64) {
	m.Layout().Each(func(index int, coords []int) {
		if v := calc.InnerValue(index, coords, t); v > a[index] {
			a[index] = v
		}
	})
}

// Bermudan 仅在行权日以内在价值为下界.
type Bermudan struct {
	mesher mesher.Mesher
	calc   payoff.InnerValueCalculator
	times  []float64
}

func NewBermudan(m mesher.Mesher, calc payoff.InnerValueCalculator, times []float64) (*Bermudan, error) {
	if m == nil || calc == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "bermudan condition needs a mesher and an inner value calculator")
	}
	if err := checkTimes("bermudan", times); err != nil {
		return nil, err
	}
	return &Bermudan{mesher: m, calc: calc, times: append([]float64(nil), times...)}, nil
}

func (c *Bermudan) Times() []float64 { return c.times }

func (c *Bermudan) ApplyTo(a []float64, t float64) {
	if indexOf(c.times, t) < 0 {
		return
	}
	floorAtInner(c.mesher, c.calc, a, t)
}

// KnockOut 障碍敲出: 坐标位于下障碍及以下或上障碍及以上的点取回扣值.
// 障碍以网格坐标给出 (对数价格网格上即 ln B). Monitoring 为空时每步检查.
type KnockOut struct {
	mesher     mesher.Mesher
	direction  int
	lower      float64
	upper      float64
	rebate     float64
	monitoring []float64
}

// KnockOutOption 可选参数.
type KnockOutOption func(*KnockOut)

// WithLowerBarrier 下敲出障碍.
func WithLowerBarrier(x float64) KnockOutOption { return func(k *KnockOut) { k.lower = x } }

// WithUpperBarrier 上敲出障碍.
func WithUpperBarrier(x float64) KnockOutOption { return func(k *KnockOut) { k.upper = x } }

// WithRebate 敲出回扣.
func WithRebate(r float64) KnockOutOption { return func(k *KnockOut) { k.rebate = r } }

// WithMonitoring 离散观察时刻.
func WithMonitoring(times []float64) KnockOutOption {
	return func(k *KnockOut) { k.monitoring = append([]float64(nil), times...) }
}

func NewKnockOut(m mesher.Mesher, direction int, opts ...KnockOutOption) (*KnockOut, error) {
	if m == nil || direction < 0 || direction >= m.Layout().Dimensions() {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "knock-out direction %d out of range", direction)
	}
	k := &KnockOut{mesher: m, direction: direction, lower: math.Inf(-1), upper: math.Inf(1)}
	for _, opt := range opts {
		opt(k)
	}
	if math.IsInf(k.lower, -1) && math.IsInf(k.upper, 1) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "knock-out needs at least one barrier")
	}
	if !(k.lower < k.upper) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "lower barrier %g must be below upper barrier %g", k.lower, k.upper)
	}
	if k.monitoring != nil {
		if err := checkTimes("knock-out", k.monitoring); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func (k *KnockOut) ApplyTo(a []float64, t float64) {
	if k.monitoring != nil && indexOf(k.monitoring, t) < 0 {
		return
	}
	const eps = 1e-12
	k.mesher.Layout().Each(func(index int, coords []int) {
		x := k.mesher.Location(coords, k.direction)
		if x <= k.lower+eps || x >= k.upper-eps {
			a[index] = k.rebate
		}
	})
}

// Times 离散观察时刻，连续观察时为 nil.
func (k *KnockOut) Times() []float64 { return k.monitoring }

// Observation 自动赎回观察点.
type Observation struct {
	Time       float64 `json:"time"`
	Trigger    float64 `json:"trigger"`
	Redemption float64 `json:"redemption"`
}

// Autocall 快线证书: 观察日标的高于触发价时按赎回金额提前终止.
// direction 为对数价格方向.
type Autocall struct {
	mesher       mesher.Mesher
	direction    int
	observations []Observation
	times        []float64
}

func NewAutocall(m mesher.Mesher, direction int, observations []Observation) (*Autocall, error) {
	if m == nil || direction < 0 || direction >= m.Layout().Dimensions() {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "autocall direction %d out of range", direction)
	}
	times := make([]float64, len(observations))
	for i, o := range observations {
		if !(o.Trigger > 0) {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "autocall trigger must be positive, got %g", o.Trigger)
		}
		times[i] = o.Time
	}
	if err := checkTimes("autocall", times); err != nil {
		return nil, err
	}
	return &Autocall{
		mesher:       m,
		direction:    direction,
		observations: append([]Observation(nil), observations...),
		times:        times,
	}, nil
}

func (c *Autocall) Times() []float64 { return c.times }

func (c *Autocall) ApplyTo(a []float64, t float64) {
	i := indexOf(c.times, t)
	if i < 0 {
		return
	}
	o := c.observations[i]
	c.mesher.Layout().Each(func(index int, coords []int) {
		if math.Exp(c.mesher.Location(coords, c.direction)) > o.Trigger {
			a[index] = o.Redemption
		}
	})
}

// Snapshot 记录某一时刻的解数组，用于计算 theta.
type Snapshot struct {
	t      float64
	values []float64
}

func NewSnapshot(t float64) (*Snapshot, error) {
	if err := checkTimes("snapshot", []float64{t}); err != nil {
		return nil, err
	}
	return &Snapshot{t: t}, nil
}

func (s *Snapshot) Times() []float64 { return []float64{s.t} }

func (s *Snapshot) ApplyTo(a []float64, t float64) {
	if t != s.t {
		return
	}
	s.values = append(s.values[:0], a...)
}

// Time 记录时刻.
func (s *Snapshot) Time() float64 { return s.t }

// Values 记录的数组，尚未经过该时刻时为 nil.
func (s *Snapshot) Values() []float64 { return s.values }

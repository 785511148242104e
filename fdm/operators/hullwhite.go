package operators

import (
	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/process"
)

// HullWhiteOp Hull-White 状态变量 x 上的算子，短期利率 r = x + φ(t):
//
//	L = -a x ∂x + σ²/2 ∂xx - (x + φ)
type HullWhiteOp struct {
	single
	x     []float64
	dzMap *TripleBand
	model *process.HullWhite
}

// NewHullWhiteOp 在 direction 方向上构造算子.
func NewHullWhiteOp(m mesher.Mesher, p *process.HullWhite, direction int) (*HullWhiteOp, error) {
	if err := checkDirection(direction, m.Layout().Dimensions()); err != nil {
		return nil, err
	}
	x := m.Locations(direction)
	drift := make([]float64, len(x))
	for i := range x {
		drift[i] = -p.A() * x[i]
	}
	dx, err := FirstDerivative(direction, m).Mult(drift)
	if err != nil {
		return nil, err
	}
	dxx, err := SecondDerivative(direction, m).Mult([]float64{0.5 * p.Sigma() * p.Sigma()})
	if err != nil {
		return nil, err
	}
	dzMap, err := dx.Add(dxx)
	if err != nil {
		return nil, err
	}
	return &HullWhiteOp{
		single: single{
			direction: direction,
			dims:      m.Layout().Dimensions(),
			mapT:      NewTripleBand(direction, m),
		},
		x:     x,
		dzMap: dzMap,
		model: p,
	}, nil
}

func (op *HullWhiteOp) SetTime(t1, t2 float64) error {
	phi := 0.5 * (op.model.Phi(t1) + op.model.Phi(t2))
	hr := make([]float64, len(op.x))
	for i, x := range op.x {
		hr[i] = -(x + phi)
	}
	return op.mapT.Axpyb(nil, op.dzMap, op.dzMap, hr)
}

// HestonHullWhiteOp Heston 与 Hull-White 的三因子算子，方向依次为对数价格、方差与利率状态.
// 贴现完全由利率方向承担.
type HestonHullWhiteOp struct {
	mesher mesher.Mesher
	qTS    process.YieldCurve
	model  *process.HullWhite

	rates, halfVariance []float64
	dx, dxx             *TripleBand
	dyMap               *TripleBand
	dxyMap, dxzMap      *NinePoint
	mapX                *TripleBand
	hullWhite           *HullWhiteOp
}

// NewHestonHullWhiteOp equityRateCorr 为股价与利率的相关系数.
func NewHestonHullWhiteOp(m mesher.Mesher, heston *process.Heston, hw *process.HullWhite, equityRateCorr float64) (*HestonHullWhiteOp, error) {
	if m.Layout().Dimensions() != 3 {
		return nil, errDims("heston-hull-white", 3, m.Layout().Dimensions())
	}
	if err := checkCorrelation(equityRateCorr); err != nil {
		return nil, err
	}
	v := m.Locations(1)
	half := make([]float64, len(v))
	corrV := make([]float64, len(v))
	corrR := make([]float64, len(v))
	for i := range v {
		half[i] = 0.5 * v[i]
		corrV[i] = heston.Rho() * heston.Sigma() * v[i]
		corrR[i] = equityRateCorr * hw.Sigma() * sqrtPositive(v[i])
	}
	dxx, err := SecondDerivative(0, m).Mult(half)
	if err != nil {
		return nil, err
	}
	dyMap, err := varianceGenerator(m, 1, heston, PlainVariance)
	if err != nil {
		return nil, err
	}
	mxy, err := MixedDerivative(0, 1, m)
	if err != nil {
		return nil, err
	}
	mxz, err := MixedDerivative(0, 2, m)
	if err != nil {
		return nil, err
	}
	hwOp, err := NewHullWhiteOp(m, hw, 2)
	if err != nil {
		return nil, err
	}
	return &HestonHullWhiteOp{
		mesher:       m,
		qTS:          heston.DividendYield(),
		model:        hw,
		rates:        m.Locations(2),
		halfVariance: half,
		dx:           FirstDerivative(0, m),
		dxx:          dxx,
		dyMap:        dyMap,
		dxyMap:       must(mxy.Mult(corrV)),
		dxzMap:       must(mxz.Mult(corrR)),
		mapX:         NewTripleBand(0, m),
		hullWhite:    hwOp,
	}, nil
}

func (op *HestonHullWhiteOp) Directions() int { return 3 }

func (op *HestonHullWhiteOp) SetTime(t1, t2 float64) error {
	q := op.qTS.ForwardRate(t1, t2)
	phi := 0.5 * (op.model.Phi(t1) + op.model.Phi(t2))
	drift := make([]float64, len(op.rates))
	for i := range drift {
		drift[i] = op.rates[i] + phi - q - op.halfVariance[i]
	}
	if err := op.mapX.Axpyb(drift, op.dx, op.dxx, nil); err != nil {
		return err
	}
	return op.hullWhite.SetTime(t1, t2)
}

func (op *HestonHullWhiteOp) Apply(r []float64) ([]float64, error) {
	return applyAll(r, op.mapX, op.dyMap, op.hullWhite.mapT, op.dxyMap, op.dxzMap)
}

func (op *HestonHullWhiteOp) ApplyMixed(r []float64) ([]float64, error) {
	return applyAll(r, op.dxyMap, op.dxzMap)
}

func (op *HestonHullWhiteOp) ApplyDirection(direction int, r []float64) ([]float64, error) {
	switch direction {
	case 0:
		return op.mapX.Apply(r)
	case 1:
		return op.dyMap.Apply(r)
	case 2:
		return op.hullWhite.mapT.Apply(r)
	}
	return nil, checkDirection(direction, 3)
}

func (op *HestonHullWhiteOp) SolveSplitting(direction int, r []float64, a float64) ([]float64, error) {
	switch direction {
	case 0:
		return op.mapX.SolveSplitting(r, a, 1)
	case 1:
		return op.dyMap.SolveSplitting(r, a, 1)
	case 2:
		return op.hullWhite.mapT.SolveSplitting(r, a, 1)
	}
	return nil, checkDirection(direction, 3)
}

func (op *HestonHullWhiteOp) Preconditioner(r []float64, dt float64) ([]float64, error) {
	return op.SolveSplitting(0, r, -dt)
}

func (op *HestonHullWhiteOp) ToMatrixDecomp() []*mat.Dense {
	return []*mat.Dense{
		op.mapX.ToMatrix(), op.dyMap.ToMatrix(), op.hullWhite.mapT.ToMatrix(),
		op.dxyMap.ToMatrix(), op.dxzMap.ToMatrix(),
	}
}

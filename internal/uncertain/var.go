package uncertain

import (
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

var caseNamespace = uuid.MustParse("5b1d7c1e-3f0a-5d8e-9a61-2c4f8e0b7d13")

// CaseSource returns the provenance of every independent variable read from one case.
// The same case identifier always yields the same source.
func CaseSource(caseID string) uuid.UUID {
	return uuid.NewSHA1(caseNamespace, []byte(caseID))
}

// NewSource returns a provenance shared with nothing else.
func NewSource() uuid.UUID {
	return uuid.New()
}

// ComponentID identifies one groupwise sensitivity within a case.
type ComponentID struct {
	Nuclide  string
	Reaction string
	Group    int
}

// Tag identifies an independent random variable.
type Tag struct {
	Source uuid.UUID
	ID     ComponentID
}

type leaf struct {
	d     float64
	sigma float64
}

type term struct {
	coef float64
	base *Base
}

// Base is a frozen intermediate whose gradient is shared by reference between
// every Var built from it, so per-component results stay O(1) in size.
type Base struct {
	value    float64
	grad     map[Tag]leaf
	variance float64
}

// Value returns the nominal value of the frozen intermediate.
func (b *Base) Value() float64 { return b.value }

// Var is a value with a first-order gradient over independent variables.
type Var struct {
	value  float64
	direct map[Tag]leaf
	shared []term
}

// Constant returns a Var without uncertainty.
func Constant(value float64) Var {
	return Var{value: value}
}

// Leaf returns an independent variable.
func Leaf(value, sigma float64, tag Tag) Var {
	if sigma == 0 {
		return Constant(value)
	}
	return Var{value: value, direct: map[Tag]leaf{tag: {d: 1, sigma: math.Abs(sigma)}}}
}

// FromBase returns a Var equal to the frozen intermediate.
func FromBase(b *Base) Var {
	return Var{value: b.value, shared: []term{{coef: 1, base: b}}}
}

// Value returns the nominal value.
func (v Var) Value() float64 { return v.value }

// Float returns the nominal value and standard deviation.
func (v Var) Float() Float { return Float{Value: v.value, Sigma: v.StdDev()} }

// StdDev returns the propagated standard deviation.
func (v Var) StdDev() float64 { return math.Sqrt(v.Variance()) }

// Variance returns the propagated variance, clamped at zero.
func (v Var) Variance() float64 {
	return math.Max(0, Covariance(v, v))
}

// Covariance returns the first-order covariance of a and b.
func Covariance(a, b Var) float64 {
	var cov float64

	small, large := a.direct, b.direct
	if len(small) > len(large) {
		small, large = large, small
	}
	for tag, x := range small {
		if y, ok := large[tag]; ok {
			cov += x.d * y.d * x.sigma * x.sigma
		}
	}

	for _, t := range b.shared {
		cov += t.coef * directBaseCov(a.direct, t.base)
	}
	for _, t := range a.shared {
		cov += t.coef * directBaseCov(b.direct, t.base)
	}

	memo := map[[2]*Base]float64{}
	for _, ta := range a.shared {
		for _, tb := range b.shared {
			cov += ta.coef * tb.coef * baseCov(ta.base, tb.base, memo)
		}
	}
	return cov
}

func directBaseCov(direct map[Tag]leaf, b *Base) float64 {
	var cov float64
	for tag, x := range direct {
		if g, ok := b.grad[tag]; ok {
			cov += x.d * g.d * x.sigma * x.sigma
		}
	}
	return cov
}

func baseCov(p, q *Base, memo map[[2]*Base]float64) float64 {
	if p == q {
		return p.variance
	}
	key := [2]*Base{p, q}
	if c, ok := memo[key]; ok {
		return c
	}
	small, large := p.grad, q.grad
	if len(small) > len(large) {
		small, large = large, small
	}
	var cov float64
	for tag, x := range small {
		if y, ok := large[tag]; ok {
			cov += x.d * y.d * x.sigma * x.sigma
		}
	}
	memo[key] = cov
	memo[[2]*Base{q, p}] = cov
	return cov
}

// Freeze flattens v into a shareable Base.
func Freeze(v Var) *Base {
	grad := make(map[Tag]leaf, len(v.direct))
	for tag, x := range v.direct {
		grad[tag] = x
	}
	for _, t := range v.shared {
		for tag, g := range t.base.grad {
			x := grad[tag]
			x.d += t.coef * g.d
			x.sigma = g.sigma
			grad[tag] = x
		}
	}
	b := &Base{value: v.value, grad: grad}
	for _, x := range grad {
		b.variance += x.d * x.d * x.sigma * x.sigma
	}
	return b
}

// combine returns ca*a + cb*b in gradient space with the given nominal value.
func combine(value, ca float64, a Var, cb float64, b Var) Var {
	out := Var{value: value}
	if len(a.direct)+len(b.direct) > 0 {
		out.direct = make(map[Tag]leaf, len(a.direct)+len(b.direct))
	}
	for tag, x := range a.direct {
		out.direct[tag] = leaf{d: ca * x.d, sigma: x.sigma}
	}
	for tag, y := range b.direct {
		x, ok := out.direct[tag]
		if !ok {
			x.sigma = y.sigma
		}
		x.d += cb * y.d
		out.direct[tag] = x
	}

	out.shared = make([]term, 0, len(a.shared)+len(b.shared))
	index := make(map[*Base]int, len(a.shared)+len(b.shared))
	add := func(coef float64, terms []term) {
		for _, t := range terms {
			if i, ok := index[t.base]; ok {
				out.shared[i].coef += coef * t.coef
				continue
			}
			index[t.base] = len(out.shared)
			out.shared = append(out.shared, term{coef: coef * t.coef, base: t.base})
		}
	}
	add(ca, a.shared)
	add(cb, b.shared)
	return out
}

// Add returns a + b.
func Add(a, b Var) Var { return combine(a.value+b.value, 1, a, 1, b) }

// Sub returns a - b.
func Sub(a, b Var) Var { return combine(a.value-b.value, 1, a, -1, b) }

// Scale returns k*a.
func Scale(a Var, k float64) Var { return combine(k*a.value, k, a, 0, Var{}) }

// Mul returns a * b.
func Mul(a, b Var) Var { return combine(a.value*b.value, b.value, a, a.value, b) }

// Div returns a / b. A zero denominator yields an infinite or NaN value like float division.
func Div(a, b Var) Var {
	return combine(a.value/b.value, 1/b.value, a, -a.value/(b.value*b.value), b)
}

// Sqrt returns the square root of a. The derivative at zero is taken as zero.
func Sqrt(a Var) Var {
	root := math.Sqrt(a.value)
	if root == 0 {
		return Constant(0)
	}
	return Scale(a, 1/(2*root)).withValue(root)
}

func (v Var) withValue(value float64) Var {
	v.value = value
	return v
}

// Sum returns the sum of xs.
func Sum(xs []Var) Var {
	out := Constant(0)
	grad := map[Tag]leaf{}
	index := map[*Base]int{}
	for _, x := range xs {
		out.value += x.value
		for tag, l := range x.direct {
			g := grad[tag]
			g.d += l.d
			g.sigma = l.sigma
			grad[tag] = g
		}
		for _, t := range x.shared {
			if i, ok := index[t.base]; ok {
				out.shared[i].coef += t.coef
				continue
			}
			index[t.base] = len(out.shared)
			out.shared = append(out.shared, t)
		}
	}
	if len(grad) > 0 {
		out.direct = grad
	}
	return out
}

// Dot returns the inner product of a and b, which must have equal length.
func Dot(a, b []Var) Var {
	if len(a) != len(b) {
		panic("uncertain: Dot length mismatch")
	}
	products := make([]Var, len(a))
	for i := range a {
		products[i] = Mul(a[i], b[i])
	}
	return Sum(products)
}

// Norm returns the Euclidean norm of xs, frozen so that dividing by it is O(1) per component.
func Norm(xs []Var) *Base {
	values := make([]float64, len(xs))
	for i, x := range xs {
		values[i] = x.value
	}
	norm := floats.Norm(values, 2)

	squares := make([]Var, len(xs))
	for i, x := range xs {
		squares[i] = Mul(x, x)
	}
	return Freeze(Sqrt(Sum(squares)).withValue(norm))
}

// Decorrelate returns an independent variable with the same value and standard
// deviation as v and no shared provenance with anything.
func Decorrelate(v Var, id ComponentID) Var {
	return Leaf(v.value, v.StdDev(), Tag{Source: NewSource(), ID: id})
}

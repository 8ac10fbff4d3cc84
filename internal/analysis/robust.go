package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// UnitVectorUncertainty propagates component sigmas through x/||x||.
//
// Row i of the Jacobian has (||x||² - x_i²)/||x||³ on the diagonal and
// -x_i x_j/||x||³ elsewhere, so the squared row sum weighted by the variances
// collapses to
//
//	((n² - x_i²)² σ_i² + x_i² (S - x_i² σ_i²)) / n⁶,  S = Σ x_j² σ_j²
//
// which is O(n) overall. A zero vector yields zero uncertainties.
func UnitVectorUncertainty(x, sigma []float64) []float64 {
	out := make([]float64, len(x))
	n2 := floats.Dot(x, x)
	if n2 == 0 {
		return out
	}
	n6 := n2 * n2 * n2

	var s float64
	for j := range x {
		s += x[j] * x[j] * sigma[j] * sigma[j]
	}

	for i := range x {
		xi2 := x[i] * x[i]
		own := xi2 * sigma[i] * sigma[i]
		diag := n2 - xi2
		rest := math.Max(0, s-own)
		out[i] = math.Sqrt((diag*diag*sigma[i]*sigma[i] + xi2*rest) / n6)
	}
	return out
}

// DotProductUncertainty combines per-component relative uncertainties of a·b.
// A component with a zero nominal value on either side contributes nothing.
func DotProductUncertainty(a, sigmaA, b, sigmaB []float64) float64 {
	var variance float64
	for i := range a {
		if a[i] == 0 || b[i] == 0 {
			continue
		}
		ra := sigmaA[i] / a[i]
		rb := sigmaB[i] / b[i]
		p := a[i] * b[i]
		variance += p * p * (ra*ra + rb*rb)
	}
	return math.Sqrt(variance)
}

// SignedQuadrature reduces contributions to one total: squares of positive
// contributions are added and squares of negative ones subtracted, and the
// total is the square root of the absolute sum carrying the sum's sign.
// Contributions are treated as independent.
func SignedQuadrature(contributions []uncertain.Float) uncertain.Float {
	var sum, variance float64
	for _, c := range contributions {
		sq := c.Value * c.Value
		if c.Value < 0 {
			sum -= sq
		} else {
			sum += sq
		}
		d := 2 * c.Value * c.Sigma
		variance += d * d
	}
	if sum == 0 {
		return uncertain.Zero
	}

	root := math.Sqrt(math.Abs(sum))
	sigma := math.Sqrt(variance) / (2 * root)
	if sum < 0 {
		return uncertain.New(-root, sigma)
	}
	return uncertain.New(root, sigma)
}

// AggregateByNuclide applies SignedQuadrature to the reaction contributions of
// each nuclide, in order of first appearance.
func AggregateByNuclide(reactions []Contribution) []Contribution {
	var order []string
	grouped := make(map[string][]uncertain.Float)
	for _, c := range reactions {
		if _, ok := grouped[c.Nuclide]; !ok {
			order = append(order, c.Nuclide)
		}
		grouped[c.Nuclide] = append(grouped[c.Nuclide], c.Value)
	}

	out := make([]Contribution, len(order))
	for i, nuclide := range order {
		out[i] = Contribution{Nuclide: nuclide, Value: SignedQuadrature(grouped[nuclide])}
	}
	return out
}

// RelativeDifference returns |value-reference|/|reference|, or the absolute
// difference when the reference is zero.
func RelativeDifference(value, reference float64) float64 {
	if reference == 0 {
		return math.Abs(value)
	}
	return math.Abs(value-reference) / math.Abs(reference)
}

package analysis

import (
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// Vector is a concatenation of groupwise sensitivities from one case.
// Case identifies the source file and decides shared provenance in correlated mode.
type Vector struct {
	Case   string                  `json:"case"`
	IDs    []uncertain.ComponentID `json:"-"`
	Values []uncertain.Float       `json:"values"`
}

// Len returns the number of components.
func (v Vector) Len() int { return len(v.Values) }

// Nominal returns the component values.
func (v Vector) Nominal() []float64 { return uncertain.Values(v.Values) }

// Sigmas returns the component standard deviations.
func (v Vector) Sigmas() []float64 { return uncertain.Sigmas(v.Values) }

// Vars returns the components as independent variables of the case.
func (v Vector) Vars() []uncertain.Var {
	source := uncertain.CaseSource(v.Case)
	out := make([]uncertain.Var, len(v.Values))
	for i, f := range v.Values {
		out[i] = uncertain.Leaf(f.Value, f.Sigma, uncertain.Tag{Source: source, ID: v.id(i)})
	}
	return out
}

func (v Vector) id(i int) uncertain.ComponentID {
	if i < len(v.IDs) {
		return v.IDs[i]
	}
	return uncertain.ComponentID{Group: i}
}

// Contribution is the share of a similarity index, or of an uncertainty, attributed
// to one nuclide (Reaction empty) or one nuclide-reaction pair.
type Contribution struct {
	Nuclide  string          `json:"nuclide"`
	Reaction string          `json:"reaction,omitempty"`
	Value    uncertain.Float `json:"contribution"`
}

// ContributionSet is the decomposition of one application-experiment pair.
type ContributionSet struct {
	Application string          `json:"application"`
	Experiment  string          `json:"experiment"`
	Total       uncertain.Float `json:"total"`
	Nuclides    []Contribution  `json:"nuclides"`
	Reactions   []Contribution  `json:"reactions"`
}

// Nuclide returns the contribution of a nuclide.
func (cs *ContributionSet) Nuclide(nuclide string) (uncertain.Float, bool) {
	for _, c := range cs.Nuclides {
		if c.Nuclide == nuclide {
			return c.Value, true
		}
	}
	return uncertain.Zero, false
}

// Reaction returns the contribution of a nuclide-reaction pair.
func (cs *ContributionSet) Reaction(nuclide, reaction string) (uncertain.Float, bool) {
	for _, c := range cs.Reactions {
		if c.Nuclide == nuclide && c.Reaction == reaction {
			return c.Value, true
		}
	}
	return uncertain.Zero, false
}

// ReactionsOf returns the reaction contributions of a nuclide in order.
func (cs *ContributionSet) ReactionsOf(nuclide string) []Contribution {
	var out []Contribution
	for _, c := range cs.Reactions {
		if c.Nuclide == nuclide {
			out = append(out, c)
		}
	}
	return out
}

// NuclideSum returns the sum of the nominal nuclide contributions.
func (cs *ContributionSet) NuclideSum() float64 {
	var sum float64
	for _, c := range cs.Nuclides {
		sum += c.Value.Value
	}
	return sum
}

// Nested returns reaction contributions keyed by nuclide then reaction.
func (cs *ContributionSet) Nested() map[string]map[string]uncertain.Float {
	out := make(map[string]map[string]uncertain.Float, len(cs.Nuclides))
	for _, c := range cs.Nuclides {
		out[c.Nuclide] = map[string]uncertain.Float{}
	}
	for _, c := range cs.Reactions {
		if out[c.Nuclide] == nil {
			out[c.Nuclide] = map[string]uncertain.Float{}
		}
		out[c.Nuclide][c.Reaction] = c.Value
	}
	return out
}

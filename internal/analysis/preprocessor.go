package analysis

import (
	"slices"
)

// Preprocessor cleans contribution sets before they are reported
type Preprocessor struct {
	redundant []string
}

// NewPreprocessor creates a preprocessor dropping the given redundant reactions
func NewPreprocessor(redundant []string) *Preprocessor {
	return &Preprocessor{redundant: append([]string(nil), redundant...)}
}

// Process drops redundant reactions and, when allow is non-nil, everything the allowlist excludes
func (p *Preprocessor) Process(cs *ContributionSet, allow map[string][]string) *ContributionSet {
	out := p.FilterRedundant(cs)
	if allow != nil {
		out = FilterByNuclideReactions(out, allow)
	}
	return out
}

// FilterRedundant removes reactions that are sums of others (e.g. total, capture)
// so reaction contributions are not double counted. Nuclide totals are kept.
func (p *Preprocessor) FilterRedundant(cs *ContributionSet) *ContributionSet {
	out := shallowCopy(cs)
	out.Reactions = nil
	for _, c := range cs.Reactions {
		if slices.Contains(p.redundant, c.Reaction) {
			continue
		}
		out.Reactions = append(out.Reactions, c)
	}
	return out
}

// FilterByNuclideReactions keeps only the listed nuclides and, for each, the listed
// reactions. An empty reaction list keeps all reactions of that nuclide.
func FilterByNuclideReactions(cs *ContributionSet, allow map[string][]string) *ContributionSet {
	out := shallowCopy(cs)
	out.Nuclides, out.Reactions = nil, nil

	for _, c := range cs.Nuclides {
		if _, ok := allow[c.Nuclide]; ok {
			out.Nuclides = append(out.Nuclides, c)
		}
	}
	for _, c := range cs.Reactions {
		reactions, ok := allow[c.Nuclide]
		if !ok {
			continue
		}
		if len(reactions) == 0 || slices.Contains(reactions, c.Reaction) {
			out.Reactions = append(out.Reactions, c)
		}
	}
	return out
}

func shallowCopy(cs *ContributionSet) *ContributionSet {
	out := *cs
	return &out
}

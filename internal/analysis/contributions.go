package analysis

import (
	"github.com/ZanzyTHEbar/sensim/internal/sdf"
)

// Decompose splits the similarity of two cases into nuclide and nuclide-reaction
// contributions. Only region-integrated profiles are used. Every contribution is
// a manual-mode index over a sub-vector normalized by the norms of the full
// vectors, so nuclide contributions add up to the total.
//
// A nuclide present in only one case contributes (0, 0), as do all of its
// reactions. The reaction set is the one of the application's first nuclide.
func Decompose(app, exp *sdf.File) (*ContributionSet, error) {
	app, exp = app.RegionIntegrated(), exp.RegionIntegrated()

	appVec, expVec, err := AlignedVectors(app, exp, SelectAll())
	if err != nil {
		return nil, err
	}

	cs := &ContributionSet{Application: app.Path, Experiment: exp.Path}
	cs.Total, err = SimilarityIndex(appVec, expVec, Options{Mode: ModeManual})
	if err != nil {
		return nil, err
	}

	norms := NormsOf(appVec, expVec)
	opts := Options{Mode: ModeManual, Norms: norms}

	appIx, expIx := app.Index(sdf.ByName), exp.Index(sdf.ByName)

	nuclides := union(appIx.Nuclides(), expIx.Nuclides())
	sdf.SortNuclides(nuclides)

	appNuclides := appIx.Nuclides()
	sdf.SortNuclides(appNuclides)
	reactions := appIx.Reactions(appNuclides[0])

	groups := app.GroupCount
	for _, nuclide := range nuclides {
		if !appIx.Has(nuclide) || !expIx.Has(nuclide) {
			cs.Nuclides = append(cs.Nuclides, Contribution{Nuclide: nuclide})
			for _, reaction := range reactions {
				cs.Reactions = append(cs.Reactions, Contribution{Nuclide: nuclide, Reaction: reaction})
			}
			continue
		}

		own := union(appIx.Reactions(nuclide), expIx.Reactions(nuclide))
		a := subVector(app.Path, appIx, nuclide, own, groups)
		b := subVector(exp.Path, expIx, nuclide, own, groups)
		e, err := SimilarityIndex(a, b, opts)
		if err != nil {
			return nil, err
		}
		cs.Nuclides = append(cs.Nuclides, Contribution{Nuclide: nuclide, Value: e})

		for _, reaction := range reactions {
			c := Contribution{Nuclide: nuclide, Reaction: reaction}
			pa, okA := appIx.Lookup(nuclide, reaction)
			pb, okB := expIx.Lookup(nuclide, reaction)
			if okA && okB {
				c.Value, err = SimilarityIndex(
					concat(app.Path, []*sdf.Profile{pa}, groups),
					concat(exp.Path, []*sdf.Profile{pb}, groups),
					opts,
				)
				if err != nil {
					return nil, err
				}
			}
			cs.Reactions = append(cs.Reactions, c)
		}
	}
	return cs, nil
}

// subVector concatenates a nuclide's profiles in the given reaction order, with
// zeros for reactions the case lacks.
func subVector(caseID string, ix *sdf.Index, nuclide string, reactions []string, groups int) Vector {
	profiles := make([]*sdf.Profile, len(reactions))
	for i, reaction := range reactions {
		if p, ok := ix.Lookup(nuclide, reaction); ok {
			profiles[i] = p
		}
	}
	return concat(caseID, profiles, groups)
}

func union(first, second []string) []string {
	seen := make(map[string]bool, len(first)+len(second))
	out := make([]string, 0, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

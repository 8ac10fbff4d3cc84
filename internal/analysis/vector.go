package analysis

import (
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/sdf"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// AllReactions selects every profile.
const AllReactions = "all"

// Selection decides which profiles contribute to a vector.
type Selection struct {
	Reaction string `json:"reaction"`
}

// SelectAll returns the selection of every profile.
func SelectAll() Selection { return Selection{Reaction: AllReactions} }

// Matches reports whether the profile is selected.
func (s Selection) Matches(p *sdf.Profile) bool {
	return s.Reaction == "" || s.Reaction == AllReactions || p.Reaction == s.Reaction
}

func (s Selection) String() string {
	if s.Reaction == "" {
		return AllReactions
	}
	return s.Reaction
}

// BuildVector concatenates the groupwise sensitivities of the selected profiles in list order.
func BuildVector(caseID string, profiles []sdf.Profile, sel Selection) (Vector, error) {
	selected := make([]*sdf.Profile, 0, len(profiles))
	for i := range profiles {
		if sel.Matches(&profiles[i]) {
			selected = append(selected, &profiles[i])
		}
	}
	if len(selected) == 0 {
		return Vector{}, apperrors.NewSelectionEmptyError(sel.String())
	}
	return concat(caseID, selected, 0), nil
}

// concat joins profiles; a nil entry stands for a missing profile of groups zero components.
func concat(caseID string, profiles []*sdf.Profile, groups int) Vector {
	v := Vector{Case: caseID}
	for _, p := range profiles {
		if p == nil {
			for g := 0; g < groups; g++ {
				v.IDs = append(v.IDs, uncertain.ComponentID{Group: g})
				v.Values = append(v.Values, uncertain.Zero)
			}
			continue
		}
		for g, f := range p.Sensitivities {
			v.IDs = append(v.IDs, uncertain.ComponentID{Nuclide: p.Nuclide, Reaction: p.Reaction, Group: g})
			v.Values = append(v.Values, f)
		}
	}
	return v
}

// NewVector builds a vector from explicit values, e.g. synthetic or API input.
func NewVector(caseID string, values []uncertain.Float) Vector {
	ids := make([]uncertain.ComponentID, len(values))
	for i := range ids {
		ids[i] = uncertain.ComponentID{Group: i}
	}
	return Vector{Case: caseID, IDs: ids, Values: append([]uncertain.Float(nil), values...)}
}

// AlignedVectors builds the vectors of two cases over the same nuclide-reaction
// keys: the application's selected profiles in order, then those only the
// experiment has. A key missing on one side is zero on that side, which leaves
// both norms unchanged.
func AlignedVectors(app, exp *sdf.File, sel Selection) (Vector, Vector, error) {
	if app.GroupCount != exp.GroupCount {
		return Vector{}, Vector{}, apperrors.NewDimensionMismatchError(app.GroupCount, exp.GroupCount)
	}
	appIx, expIx := app.Index(sdf.ByName), exp.Index(sdf.ByName)

	keys, err := selectedKeys(app, appIx, sel)
	if err != nil {
		return Vector{}, Vector{}, err
	}
	expKeys, err := selectedKeys(exp, expIx, sel)
	if err != nil {
		return Vector{}, Vector{}, err
	}
	seen := make(map[sdf.Key]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for _, k := range expKeys {
		if !seen[k] {
			keys = append(keys, k)
		}
	}

	return lookupAll(app.Path, appIx, keys, app.GroupCount), lookupAll(exp.Path, expIx, keys, exp.GroupCount), nil
}

func selectedKeys(f *sdf.File, ix *sdf.Index, sel Selection) ([]sdf.Key, error) {
	var keys []sdf.Key
	for _, nuclide := range ix.Nuclides() {
		for _, reaction := range ix.Reactions(nuclide) {
			p, _ := ix.Lookup(nuclide, reaction)
			if sel.Matches(p) {
				keys = append(keys, sdf.Key{Nuclide: nuclide, Reaction: reaction})
			}
		}
	}
	if len(keys) == 0 {
		return nil, apperrors.NewSelectionEmptyError(sel.String() + " in " + f.Path)
	}
	return keys, nil
}

func lookupAll(caseID string, ix *sdf.Index, keys []sdf.Key, groups int) Vector {
	profiles := make([]*sdf.Profile, len(keys))
	for i, k := range keys {
		if p, ok := ix.Lookup(k.Nuclide, k.Reaction); ok {
			profiles[i] = p
		}
	}
	return concat(caseID, profiles, groups)
}

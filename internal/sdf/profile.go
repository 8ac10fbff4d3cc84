package sdf

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// Profile is one sensitivity profile of a nuclide-reaction pair in one zone.
type Profile struct {
	Nuclide  string `json:"nuclide"`
	Reaction string `json:"reaction"`
	ZAID     string `json:"zaid"`
	MT       string `json:"mt"`
	Zone     int    `json:"zone"`
	Volume   int    `json:"volume"`

	// Sensitivities is groupwise with index 0 the lowest energy group.
	Sensitivities []uncertain.Float `json:"sensitivities"`

	Integrated  uncertain.Float `json:"energy_integrated"`
	AbsSum      float64         `json:"abs_sum"`
	OppositeSum uncertain.Float `json:"opposite_sign_sum"`
}

// RegionIntegrated reports whether the profile is collapsed over all zones.
func (p *Profile) RegionIntegrated() bool {
	return p.Zone == 0 && p.Volume == 0
}

// Key returns the (nuclide, reaction) pair under the given key kind.
func (p *Profile) Key(kind KeyKind) Key {
	if kind == ByNumber {
		return Key{Nuclide: p.ZAID, Reaction: p.MT}
	}
	return Key{Nuclide: p.Nuclide, Reaction: p.Reaction}
}

// Record returns the profile as a map keyed by the given field names, which
// must follow the order nuclide, reaction, zaid, mt, zone, volume, integrated,
// absolute sum, opposite-sign sum, sensitivities. Extra names are ignored.
func (p *Profile) Record(names []string) map[string]any {
	values := []any{
		p.Nuclide, p.Reaction, p.ZAID, p.MT, p.Zone, p.Volume,
		p.Integrated, p.AbsSum, p.OppositeSum, p.Sensitivities,
	}
	record := make(map[string]any, len(names))
	for i, name := range names {
		if i >= len(values) {
			break
		}
		record[name] = values[i]
	}
	return record
}

// File is the parsed content of one sensitivity data file.
type File struct {
	Path       string    `json:"path"`
	GroupCount int       `json:"group_count"`
	Boundaries []float64 `json:"energy_boundaries"`
	Profiles   []Profile `json:"profiles"`

	fieldNames []string
}

// EnergyGroup is the energy range of one group, in eV.
type EnergyGroup struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Groups returns one energy range per group, index 0 being the lowest energy
// group like the groupwise sensitivities. Files that list only the upper edges
// get a lower edge of 0 for their lowest group.
func (f *File) Groups() []EnergyGroup {
	b := f.Boundaries
	if len(b) < f.GroupCount {
		return nil
	}
	out := make([]EnergyGroup, f.GroupCount)
	for i := range out {
		raw := f.GroupCount - 1 - i
		g := EnergyGroup{High: b[raw]}
		if raw+1 < len(b) {
			g.Low = b[raw+1]
		}
		out[i] = g
	}
	return out
}

// RegionIntegrated returns a new File holding only the region-integrated profiles.
func (f *File) RegionIntegrated() *File {
	out := &File{
		Path:       f.Path,
		GroupCount: f.GroupCount,
		Boundaries: f.Boundaries,
		fieldNames: f.fieldNames,
	}
	for i := range f.Profiles {
		if f.Profiles[i].RegionIntegrated() {
			out.Profiles = append(out.Profiles, f.Profiles[i])
		}
	}
	return out
}

// Records renders every profile with the field names the file was parsed with.
func (f *File) Records() []map[string]any {
	records := make([]map[string]any, len(f.Profiles))
	for i := range f.Profiles {
		records[i] = f.Profiles[i].Record(f.fieldNames)
	}
	return records
}

// KeyKind selects how profiles are keyed in an Index.
type KeyKind int

const (
	// ByName keys by nuclide label and reaction label, e.g. "u-235" / "fission".
	ByName KeyKind = iota
	// ByNumber keys by ZAID and reaction MT, e.g. "92235" / "18".
	ByNumber
)

// ParseKeyKind accepts "names" and "numbers".
func ParseKeyKind(s string) (KeyKind, bool) {
	switch s {
	case "", "names":
		return ByName, true
	case "numbers":
		return ByNumber, true
	}
	return ByName, false
}

// Key is a nuclide-reaction pair.
type Key struct {
	Nuclide  string `json:"nuclide"`
	Reaction string `json:"reaction"`
}

type nuclideEntry struct {
	reactions []string
	profiles  map[string]*Profile
}

// Index is a nuclide -> reaction -> profile view over a profile list.
// The first profile of a key wins; later ones are listed in Duplicates.
type Index struct {
	Kind       KeyKind
	Duplicates []Key

	nuclides []string
	entries  map[string]*nuclideEntry
}

// Index builds the two-level lookup over the file's profiles. The profile list
// itself is not modified.
func (f *File) Index(kind KeyKind) *Index {
	ix := &Index{Kind: kind, entries: make(map[string]*nuclideEntry)}
	for i := range f.Profiles {
		p := &f.Profiles[i]
		key := p.Key(kind)

		entry, ok := ix.entries[key.Nuclide]
		if !ok {
			entry = &nuclideEntry{profiles: make(map[string]*Profile)}
			ix.entries[key.Nuclide] = entry
			ix.nuclides = append(ix.nuclides, key.Nuclide)
		}
		if _, dup := entry.profiles[key.Reaction]; dup {
			ix.Duplicates = append(ix.Duplicates, key)
			continue
		}
		entry.profiles[key.Reaction] = p
		entry.reactions = append(entry.reactions, key.Reaction)
	}
	return ix
}

// Nuclides returns the nuclides in order of first appearance.
func (ix *Index) Nuclides() []string {
	return append([]string(nil), ix.nuclides...)
}

// Has reports whether the nuclide has any profile.
func (ix *Index) Has(nuclide string) bool {
	_, ok := ix.entries[nuclide]
	return ok
}

// Reactions returns the nuclide's reactions in order of first appearance.
func (ix *Index) Reactions(nuclide string) []string {
	entry, ok := ix.entries[nuclide]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.reactions...)
}

// Lookup returns the profile of a nuclide-reaction pair.
func (ix *Index) Lookup(nuclide, reaction string) (*Profile, bool) {
	entry, ok := ix.entries[nuclide]
	if !ok {
		return nil, false
	}
	p, ok := entry.profiles[reaction]
	return p, ok
}

// Len returns the number of indexed nuclide-reaction pairs.
func (ix *Index) Len() int {
	n := 0
	for _, entry := range ix.entries {
		n += len(entry.profiles)
	}
	return n
}

var atomicNumberPattern = regexp.MustCompile(`\d+`)

// AtomicNumber returns the first digit run of a nuclide label, or -1 when there is none.
func AtomicNumber(nuclide string) int {
	m := atomicNumberPattern.FindString(nuclide)
	if m == "" {
		return -1
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return -1
	}
	return n
}

// SortNuclides orders nuclide labels by atomic number, labels without a number
// last, ties by label.
func SortNuclides(nuclides []string) {
	sort.SliceStable(nuclides, func(i, j int) bool {
		ai, aj := AtomicNumber(nuclides[i]), AtomicNumber(nuclides[j])
		switch {
		case ai == aj:
			return nuclides[i] < nuclides[j]
		case ai < 0:
			return false
		case aj < 0:
			return true
		}
		return ai < aj
	})
}

package reference

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/sensim/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// Identifiers that open a covariance contribution table. Output files of a
// single calculation and of a similarity run word the title differently.
var uncertaintyIdentifiers = []string{
	"contributions to uncertainty in k-eff (% delta-k/k) by individual energy covariance matrices:",
	"contributions to uncertainty in keff ( % dk/k ) by individual energy covariance matrices:",
}

const nuclidePattern = `[a-z]{1,2}(?:-\d+)?`

var covarianceRow = regexp.MustCompile(`^\s*(` + nuclidePattern + `)\s+([A-Za-z0-9,']+)\s+(` +
	nuclidePattern + `)\s+([A-Za-z0-9,']+)\s+(\S+)\s*\+/-\s*(\S+)\s*$`)

// UncertaintyContributions is one covariance contribution table. Reactions
// pair two nuclide-reaction labels ("u-235 - u-238", "n,gamma - n,gamma");
// Nuclides aggregates them per nuclide pair by signed quadrature.
type UncertaintyContributions struct {
	Nuclides  []analysis.Contribution `json:"nuclides"`
	Reactions []analysis.Contribution `json:"reactions"`
}

func newContributions(reactions []analysis.Contribution) UncertaintyContributions {
	return UncertaintyContributions{
		Nuclides:  analysis.AggregateByNuclide(reactions),
		Reactions: reactions,
	}
}

// ParseUncertaintyTables returns every covariance contribution table in data,
// in file order.
func ParseUncertaintyTables(source string, data []byte) ([]UncertaintyContributions, error) {
	var tables []UncertaintyContributions
	s := newLineScanner(source, data)
	for s.scan() {
		if !isUncertaintyIdentifier(s.text()) {
			continue
		}
		reactions, err := covarianceTable(s)
		if err != nil {
			return nil, err
		}
		tables = append(tables, newContributions(reactions))
	}
	return tables, nil
}

// ReadUncertaintyContributions reads the first covariance contribution table of
// an output file.
func ReadUncertaintyContributions(source string, r io.Reader) (UncertaintyContributions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return UncertaintyContributions{}, apperrors.NewInternalError("failed to read output file", err)
	}
	tables, err := ParseUncertaintyTables(source, data)
	if err != nil {
		return UncertaintyContributions{}, err
	}
	if len(tables) == 0 {
		return UncertaintyContributions{}, apperrors.NewFormatError(source, 0, "no uncertainty contribution table found")
	}
	return tables[0], nil
}

func isUncertaintyIdentifier(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, id := range uncertaintyIdentifiers {
		if strings.HasPrefix(trimmed, id) {
			return true
		}
	}
	return false
}

// covarianceTable expects the "covariance matrix" pre-header, the column header
// and a dashed separator, followed by at least one data row.
func covarianceTable(s *lineScanner) ([]analysis.Contribution, error) {
	if !expectLine(s, func(l string) bool { return strings.HasPrefix(l, "covariance matrix") }) {
		return nil, apperrors.NewFormatError(s.source, s.line, "expected 'covariance matrix' after the table title")
	}
	if !expectLine(s, func(l string) bool { return strings.HasPrefix(l, "nuclide-reaction") }) {
		return nil, apperrors.NewFormatError(s.source, s.line, "expected the nuclide-reaction column header")
	}
	if !expectLine(s, func(l string) bool { return strings.Trim(strings.ReplaceAll(l, " ", ""), "-") == "" }) {
		return nil, apperrors.NewFormatError(s.source, s.line, "expected a dashed separator")
	}

	var rows []analysis.Contribution
	for s.scan() {
		if len(rows) == 0 && strings.TrimSpace(s.text()) == "" {
			continue
		}
		m := covarianceRow.FindStringSubmatch(s.text())
		if m == nil {
			s.unscan()
			break
		}
		value, err1 := strconv.ParseFloat(m[5], 64)
		sigma, err2 := strconv.ParseFloat(m[6], 64)
		if err1 != nil || err2 != nil {
			return nil, apperrors.NewFormatError(s.source, s.line, "malformed contribution value")
		}
		rows = append(rows, analysis.Contribution{
			Nuclide:  m[1] + " - " + m[3],
			Reaction: m[2] + " - " + m[4],
			Value:    uncertain.New(value, sigma),
		})
	}
	if len(rows) == 0 {
		return nil, apperrors.NewFormatError(s.source, s.line, "uncertainty contribution table has no rows")
	}
	return rows, nil
}

// expectLine skips blank lines and reports whether the next one satisfies ok.
func expectLine(s *lineScanner, ok func(trimmed string) bool) bool {
	for s.scan() {
		trimmed := strings.TrimSpace(s.text())
		if trimmed == "" {
			continue
		}
		return ok(trimmed)
	}
	return false
}

// Package sdf reads TSUNAMI-B sensitivity data files into sensitivity profiles.
package sdf

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/sensim/internal/config"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

var (
	groupCountPattern = regexp.MustCompile(`(\d+)\s+number of neutron groups`)
	realPattern       = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	intPattern        = regexp.MustCompile(`^[+-]?\d+$`)
	nuclidePattern    = regexp.MustCompile(`^[a-z]{1,2}-\d+$`)
	reactionPattern   = regexp.MustCompile(`^[A-Za-z0-9,']+$`)
	zaidPattern       = regexp.MustCompile(`^\d{1,6}$`)
	mtPattern         = regexp.MustCompile(`^\d{1,4}$`)
)

const boundariesMarker = "energy boundaries:"

// Parser turns sensitivity data file text into profiles.
type Parser struct {
	fieldNames []string
}

// NewParser returns a parser that renders records with the given field names.
// An empty list selects config.DefaultFieldNames.
func NewParser(fieldNames []string) *Parser {
	if len(fieldNames) == 0 {
		fieldNames = config.DefaultFieldNames
	}
	return &Parser{fieldNames: append([]string(nil), fieldNames...)}
}

type line struct {
	number int
	fields []string
}

type scanner struct {
	source string
	lines  []line
	pos    int
}

func newScanner(source string, data []byte) *scanner {
	s := &scanner{source: source}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		s.lines = append(s.lines, line{number: n, fields: strings.Fields(sc.Text())})
	}
	return s
}

// next returns the next non-blank line.
func (s *scanner) next() (line, bool) {
	for s.pos < len(s.lines) {
		l := s.lines[s.pos]
		s.pos++
		if len(l.fields) > 0 {
			return l, true
		}
	}
	return line{}, false
}

func (s *scanner) peek() (line, bool) {
	save := s.pos
	l, ok := s.next()
	s.pos = save
	return l, ok
}

func (s *scanner) errorf(lineNumber int, format string, args ...any) error {
	return apperrors.NewFormatError(s.source, lineNumber, fmt.Sprintf(format, args...))
}

// Parse parses the full text of one file. source names the file in errors.
func (p *Parser) Parse(source string, data []byte) (*File, error) {
	s := newScanner(source, data)

	groups, err := s.groupCount(data)
	if err != nil {
		return nil, err
	}

	boundaries, err := s.boundaries(groups)
	if err != nil {
		return nil, err
	}

	file := &File{
		Path:       source,
		GroupCount: groups,
		Boundaries: boundaries,
		fieldNames: p.fieldNames,
	}

	for {
		if _, ok := s.peek(); !ok {
			break
		}
		profile, err := s.profile(groups)
		if err != nil {
			return nil, err
		}
		file.Profiles = append(file.Profiles, profile)
	}

	if len(file.Profiles) == 0 {
		return nil, s.errorf(0, "no sensitivity profiles found")
	}
	return file, nil
}

func (s *scanner) groupCount(data []byte) (int, error) {
	m := groupCountPattern.FindSubmatch(data)
	if m == nil {
		return 0, s.errorf(0, "missing %q header", "number of neutron groups")
	}
	groups, err := strconv.Atoi(string(m[1]))
	if err != nil || groups <= 0 {
		return 0, s.errorf(0, "invalid neutron group count %q", m[1])
	}
	return groups, nil
}

// boundaries reads the real values following the marker up to the first line
// that is not made only of reals, and leaves the scanner after them.
func (s *scanner) boundaries(groups int) ([]float64, error) {
	start := -1
	var rest []string
	for i, l := range s.lines {
		joined := strings.Join(l.fields, " ")
		if idx := strings.Index(joined, boundariesMarker); idx >= 0 {
			start = i
			rest = strings.Fields(joined[idx+len(boundariesMarker):])
			break
		}
	}
	if start < 0 {
		return nil, s.errorf(0, "missing %q block", boundariesMarker)
	}
	markerLine := s.lines[start].number

	values, ok := parseReals(rest)
	if !ok {
		return nil, s.errorf(markerLine, "malformed energy boundary")
	}
	s.pos = start + 1
	for {
		l, more := s.peek()
		if !more {
			break
		}
		row, ok := parseReals(l.fields)
		if !ok {
			break
		}
		values = append(values, row...)
		s.next()
	}

	if len(values) != groups && len(values) != groups+1 {
		return nil, s.errorf(markerLine, "expected %d energy boundaries, found %d", groups+1, len(values))
	}
	return values, nil
}

func (s *scanner) profile(groups int) (Profile, error) {
	var p Profile

	id, _ := s.next()
	if len(id.fields) != 4 ||
		!nuclidePattern.MatchString(id.fields[0]) ||
		!reactionPattern.MatchString(id.fields[1]) ||
		!zaidPattern.MatchString(id.fields[2]) ||
		!mtPattern.MatchString(id.fields[3]) {
		return p, s.errorf(id.number, "malformed profile identification line %q", strings.Join(id.fields, " "))
	}
	p.Nuclide, p.Reaction, p.ZAID, p.MT = id.fields[0], id.fields[1], id.fields[2], id.fields[3]

	zone, ok := s.next()
	if !ok || len(zone.fields) != 2 || !intPattern.MatchString(zone.fields[0]) || !intPattern.MatchString(zone.fields[1]) {
		return p, s.errorf(zone.number, "malformed zone line for %s %s", p.Nuclide, p.Reaction)
	}
	p.Zone, _ = strconv.Atoi(zone.fields[0])
	p.Volume, _ = strconv.Atoi(zone.fields[1])

	tags, ok := s.next()
	if !ok || len(tags.fields) != 4 ||
		!realPattern.MatchString(tags.fields[0]) || !realPattern.MatchString(tags.fields[1]) ||
		!intPattern.MatchString(tags.fields[2]) || !intPattern.MatchString(tags.fields[3]) {
		return p, s.errorf(tags.number, "malformed profile tag line for %s %s", p.Nuclide, p.Reaction)
	}

	summary, ok := s.next()
	values, valid := parseReals(summary.fields)
	if !ok || !valid || len(values) != 5 {
		return p, s.errorf(summary.number, "malformed integrated sensitivity line for %s %s", p.Nuclide, p.Reaction)
	}
	p.Integrated = uncertain.New(values[0], values[1])
	p.AbsSum = values[2]
	p.OppositeSum = uncertain.New(values[3], values[4])

	data := make([]float64, 0, 2*groups)
	for len(data) < 2*groups {
		l, ok := s.next()
		if !ok {
			return p, s.errorf(0, "groupwise data for %s %s ends after %d of %d values", p.Nuclide, p.Reaction, len(data), 2*groups)
		}
		row, valid := parseReals(l.fields)
		if !valid || len(data)+len(row) > 2*groups {
			return p, s.errorf(l.number, "malformed groupwise data for %s %s", p.Nuclide, p.Reaction)
		}
		data = append(data, row...)
	}

	// raw order runs from the highest energy group down
	p.Sensitivities = make([]uncertain.Float, groups)
	for g := 0; g < groups; g++ {
		raw := groups - 1 - g
		p.Sensitivities[g] = uncertain.New(data[raw], data[groups+raw])
	}
	return p, nil
}

func parseReals(fields []string) ([]float64, bool) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		if !realPattern.MatchString(f) {
			return nil, false
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

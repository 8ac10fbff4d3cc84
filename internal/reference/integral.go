// Package reference reads the tables a transport code writes to its output
// file: integral similarity indices computed by the code itself and the
// contributions of covariance matrices to the k-eff uncertainty.
package reference

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// Index names of IntegralIndices, also used as comparison keys.
const (
	IndexCk       = "c_k"
	IndexETotal   = "total"
	IndexEFission = "fission"
	IndexECapture = "capture"
	IndexEScatter = "scatter"
)

// Matrix holds one value per application (row) and experiment (column).
type Matrix [][]uncertain.Float

// IntegralIndices are the integral values tables of an output file.
type IntegralIndices struct {
	Ck       Matrix `json:"c_k"`
	ETotal   Matrix `json:"e_total"`
	EFission Matrix `json:"e_fission"`
	ECapture Matrix `json:"e_capture"`
	EScatter Matrix `json:"e_scatter"`
}

// Applications returns the number of application rows.
func (ix *IntegralIndices) Applications() int { return len(ix.ETotal) }

// Experiments returns the number of experiment columns.
func (ix *IntegralIndices) Experiments() int {
	if len(ix.ETotal) == 0 {
		return 0
	}
	return len(ix.ETotal[0])
}

// E returns the similarity matrix of an index type: total, fission, capture or scatter.
func (ix *IntegralIndices) E(kind string) (Matrix, bool) {
	switch kind {
	case IndexETotal:
		return ix.ETotal, true
	case IndexEFission:
		return ix.EFission, true
	case IndexECapture:
		return ix.ECapture, true
	case IndexEScatter:
		return ix.EScatter, true
	case IndexCk:
		return ix.Ck, true
	}
	return nil, false
}

var (
	applicationHeader = regexp.MustCompile(`Integral Values for Application\s*#\s*(\d+)`)
	integralRow       = regexp.MustCompile(`^\s*(\d+)\s+(\S+)\s+(?:-\s+[A-Za-z]+\s+)?[A-Za-z]+`)
	sciNumber         = regexp.MustCompile(`^[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)
)

// blankWidth is the run of spaces that stands for an empty s.d. column.
const blankWidth = 8

// ReadIntegralIndices parses every "Integral Values for Application" table.
// The first row of each table repeats the application and is skipped. Rows hold
// value pairs; the last five are c(k), E, E(fis), E(cap) and E(sct).
func ReadIntegralIndices(source string, r io.Reader) (*IntegralIndices, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read output file", err)
	}

	var tables [][][]uncertain.Float
	s := newLineScanner(source, data)
	for s.scan() {
		if !applicationHeader.MatchString(s.text()) {
			continue
		}
		rows, err := integralTable(s)
		if err != nil {
			return nil, err
		}
		tables = append(tables, rows)
	}

	if len(tables) == 0 {
		return nil, apperrors.NewFormatError(source, s.line, "no integral values tables found")
	}

	experiments := len(tables[0])
	out := &IntegralIndices{
		Ck:       newMatrix(len(tables), experiments),
		ETotal:   newMatrix(len(tables), experiments),
		EFission: newMatrix(len(tables), experiments),
		ECapture: newMatrix(len(tables), experiments),
		EScatter: newMatrix(len(tables), experiments),
	}
	for app, rows := range tables {
		if len(rows) != experiments {
			return nil, apperrors.NewFormatError(source, 0, "application tables list different numbers of experiments")
		}
		for exp, pairs := range rows {
			n := len(pairs)
			out.Ck[app][exp] = pairs[n-5]
			out.ETotal[app][exp] = pairs[n-4]
			out.EFission[app][exp] = pairs[n-3]
			out.ECapture[app][exp] = pairs[n-2]
			out.EScatter[app][exp] = pairs[n-1]
		}
	}
	return out, nil
}

func newMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]uncertain.Float, cols)
	}
	return m
}

// integralTable reads the rows following an application header up to the
// first line that is neither a row nor table decoration.
func integralTable(s *lineScanner) ([][]uncertain.Float, error) {
	var rows [][]uncertain.Float
	for s.scan() {
		line := s.text()
		trimmed := strings.TrimSpace(line)
		if isDecoration(trimmed) && len(rows) == 0 {
			continue
		}

		loc := integralRow.FindStringIndex(line)
		if loc == nil {
			s.unscan()
			break
		}
		pairs, err := valuePairs(line[loc[1]:])
		if err != nil || len(pairs) < 6 {
			return nil, apperrors.NewFormatError(s.source, s.line, "malformed integral values row")
		}
		rows = append(rows, pairs)
	}
	if len(rows) < 2 {
		return nil, apperrors.NewFormatError(s.source, s.line, "integral values table without experiments")
	}
	// first row repeats the application as experiment 0
	return rows[1:], nil
}

func isDecoration(trimmed string) bool {
	return trimmed == "" ||
		strings.Trim(trimmed, "-") == "" ||
		strings.HasPrefix(trimmed, "Experiment") ||
		strings.HasPrefix(trimmed, "Type")
}

// valuePairs reads (value, s.d.) pairs where a run of at least blankWidth spaces
// in place of an s.d. reads as zero.
func valuePairs(rest string) ([]uncertain.Float, error) {
	var pairs []uncertain.Float
	pos := 0
	for {
		pos = skipSpaces(rest, pos)
		if pos >= len(rest) {
			return pairs, nil
		}
		value, next, err := number(rest, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		spaces := skipSpaces(rest, pos) - pos
		var sd float64
		if spaces >= blankWidth || pos+spaces >= len(rest) {
			pos += spaces
		} else {
			sd, pos, err = number(rest, pos+spaces)
			if err != nil {
				return nil, err
			}
		}
		pairs = append(pairs, uncertain.New(value, sd))
	}
}

func skipSpaces(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t' || s[pos] == '\r') {
		pos++
	}
	return pos
}

func number(s string, pos int) (float64, int, error) {
	m := sciNumber.FindString(s[pos:])
	if m == "" {
		return 0, pos, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, pos, err
	}
	return v, pos + len(m), nil
}

type lineScanner struct {
	source string
	sc     *bufio.Scanner
	line   int
	again  bool
}

func newLineScanner(source string, data []byte) *lineScanner {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &lineScanner{source: source, sc: sc}
}

func (s *lineScanner) scan() bool {
	if s.again {
		s.again = false
		return true
	}
	if !s.sc.Scan() {
		return false
	}
	s.line++
	return true
}

// unscan makes the next scan return the current line again.
func (s *lineScanner) unscan() { s.again = true }

func (s *lineScanner) text() string { return s.sc.Text() }

// Package uncertain provides values carrying a standard uncertainty: a plain
// scalar pair for closed-form propagation and a provenance-tracked variable for
// exact first-order propagation with correlations.
package uncertain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float is a nominal value with a standard deviation.
type Float struct {
	Value float64 `json:"value"`
	Sigma float64 `json:"sigma"`
}

// New returns a Float with a non-negative sigma.
func New(value, sigma float64) Float {
	return Float{Value: value, Sigma: math.Abs(sigma)}
}

// Zero is the defined contribution of a term that does not participate.
var Zero = Float{}

// String renders the value in v+/-s form.
func (f Float) String() string {
	return fmt.Sprintf("%g+/-%g", f.Value, f.Sigma)
}

// Format renders the value with a fixed number of significant digits, e.g. 9.981E-01+/-1.20E-03.
func (f Float) Format(valueDigits, sigmaDigits int) string {
	return fmt.Sprintf("%.*E+/-%.*E", valueDigits, f.Value, sigmaDigits, f.Sigma)
}

// RelativeSigma returns sigma/|value|, or 0 for a zero value.
func (f Float) RelativeSigma() float64 {
	if f.Value == 0 {
		return 0
	}
	return f.Sigma / math.Abs(f.Value)
}

// IsZero reports whether both value and sigma are exactly zero.
func (f Float) IsZero() bool {
	return f.Value == 0 && f.Sigma == 0
}

// ParseFloat parses "v+/-s" or a bare "v" (sigma 0).
func ParseFloat(s string) (Float, error) {
	s = strings.TrimSpace(s)
	valuePart, sigmaPart, found := strings.Cut(s, "+/-")

	value, err := strconv.ParseFloat(strings.TrimSpace(valuePart), 64)
	if err != nil {
		return Float{}, fmt.Errorf("parse value %q: %w", s, err)
	}
	if !found {
		return Float{Value: value}, nil
	}

	sigma, err := strconv.ParseFloat(strings.TrimSpace(sigmaPart), 64)
	if err != nil {
		return Float{}, fmt.Errorf("parse sigma %q: %w", s, err)
	}
	return New(value, sigma), nil
}

// ParseFloats parses every entry with ParseFloat.
func ParseFloats(values []string) ([]Float, error) {
	out := make([]Float, len(values))
	for i, v := range values {
		f, err := ParseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// Values returns the nominal values of fs.
func Values(fs []Float) []float64 {
	out := make([]float64, len(fs))
	for i, f := range fs {
		out[i] = f.Value
	}
	return out
}

// Sigmas returns the standard deviations of fs.
func Sigmas(fs []Float) []float64 {
	out := make([]float64, len(fs))
	for i, f := range fs {
		out[i] = f.Sigma
	}
	return out
}

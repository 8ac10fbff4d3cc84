package reference

import (
	"os"

	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/sdf"
)

// ReadIntegralIndicesFile validates path and reads the integral values tables
// of the output file it names.
func ReadIntegralIndicesFile(path string) (*IntegralIndices, error) {
	abs, err := sdf.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, apperrors.NewValidationError("cannot open output file", abs)
	}
	defer apperrors.SafeClose(f, abs)
	return ReadIntegralIndices(abs, f)
}

// ReadUncertaintyContributionsFile validates path and reads the first
// covariance contribution table of the output file it names.
func ReadUncertaintyContributionsFile(path string) (UncertaintyContributions, error) {
	abs, err := sdf.NormalizePath(path)
	if err != nil {
		return UncertaintyContributions{}, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return UncertaintyContributions{}, apperrors.NewValidationError("cannot open output file", abs)
	}
	defer apperrors.SafeClose(f, abs)
	return ReadUncertaintyContributions(abs, f)
}

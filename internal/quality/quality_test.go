package quality_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/domain"
	"edihub/internal/quality"
)

// expected mirrors the priority table with set membership instead of the
// flags walk used by Reduce.
func expected(set map[domain.Quality]bool) domain.CalculatedQuality {
	rest := map[domain.Quality]bool{}
	for q := range set {
		if q != domain.QualityUnspecified {
			rest[q] = true
		}
	}
	switch {
	case len(rest) == 0:
		return domain.CalculatedNotAvailable
	case len(rest) == 1 && rest[domain.QualityMissing]:
		return domain.CalculatedMissing
	case rest[domain.QualityMissing]:
		return domain.CalculatedIncomplete
	case rest[domain.QualityEstimated]:
		return domain.CalculatedEstimated
	case rest[domain.QualityMeasured]:
		return domain.CalculatedMeasured
	case rest[domain.QualityCalculated]:
		return domain.CalculatedCalculated
	}
	return domain.CalculatedNotAvailable
}

func TestReducePowerSet(t *testing.T) {
	all := domain.Qualities()
	for mask := 1; mask < 1<<len(all); mask++ {
		var flags []domain.Quality
		set := map[domain.Quality]bool{}
		for i, q := range all {
			if mask&(1<<i) != 0 {
				flags = append(flags, q)
				set[q] = true
			}
		}
		got, err := quality.Reduce(flags)
		require.NoError(t, err, "flags %v", flags)
		assert.Equal(t, expected(set), got, "flags %v", flags)

		reversed := make([]domain.Quality, len(flags))
		for i := range flags {
			reversed[len(flags)-1-i] = flags[i]
		}
		again, err := quality.Reduce(reversed)
		require.NoError(t, err)
		assert.Equal(t, got, again, "order must not matter for %v", flags)
	}
}

func TestReduceTable(t *testing.T) {
	cases := []struct {
		name  string
		flags []domain.Quality
		want  domain.CalculatedQuality
	}{
		{"only unspecified", []domain.Quality{domain.QualityUnspecified}, domain.CalculatedNotAvailable},
		{"missing", []domain.Quality{domain.QualityMissing}, domain.CalculatedMissing},
		{"missing and unspecified", []domain.Quality{domain.QualityMissing, domain.QualityUnspecified}, domain.CalculatedMissing},
		{"missing and measured", []domain.Quality{domain.QualityMissing, domain.QualityMeasured}, domain.CalculatedIncomplete},
		{"estimated wins over measured", []domain.Quality{domain.QualityMeasured, domain.QualityEstimated}, domain.CalculatedEstimated},
		{"measured wins over calculated", []domain.Quality{domain.QualityCalculated, domain.QualityMeasured}, domain.CalculatedMeasured},
		{"calculated", []domain.Quality{domain.QualityCalculated}, domain.CalculatedCalculated},
		{"duplicates", []domain.Quality{domain.QualityMissing, domain.QualityMissing}, domain.CalculatedMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := quality.Reduce(tc.flags)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReduceRejectsEmptyAndUnknown(t *testing.T) {
	_, err := quality.Reduce(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = quality.Reduce([]domain.Quality{"Guessed"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestWorst(t *testing.T) {
	assert.Equal(t, domain.CalculatedMeasured, quality.Worst([]domain.CalculatedQuality{domain.CalculatedMeasured, domain.CalculatedCalculated}))
	assert.Equal(t, domain.CalculatedIncomplete, quality.Worst([]domain.CalculatedQuality{domain.CalculatedMeasured, domain.CalculatedMissing}))
	assert.Equal(t, domain.CalculatedMissing, quality.Worst([]domain.CalculatedQuality{domain.CalculatedMissing, domain.CalculatedMissing}))
	assert.Equal(t, domain.CalculatedNotAvailable, quality.Worst(nil))
}

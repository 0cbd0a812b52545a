// Package quality reduces the raw per-point quality flags of a calculation
// result into the single quality stated on an outgoing document.
package quality

import (
	"fmt"

	"edihub/internal/domain"
)

var ErrNoQualities = fmt.Errorf("%w: at least one quality flag is required", domain.ErrValidation)

// Reduce returns the calculated quality for one point. Unspecified is a
// technical marker and is ignored before the priority rules apply.
func Reduce(flags []domain.Quality) (domain.CalculatedQuality, error) {
	if len(flags) == 0 {
		return "", ErrNoQualities
	}
	var missing, estimated, measured, calculated, others bool
	for _, f := range flags {
		switch f {
		case domain.QualityUnspecified:
		case domain.QualityMissing:
			missing = true
		case domain.QualityEstimated:
			estimated, others = true, true
		case domain.QualityMeasured:
			measured, others = true, true
		case domain.QualityCalculated:
			calculated, others = true, true
		default:
			return "", fmt.Errorf("%w: unknown quality flag %q", domain.ErrValidation, f)
		}
	}
	switch {
	case !missing && !others:
		return domain.CalculatedNotAvailable, nil
	case missing && !others:
		return domain.CalculatedMissing, nil
	case missing:
		return domain.CalculatedIncomplete, nil
	case estimated:
		return domain.CalculatedEstimated, nil
	case measured:
		return domain.CalculatedMeasured, nil
	case calculated:
		return domain.CalculatedCalculated, nil
	}
	return domain.CalculatedNotAvailable, nil
}

// ReduceSeries reduces every point and returns one quality per point, in order.
func ReduceSeries(points []domain.Point) ([]domain.CalculatedQuality, error) {
	res := make([]domain.CalculatedQuality, len(points))
	for i, p := range points {
		q, err := Reduce(p.Qualities)
		if err != nil {
			return nil, fmt.Errorf("point %d (%s): %w", i+1, p.Time.Format("2006-01-02T15:04Z07:00"), err)
		}
		res[i] = q
	}
	return res, nil
}

// Worst folds per-point qualities into the quality of a whole series:
// any Missing/Incomplete mix yields Incomplete, otherwise the lowest ranked
// quality wins.
func Worst(qs []domain.CalculatedQuality) domain.CalculatedQuality {
	if len(qs) == 0 {
		return domain.CalculatedNotAvailable
	}
	worst := qs[0]
	for _, q := range qs[1:] {
		worst = combine(worst, q)
	}
	return worst
}

var rank = map[domain.CalculatedQuality]int{
	domain.CalculatedCalculated:   0,
	domain.CalculatedMeasured:     1,
	domain.CalculatedEstimated:    2,
	domain.CalculatedIncomplete:   3,
	domain.CalculatedMissing:      4,
	domain.CalculatedNotAvailable: 5,
}

func combine(a, b domain.CalculatedQuality) domain.CalculatedQuality {
	if a == b {
		return a
	}
	if a == domain.CalculatedMissing || b == domain.CalculatedMissing {
		return domain.CalculatedIncomplete
	}
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

// Package timeseries splits calculation time series into gap-free segments,
// each of which becomes one outgoing document.
package timeseries

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"edihub/internal/domain"
)

var ErrSegmenterConsumed = errors.New("segment sequence already consumed")

// OrderError reports a point whose time does not come after its predecessor.
type OrderError struct {
	Position int
	Previous string
	Current  string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("point %d at %s does not follow %s", e.Position, e.Current, e.Previous)
}

func (e *OrderError) Unwrap() error { return domain.ErrValidation }

type Segment struct {
	Period domain.Period
	Points []domain.Point
}

// Segments lazily walks points in the given order and yields maximal runs in
// which every point starts exactly one resolution after the previous one.
// The sequence can be ranged over once; a second range yields
// ErrSegmenterConsumed. Iteration stops at the first ordering defect.
func Segments(points []domain.Point, resolution domain.Resolution) iter.Seq2[Segment, error] {
	var consumed atomic.Bool
	return func(yield func(Segment, error) bool) {
		if consumed.Swap(true) {
			yield(Segment{}, ErrSegmenterConsumed)
			return
		}
		if len(points) == 0 {
			return
		}
		if !resolution.Valid() {
			yield(Segment{}, fmt.Errorf("%w: unsupported resolution %q", domain.ErrValidation, resolution))
			return
		}
		start := 0
		for i := 1; i < len(points); i++ {
			prev, cur := points[i-1].Time, points[i].Time
			if !cur.After(prev) {
				yield(Segment{}, &OrderError{
					Position: i + 1,
					Previous: prev.Format("2006-01-02T15:04:05Z07:00"),
					Current:  cur.Format("2006-01-02T15:04:05Z07:00"),
				})
				return
			}
			if cur.Equal(resolution.Next(prev)) {
				continue
			}
			if !yield(newSegment(points[start:i], resolution), nil) {
				return
			}
			start = i
		}
		yield(newSegment(points[start:], resolution), nil)
	}
}

func newSegment(points []domain.Point, resolution domain.Resolution) Segment {
	return Segment{
		Period: domain.Period{
			Start: points[0].Time,
			End:   resolution.Next(points[len(points)-1].Time),
		},
		Points: slices.Clone(points),
	}
}

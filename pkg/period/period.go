// Package period implements the closed-interval algebra used by enrollments.
package period

import (
	"sort"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
)

// MinPeriod and MaxPeriod are sentinels meaning "since forever" and "until
// further notice", not real dates.
var (
	MinPeriod = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxPeriod = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Resolution is the granularity periods are stored at.
const Resolution = time.Minute

// BoundsPolicy selects what Validate does with dates outside the sentinels.
type BoundsPolicy int

const (
	RejectOutOfBounds BoundsPolicy = iota
	ClampOutOfBounds
)

// Period is an inclusive [Start, End] interval in UTC.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Full is the whole representable range.
func Full() Period {
	return Period{Start: MinPeriod, End: MaxPeriod}
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Resolution)
}

// Validate builds a Period from nullable bounds.
func Validate(start, end *time.Time, policy BoundsPolicy) (Period, error) {
	if start == nil {
		return Period{}, errors.InvalidValue("START_DATE_NONE_ERROR", "'start' date cannot be None")
	}
	if end == nil {
		return Period{}, errors.InvalidValue("END_DATE_NONE_ERROR", "'end' date cannot be None")
	}

	p := Period{Start: normalize(*start), End: normalize(*end)}

	if policy == ClampOutOfBounds {
		p = p.clamp()
	} else {
		if !InBounds(p.Start) {
			return Period{}, errors.InvalidValuef("START_DATE_OUT_OF_BOUNDS_ERROR",
				"'start' date %s is out of bounds", p.Start.Format(time.RFC3339))
		}
		if !InBounds(p.End) {
			return Period{}, errors.InvalidValuef("END_DATE_OUT_OF_BOUNDS_ERROR",
				"'end' date %s is out of bounds", p.End.Format(time.RFC3339))
		}
	}

	if p.Start.After(p.End) {
		return Period{}, errors.InvalidValuef("PERIOD_INVALID_ERROR",
			"'start' date %s cannot be greater than %s", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	}
	return p, nil
}

// WithDefaults fills missing bounds with the sentinels and validates.
func WithDefaults(start, end *time.Time) (Period, error) {
	if start == nil {
		start = &MinPeriod
	}
	if end == nil {
		end = &MaxPeriod
	}
	return Validate(start, end, RejectOutOfBounds)
}

func InBounds(t time.Time) bool {
	return !t.Before(MinPeriod) && !t.After(MaxPeriod)
}

func (p Period) clamp() Period {
	if p.Start.Before(MinPeriod) {
		p.Start = MinPeriod
	}
	if p.Start.After(MaxPeriod) {
		p.Start = MaxPeriod
	}
	if p.End.Before(MinPeriod) {
		p.End = MinPeriod
	}
	if p.End.After(MaxPeriod) {
		p.End = MaxPeriod
	}
	return p
}

// Overlaps reports whether p and o share at least one point.
func (p Period) Overlaps(o Period) bool {
	return !maxTime(p.Start, o.Start).After(minTime(p.End, o.End))
}

// Contains reports whether o lies entirely inside p.
func (p Period) Contains(o Period) bool {
	return !o.Start.Before(p.Start) && !o.End.After(p.End)
}

func (p Period) Equal(o Period) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// Subtract returns the parts of p left after removing cut. The cut bounds
// become the new bounds of the remaining pieces.
func (p Period) Subtract(cut Period) []Period {
	if !p.Overlaps(cut) {
		return []Period{p}
	}
	var out []Period
	if p.Start.Before(cut.Start) {
		out = append(out, Period{Start: p.Start, End: cut.Start})
	}
	if cut.End.Before(p.End) {
		out = append(out, Period{Start: cut.End, End: p.End})
	}
	return out
}

// Merge collapses a bag of periods into the minimal ordered set of disjoint
// periods covering the same points. With excludeLimits, a sentinel start
// (MinPeriod) or end (MaxPeriod) overlapping a tighter period takes the
// tighter endpoint instead of widening the result.
func Merge(periods []Period, excludeLimits bool) ([]Period, error) {
	if len(periods) == 0 {
		return nil, nil
	}

	sorted := make([]Period, 0, len(periods))
	for _, p := range periods {
		if p.Start.After(p.End) {
			p.Start, p.End = p.End, p.Start
		}
		if !InBounds(p.Start) || !InBounds(p.End) {
			return nil, errors.InvalidValuef("PERIOD_OUT_OF_BOUNDS_ERROR",
				"period %s - %s is out of bounds", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
		}
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var merged []Period
	acc := sorted[0]
	for _, p := range sorted[1:] {
		if p.Start.After(acc.End) {
			merged = append(merged, acc)
			acc = p
			continue
		}
		if excludeLimits && acc.Start.Equal(MinPeriod) {
			acc.Start = p.Start
		}
		if excludeLimits && (p.End.Equal(MaxPeriod) || acc.End.Equal(MaxPeriod)) {
			acc.End = minTime(acc.End, p.End)
		} else {
			acc.End = maxTime(acc.End, p.End)
		}
	}
	return append(merged, acc), nil
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

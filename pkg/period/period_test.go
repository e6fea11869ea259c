package period

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func p(start, end time.Time) Period {
	return Period{Start: start, End: end}
}

func TestValidate(t *testing.T) {
	before := date(1850, 1, 1)
	after := date(2200, 1, 1)
	a := date(2000, 1, 1)
	b := date(2001, 1, 1)

	tests := []struct {
		name      string
		start     *time.Time
		end       *time.Time
		policy    BoundsPolicy
		expected  Period
		errorName string
	}{
		{name: "valid", start: &a, end: &b, expected: p(a, b)},
		{name: "equal bounds", start: &a, end: &a, expected: p(a, a)},
		{name: "nil start", end: &b, errorName: "START_DATE_NONE_ERROR"},
		{name: "nil end", start: &a, errorName: "END_DATE_NONE_ERROR"},
		{name: "inverted", start: &b, end: &a, errorName: "PERIOD_INVALID_ERROR"},
		{name: "start out of bounds", start: &before, end: &a, errorName: "START_DATE_OUT_OF_BOUNDS_ERROR"},
		{name: "end out of bounds", start: &a, end: &after, errorName: "END_DATE_OUT_OF_BOUNDS_ERROR"},
		{name: "clamped", start: &before, end: &after, policy: ClampOutOfBounds, expected: Full()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.start, tt.end, tt.policy)
			if tt.errorName != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.CodeValue))
				var regErr *errors.Error
				require.ErrorAs(t, err, &regErr)
				assert.Equal(t, tt.errorName, regErr.Meta["error"])
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "expected %v got %v", tt.expected, got)
		})
	}
}

func TestValidateTruncatesToMinutes(t *testing.T) {
	start := time.Date(2000, 1, 1, 10, 30, 45, 0, time.FixedZone("x", 3600))
	got, err := Validate(&start, &start, RejectOutOfBounds)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2000, 1, 1, 9, 30, 0, 0, time.UTC), got.Start)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Period
		expected bool
	}{
		{"disjoint", p(date(2000, 1, 1), date(2001, 1, 1)), p(date(2002, 1, 1), date(2003, 1, 1)), false},
		{"touching", p(date(2000, 1, 1), date(2001, 1, 1)), p(date(2001, 1, 1), date(2003, 1, 1)), true},
		{"nested", p(date(2000, 1, 1), date(2010, 1, 1)), p(date(2002, 1, 1), date(2003, 1, 1)), true},
		{"partial", p(date(2000, 1, 1), date(2005, 1, 1)), p(date(2002, 1, 1), date(2008, 1, 1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.expected, tt.b.Overlaps(tt.a))
		})
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name          string
		input         []Period
		excludeLimits bool
		expected      []Period
	}{
		{
			name:     "empty",
			input:    nil,
			expected: nil,
		},
		{
			name: "disjoint are kept in order",
			input: []Period{
				p(date(2005, 1, 1), date(2006, 1, 1)),
				p(date(2000, 1, 1), date(2001, 1, 1)),
			},
			expected: []Period{
				p(date(2000, 1, 1), date(2001, 1, 1)),
				p(date(2005, 1, 1), date(2006, 1, 1)),
			},
		},
		{
			name: "overlapping are joined",
			input: []Period{
				p(date(2000, 1, 1), date(2003, 1, 1)),
				p(date(2002, 1, 1), date(2006, 1, 1)),
				p(date(2004, 1, 1), date(2005, 1, 1)),
			},
			expected: []Period{p(date(2000, 1, 1), date(2006, 1, 1))},
		},
		{
			name: "sentinels absorbed by tighter bounds",
			input: []Period{
				p(MinPeriod, date(2010, 1, 1)),
				p(date(2008, 1, 1), MaxPeriod),
			},
			excludeLimits: true,
			expected:      []Period{p(date(2008, 1, 1), date(2010, 1, 1))},
		},
		{
			name: "sentinels absorbed and adjacent kept separate",
			input: []Period{
				p(MinPeriod, date(2010, 1, 1)),
				p(date(2008, 1, 1), date(2010, 1, 1)),
				p(date(2010, 1, 2), MaxPeriod),
			},
			excludeLimits: true,
			expected: []Period{
				p(date(2008, 1, 1), date(2010, 1, 1)),
				p(date(2010, 1, 2), MaxPeriod),
			},
		},
		{
			name:          "full bounds absorbed into nested period",
			input:         []Period{Full(), p(date(2008, 1, 1), date(2010, 1, 1))},
			excludeLimits: true,
			expected:      []Period{p(date(2008, 1, 1), date(2010, 1, 1))},
		},
		{
			name: "sentinels widen without exclude limits",
			input: []Period{
				p(MinPeriod, date(2010, 1, 1)),
				p(date(2008, 1, 1), MaxPeriod),
			},
			expected: []Period{Full()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.input, tt.excludeLimits)
			require.NoError(t, err)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.True(t, tt.expected[i].Equal(got[i]), "period %d: expected %v got %v", i, tt.expected[i], got[i])
			}
		})
	}
}

func TestMergeOutOfBounds(t *testing.T) {
	_, err := Merge([]Period{p(date(1800, 1, 1), date(2000, 1, 1))}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeValue))
}

// covered reports whether day d lies inside any of periods.
func covered(periods []Period, d time.Time) bool {
	for _, per := range periods {
		if !d.Before(per.Start) && !d.After(per.End) {
			return true
		}
	}
	return false
}

func TestMergePreservesUnionAndIsDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := date(2000, 1, 1)

	for iter := 0; iter < 200; iter++ {
		var input []Period
		for i := 0; i < 1+rng.Intn(6); i++ {
			s := base.AddDate(0, 0, rng.Intn(60))
			e := s.AddDate(0, 0, rng.Intn(20))
			input = append(input, p(s, e))
		}

		merged, err := Merge(input, false)
		require.NoError(t, err)

		for i := 1; i < len(merged); i++ {
			assert.True(t, merged[i-1].End.Before(merged[i].Start), "merged periods must be disjoint")
		}
		for d := 0; d < 90; d++ {
			day := base.AddDate(0, 0, d)
			assert.Equal(t, covered(input, day), covered(merged, day), "coverage mismatch at %s", day)
		}
	}
}

func TestSubtract(t *testing.T) {
	whole := p(date(2000, 1, 1), date(2010, 1, 1))

	assert.Equal(t, []Period{whole}, whole.Subtract(p(date(2011, 1, 1), date(2012, 1, 1))))
	assert.Empty(t, whole.Subtract(Full()))

	parts := whole.Subtract(p(date(2003, 1, 1), date(2005, 1, 1)))
	require.Len(t, parts, 2)
	assert.Equal(t, p(date(2000, 1, 1), date(2003, 1, 1)), parts[0])
	assert.Equal(t, p(date(2005, 1, 1), date(2010, 1, 1)), parts[1])
}

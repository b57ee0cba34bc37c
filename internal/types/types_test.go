package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddMonths(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{"first of month", day(2025, 1, 1), 1, day(2025, 2, 1)},
		{"month end clamps", day(2025, 1, 31), 1, day(2025, 2, 28)},
		{"leap year", day(2024, 1, 31), 1, day(2024, 2, 29)},
		{"thirty day month", day(2025, 3, 31), 1, day(2025, 4, 30)},
		{"across year", day(2025, 11, 30), 3, day(2026, 2, 28)},
		{"no clamp needed", day(2025, 1, 31), 2, day(2025, 3, 31)},
		{"zero months", day(2025, 5, 17), 0, day(2025, 5, 17)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := AddMonths(c.from, c.n)
			assert.True(t, c.want.Equal(got), "got %s, want %s", got, c.want)
		})
	}
}

func TestDateRangeContains(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	end := AddMonths(start, 1)
	r := DateRange{Start: start, End: &end}

	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(end))
	assert.False(t, r.Contains(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, DateRange{Start: start}.Contains(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
}

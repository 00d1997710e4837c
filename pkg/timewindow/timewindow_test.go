package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)

func testResolver() *Resolver {
	return &Resolver{Now: func() time.Time { return testNow }}
}

func TestResolve_RelativeMagnitude(t *testing.T) {
	tests := []struct {
		expr string
		want time.Duration
	}{
		{"-10 days", 10 * 24 * time.Hour},
		{"-1 week", 7 * 24 * time.Hour},
		{"1 week", 7 * 24 * time.Hour}, // bare offset as start means "ago"
		{"-36h", 36 * time.Hour},
		{"-90 days", 90 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			w, err := testResolver().Resolve(tt.expr, "now", false)
			require.NoError(t, err)

			assert.Equal(t, tt.want, w.End.Sub(w.Start))
			assert.Equal(t, testNow, w.End)
		})
	}
}

func TestResolve_Defaults(t *testing.T) {
	w, err := testResolver().Resolve("", "", false)
	require.NoError(t, err)

	assert.Equal(t, testNow, w.End)
	assert.Equal(t, 90*24*time.Hour, w.End.Sub(w.Start))
}

func TestResolve_MidnightWholeDays(t *testing.T) {
	w, err := testResolver().Resolve("", "", true)
	require.NoError(t, err)

	// Both bounds at the start of a UTC calendar day.
	for _, bound := range []time.Time{w.Start, w.End} {
		h, m, s := bound.Clock()
		assert.Zero(t, h)
		assert.Zero(t, m)
		assert.Zero(t, s)
	}

	// The default midnight window covers 89 complete days.
	days := w.End.Sub(w.Start).Hours() / 24
	assert.Equal(t, 89.0, days)
}

func TestResolve_Absolute(t *testing.T) {
	tests := []struct {
		expr string
		want time.Time
	}{
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"20240102", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			w, err := testResolver().Resolve(tt.expr, "now", false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.Start)
		})
	}
}

func TestResolve_InvalidExpression(t *testing.T) {
	_, err := testResolver().Resolve("not a date", "now", false)
	require.ErrorIs(t, err, ErrInvalidExpression)

	_, err = testResolver().Resolve("-10 fortnights", "now", false)
	require.ErrorIs(t, err, ErrInvalidExpression)
}

func TestResolve_InvalidRange(t *testing.T) {
	// Start after end.
	_, err := testResolver().Resolve("2024-06-01", "2024-05-01", false)
	require.ErrorIs(t, err, ErrInvalidRange)

	// Equal bounds after midnight flooring.
	_, err = testResolver().Resolve("2024-05-01T08:00:00Z", "2024-05-01T20:00:00Z", true)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestResolve_MidnightSameZone(t *testing.T) {
	w, err := testResolver().Resolve("-3 days", "now", true)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, w.Start.Location())
	assert.Equal(t, time.UTC, w.End.Location())
	assert.Equal(t, 3*24*time.Hour, w.End.Sub(w.Start))
}

package eventmodels

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestTimeSeries(t *testing.T) {
	t.Run("rolls to the last value at or before the query", func(t *testing.T) {
		ts := NewTimeSeries()
		ts.AddPoint(day(2), 10)
		ts.AddPoint(day(5), 20)

		assert.Equal(t, 10.0, ts.ValueAt(day(2), RollTypeLast))
		assert.Equal(t, 10.0, ts.ValueAt(day(4), RollTypeLast))
		assert.Equal(t, 20.0, ts.ValueAt(day(9), RollTypeLast))
		assert.True(t, math.IsNaN(ts.ValueAt(day(1), RollTypeLast)))
	})

	t.Run("exact roll only matches the exact date", func(t *testing.T) {
		ts := NewTimeSeries()
		ts.AddPoint(day(2), 10)

		assert.Equal(t, 10.0, ts.ValueAt(day(2), RollTypeExact))
		assert.True(t, math.IsNaN(ts.ValueAt(day(3), RollTypeExact)))
	})

	t.Run("out of order writes keep the series sorted", func(t *testing.T) {
		ts := NewTimeSeries()
		ts.AddPoint(day(5), 50)
		ts.AddPoint(day(2), 20)
		ts.AddPoint(day(3), 30)

		dates, values := ts.Values()
		require.Len(t, dates, 3)
		assert.Equal(t, []float64{20, 30, 50}, values)
		assert.True(t, dates[0].Before(dates[1]) && dates[1].Before(dates[2]))
	})

	t.Run("a write at an existing date replaces the value", func(t *testing.T) {
		ts := NewTimeSeries()
		ts.AddPoint(day(2), 10)
		ts.AddPoint(day(2), 15)

		assert.Equal(t, 1, ts.Len())
		assert.Equal(t, 15.0, ts.ValueAt(day(2), RollTypeExact))
	})

	t.Run("sum range skips NaN entries", func(t *testing.T) {
		ts := NewTimeSeries()
		ts.AddPoint(day(2), 10)
		ts.AddPoint(day(3), math.NaN())
		ts.AddPoint(day(4), 5)
		ts.AddPoint(day(9), 100)

		assert.Equal(t, 15.0, ts.SumRange(day(1), day(5)))
	})

	t.Run("latest", func(t *testing.T) {
		ts := NewTimeSeries()
		_, _, ok := ts.Latest()
		assert.False(t, ok)

		ts.AddPoint(day(2), 10)
		ts.AddPoint(day(5), 20)

		date, value, ok := ts.Latest()
		require.True(t, ok)
		assert.Equal(t, day(5), date)
		assert.Equal(t, 20.0, value)
	})
}

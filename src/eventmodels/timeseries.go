package eventmodels

import (
	"math"
	"sort"
	"sync"
	"time"
)

type SeriesType int

const (
	SeriesTypeLast SeriesType = iota
	SeriesTypeBid
	SeriesTypeAsk
	SeriesTypeCarry
)

type RollType int

const (
	RollTypeExact RollType = iota
	RollTypeLast
)

const DefaultProvider = "default"

// TimeSeries is a sorted, point-in-time series of float64 values. Writes at
// an existing timestamp replace the value; lookups with RollTypeLast return
// the latest value at or before the query time.
type TimeSeries struct {
	mu     sync.RWMutex
	dates  []time.Time
	values []float64
}

func NewTimeSeries() *TimeSeries {
	return &TimeSeries{}
}

func (ts *TimeSeries) AddPoint(date time.Time, value float64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	i := sort.Search(len(ts.dates), func(i int) bool { return !ts.dates[i].Before(date) })
	if i < len(ts.dates) && ts.dates[i].Equal(date) {
		ts.values[i] = value
		return
	}

	ts.dates = append(ts.dates, time.Time{})
	ts.values = append(ts.values, 0)
	copy(ts.dates[i+1:], ts.dates[i:])
	copy(ts.values[i+1:], ts.values[i:])
	ts.dates[i] = date
	ts.values[i] = value
}

// ValueAt returns NaN when no point satisfies the roll.
func (ts *TimeSeries) ValueAt(date time.Time, roll RollType) float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	i := sort.Search(len(ts.dates), func(i int) bool { return ts.dates[i].After(date) })
	if i == 0 {
		return math.NaN()
	}

	if roll == RollTypeExact && !ts.dates[i-1].Equal(date) {
		return math.NaN()
	}

	return ts.values[i-1]
}

// SumRange adds all values with start <= date <= end, skipping NaN and Inf
// entries.
func (ts *TimeSeries) SumRange(start, end time.Time) float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	sum := 0.0
	for i, d := range ts.dates {
		if d.Before(start) || d.After(end) {
			continue
		}
		if v := ts.values[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			sum += v
		}
	}
	return sum
}

func (ts *TimeSeries) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.dates)
}

func (ts *TimeSeries) Latest() (time.Time, float64, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if len(ts.dates) == 0 {
		return time.Time{}, 0, false
	}
	return ts.dates[len(ts.dates)-1], ts.values[len(ts.values)-1], true
}

// Values returns a copy of the raw points in date order.
func (ts *TimeSeries) Values() ([]time.Time, []float64) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	dates := make([]time.Time, len(ts.dates))
	values := make([]float64, len(ts.values))
	copy(dates, ts.dates)
	copy(values, ts.values)
	return dates, values
}

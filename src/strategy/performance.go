package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// Performance summarizes a strategy's committed AUM series.
type Performance struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	TotalReturn    float64   `json:"total_return"`
	Volatility     float64   `json:"volatility"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	Observations   int       `json:"observations"`
	AnnualizeRatio float64   `json:"annualize_ratio"`
}

const tradingDaysPerYear = 252.0

// ComputePerformance derives return statistics from the AUM series between
// start and end. Needs at least two observations with a positive opening
// level.
func (s *Strategy) ComputePerformance(start, end time.Time) (*Performance, error) {
	dates, values := s.aum.Values()

	var sampleDates []time.Time
	var sample []float64
	for i, d := range dates {
		if d.Before(start) || d.After(end) {
			continue
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		sampleDates = append(sampleDates, d)
		sample = append(sample, values[i])
	}

	if len(sample) < 2 {
		return nil, fmt.Errorf("ComputePerformance: strategy %d: need at least 2 AUM points, have %d", s.ID, len(sample))
	}
	if sample[0] <= 0 {
		return nil, fmt.Errorf("ComputePerformance: strategy %d: opening AUM %f is not positive", s.ID, sample[0])
	}

	returns := make([]float64, 0, len(sample)-1)
	for i := 1; i < len(sample); i++ {
		if sample[i-1] <= 0 {
			continue
		}
		returns = append(returns, sample[i]/sample[i-1]-1)
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return nil, fmt.Errorf("ComputePerformance: strategy %d: %w", s.ID, err)
	}

	stdev, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return nil, fmt.Errorf("ComputePerformance: strategy %d: %w", s.ID, err)
	}

	perf := &Performance{
		Start:          sampleDates[0],
		End:            sampleDates[len(sampleDates)-1],
		TotalReturn:    sample[len(sample)-1]/sample[0] - 1,
		Volatility:     stdev * math.Sqrt(tradingDaysPerYear),
		MaxDrawdown:    maxDrawdown(sample),
		Observations:   len(sample),
		AnnualizeRatio: tradingDaysPerYear,
	}

	if stdev > 0 {
		perf.SharpeRatio = mean / stdev * math.Sqrt(tradingDaysPerYear)
	}

	return perf, nil
}

func maxDrawdown(levels []float64) float64 {
	peak := levels[0]
	worst := 0.0
	for _, level := range levels {
		if level > peak {
			peak = level
		}
		if peak > 0 {
			if dd := level/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

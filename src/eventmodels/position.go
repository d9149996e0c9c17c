package eventmodels

import (
	"fmt"
	"math"
	"time"
)

// UnitTolerance is the threshold below which a position unit is treated as
// flat and normalized to exactly zero.
const UnitTolerance = 1e-7

func NormalizeUnit(unit float64) float64 {
	if math.Abs(unit) < UnitTolerance {
		return 0
	}
	return unit
}

// Position is a point-in-time snapshot of a holding. Snapshots are write-once:
// any later change appends a new snapshot at a later timestamp, never mutates
// a superseded one.
type Position struct {
	PortfolioID            int       `json:"portfolio_id"`
	InstrumentID           int       `json:"instrument_id"`
	Unit                   float64   `json:"unit"`
	Timestamp              time.Time `json:"timestamp"`
	Strike                 float64   `json:"strike"`
	StrikeTimestamp        time.Time `json:"strike_timestamp"`
	InitialStrike          float64   `json:"initial_strike"`
	InitialStrikeTimestamp time.Time `json:"initial_strike_timestamp"`
	Aggregated             bool      `json:"aggregated"`
}

func NewPosition(portfolioID, instrumentID int, unit float64, timestamp time.Time, strike float64, strikeTimestamp time.Time, initialStrike float64, initialStrikeTimestamp time.Time, aggregated bool) *Position {
	return &Position{
		PortfolioID:            portfolioID,
		InstrumentID:           instrumentID,
		Unit:                   NormalizeUnit(unit),
		Timestamp:              timestamp,
		Strike:                 strike,
		StrikeTimestamp:        strikeTimestamp,
		InitialStrike:          initialStrike,
		InitialStrikeTimestamp: initialStrikeTimestamp,
		Aggregated:             aggregated,
	}
}

func (p *Position) String() string {
	return fmt.Sprintf("position portfolio=%d instrument=%d unit=%f strike=%f timestamp=%s aggregated=%v", p.PortfolioID, p.InstrumentID, p.Unit, p.Strike, p.Timestamp.Format(time.RFC3339), p.Aggregated)
}

func (p *Position) Equals(other *Position) bool {
	if other == nil {
		return false
	}

	return p.PortfolioID == other.PortfolioID &&
		p.InstrumentID == other.InstrumentID &&
		p.Unit == other.Unit &&
		p.Timestamp.Equal(other.Timestamp) &&
		p.Strike == other.Strike &&
		p.StrikeTimestamp.Equal(other.StrikeTimestamp) &&
		p.InitialStrike == other.InitialStrike &&
		p.InitialStrikeTimestamp.Equal(other.InitialStrikeTimestamp) &&
		p.Aggregated == other.Aggregated
}

func (p *Position) Copy() *Position {
	c := *p
	return &c
}

// Value returns the notional of the position at the supplied price. A NaN
// price yields NaN; callers filter such contributions instead of failing.
func (p *Position) Value(price float64) float64 {
	return p.Unit * price
}

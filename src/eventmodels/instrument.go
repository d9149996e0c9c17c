package eventmodels

import "fmt"

type InstrumentType int

const (
	InstrumentTypeSecurity InstrumentType = iota
	InstrumentTypeReserve
	InstrumentTypePortfolio
	InstrumentTypeStrategy
)

func (t InstrumentType) String() string {
	switch t {
	case InstrumentTypeSecurity:
		return "security"
	case InstrumentTypeReserve:
		return "reserve"
	case InstrumentTypePortfolio:
		return "portfolio"
	case InstrumentTypeStrategy:
		return "strategy"
	default:
		return "unknown"
	}
}

// FundingType determines the strike semantics of a position: TotalReturn
// instruments are funded at full notional, ExcessReturn instruments only
// realize the PnL basis.
type FundingType int

const (
	FundingTypeTotalReturn FundingType = iota
	FundingTypeExcessReturn
)

type PositionType int

const (
	PositionTypeLong PositionType = iota
	PositionTypeShort
)

func (t PositionType) String() string {
	if t == PositionTypeShort {
		return "short"
	}
	return "long"
}

type DayCountConvention int

const (
	DayCountAct360 DayCountConvention = iota
	DayCountAct365
)

// YearFraction returns the elapsed fraction of a year between two dates under
// the convention.
func (d DayCountConvention) YearFraction(elapsedDays float64) float64 {
	if d == DayCountAct365 {
		return elapsedDays / 365.0
	}
	return elapsedDays / 360.0
}

// Instrument is reference data for anything tradable. Nested portfolios and
// strategies that drive a portfolio carry the driven portfolio's ID in
// PortfolioID; everything else leaves it zero.
type Instrument struct {
	ID             int
	Symbol         string
	Name           string
	InstrumentType InstrumentType
	Currency       Currency
	FundingType    FundingType
	DayCount       DayCountConvention
	PortfolioID    int
	StrategyID     int
}

func (i *Instrument) String() string {
	return fmt.Sprintf("%s (%d)", i.Symbol, i.ID)
}

// HasPortfolio reports whether the instrument represents a nested portfolio,
// either directly or through a strategy that drives one. Positions in such
// instruments carry a binary unit; the sizing lives in the AUM series.
func (i *Instrument) HasPortfolio() bool {
	return i.PortfolioID != 0
}

func (i *Instrument) IsStrategy() bool {
	return i.InstrumentType == InstrumentTypeStrategy
}

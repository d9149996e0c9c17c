package eventmodels

import "time"

// IRepository is the persistent storage collaborator. All calls are
// synchronous and may block; the core only invokes them from the owning
// strategy's goroutine, never from the in-memory propagation algorithms.
type IRepository interface {
	LoadPositions(portfolioID int, date time.Time) ([]*Position, error)
	LoadOrders(portfolioID int, date time.Time) ([]*Order, error)
	SaveNewPositions(portfolioID int, positions []*Position) error
	UpdateOrder(order *Order) error
	LastPositionTimestamp(portfolioID int, date time.Time) (time.Time, error)
	FirstPositionTimestamp(portfolioID int, date time.Time) (time.Time, error)
	GetProperty(instrumentID int, name string) (string, error)
	SetProperty(instrumentID int, name, value string) error
}

// IMarketData supplies externally looked-up time series values. Missing data
// is reported as NaN, never as an error: consumers skip NaN contributions.
type IMarketData interface {
	GetValue(instrumentID int, date time.Time, seriesType SeriesType, provider string, roll RollType) float64
	FXRate(from, to Currency, date time.Time) float64
}

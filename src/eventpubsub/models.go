package eventpubsub

import "time"

// Mutation events carry enough information for a remote viewer to reconstruct
// the change.

type PositionUpdatedEvent struct {
	PortfolioID  int       `json:"portfolio_id"`
	InstrumentID int       `json:"instrument_id"`
	Unit         float64   `json:"unit"`
	Strike       float64   `json:"strike"`
	Timestamp    time.Time `json:"timestamp"`
	Aggregated   bool      `json:"aggregated"`
	AddNew       bool      `json:"add_new"`
}

type OrderUpdatedEvent struct {
	OrderID      string    `json:"order_id"`
	PortfolioID  int       `json:"portfolio_id"`
	InstrumentID int       `json:"instrument_id"`
	Unit         float64   `json:"unit"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Aggregated   bool      `json:"aggregated"`
}

type PropertyChangedEvent struct {
	InstrumentID int       `json:"instrument_id"`
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}

type AUMUpdatedEvent struct {
	StrategyID int       `json:"strategy_id"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

package eventmodels

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusNew         OrderStatus = "new"
	OrderStatusSubmitted   OrderStatus = "submitted"
	OrderStatusExecuted    OrderStatus = "executed"
	OrderStatusBooked      OrderStatus = "booked"
	OrderStatusNotExecuted OrderStatus = "not_executed"
)

// IsTerminal reports whether no further transition is legal.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusBooked || s == OrderStatusNotExecuted
}

// IsOpen reports whether the order still counts towards open exposure.
func (s OrderStatus) IsOpen() bool {
	return !s.IsTerminal()
}

// CanTransition reports whether moving to the target status is legal. Statuses
// advance monotonically; re-applying the current status is allowed so repeated
// delivery of the same event stays idempotent.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s == to {
		return true
	}

	switch s {
	case OrderStatusNew:
		return to == OrderStatusSubmitted || to == OrderStatusExecuted || to == OrderStatusNotExecuted
	case OrderStatusSubmitted:
		return to == OrderStatusExecuted || to == OrderStatusNotExecuted
	case OrderStatusExecuted:
		return to == OrderStatusBooked
	default:
		return false
	}
}

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Order records trade intent. Aggregated=false is the owning record;
// Aggregated=true mirrors live in ancestor portfolios under the same ID and
// stay numerically synchronized with the sum of matching child orders.
type Order struct {
	ID             string      `json:"id"`
	PortfolioID    int         `json:"portfolio_id"`
	InstrumentID   int         `json:"instrument_id"`
	Unit           float64     `json:"unit"`
	OrderDate      time.Time   `json:"order_date"`
	ExecutionDate  time.Time   `json:"execution_date"`
	Type           OrderType   `json:"type"`
	Limit          float64     `json:"limit"`
	Status         OrderStatus `json:"status"`
	ExecutionLevel float64     `json:"execution_level"`
	Aggregated     bool        `json:"aggregated"`
	Client         string      `json:"client"`
	Destination    string      `json:"destination"`
	Account        string      `json:"account"`
}

func NewOrder(portfolioID, instrumentID int, unit float64, orderDate time.Time, orderType OrderType, limit float64) *Order {
	return &Order{
		ID:             uuid.NewString(),
		PortfolioID:    portfolioID,
		InstrumentID:   instrumentID,
		Unit:           unit,
		OrderDate:      orderDate,
		Type:           orderType,
		Limit:          limit,
		Status:         OrderStatusNew,
		ExecutionLevel: math.NaN(),
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("order %s portfolio=%d instrument=%d unit=%f status=%s aggregated=%v", o.ID, o.PortfolioID, o.InstrumentID, o.Unit, o.Status, o.Aggregated)
}

func (o *Order) Equals(other *Order) bool {
	if other == nil {
		return false
	}

	return o.PortfolioID == other.PortfolioID &&
		o.InstrumentID == other.InstrumentID &&
		o.OrderDate.Equal(other.OrderDate) &&
		o.Aggregated == other.Aggregated &&
		o.Unit == other.Unit
}

// Mirror returns an aggregated copy of the order held by an ancestor
// portfolio, sharing the owning order's ID.
func (o *Order) Mirror(portfolioID int) *Order {
	m := *o
	m.PortfolioID = portfolioID
	m.Aggregated = true
	return &m
}

func (o *Order) Copy() *Order {
	c := *o
	return &c
}

// UpdateWeightedUnitExecutionLevel amends the order additively before booking,
// re-weighting the average execution level by the incremental fill.
func (o *Order) UpdateWeightedUnitExecutionLevel(unitDelta, executionLevel float64) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("order %s: cannot amend a %s order", o.ID, o.Status)
	}

	if executionLevel < 0 {
		return fmt.Errorf("order %s: negative execution level %f", o.ID, executionLevel)
	}

	newUnit := o.Unit + unitDelta
	if newUnit != 0 {
		oldLevel := o.ExecutionLevel
		if math.IsNaN(oldLevel) {
			oldLevel = 0
		}
		o.ExecutionLevel = (oldLevel*o.Unit + executionLevel*unitDelta) / newUnit
	}
	o.Unit = newUnit

	return nil
}

package portfolio

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
	"github.com/jiaming2012/portfolio-kernel/src/eventpubsub"
)

// CreateOrder records trade intent against an instrument. Sub-tolerance units
// clamp to zero but the order is still recorded, so downstream booking can
// close it out cleanly. A second market order for the same instrument on the
// same day merges into the existing open one instead of creating a duplicate.
func (p *Portfolio) CreateOrder(instrument *eventmodels.Instrument, unit float64, orderDate time.Time, orderType eventmodels.OrderType, limit float64) (*eventmodels.Order, error) {
	if instrument == nil {
		return nil, fmt.Errorf("CreateOrder: portfolio %d: nil instrument", p.ID)
	}

	if math.IsNaN(unit) || math.IsInf(unit, 0) {
		return nil, fmt.Errorf("CreateOrder: portfolio %d instrument %s: %w", p.ID, instrument, ErrInvalidUnit)
	}

	unit = eventmodels.NormalizeUnit(unit)
	if p.config.UnitRounding == UnitRoundingWhole && !instrument.HasPortfolio() {
		unit = math.Round(unit)
	}

	// Orders on a nested strategy size the strategy's AUM, not a unit count.
	// The AUM delta is parked on the strategy's order series and the order
	// itself carries the delta for tree propagation.
	if nested := p.nestedPortfolio(instrument); nested != nil {
		if s := nested.Strategy(); s != nil && unit != 0 {
			if err := s.UpdateAUMOrder(orderDate, unit); err != nil {
				return nil, fmt.Errorf("CreateOrder: portfolio %d strategy %d: %w", p.ID, s.GetID(), err)
			}
		}
	}

	if orderType == eventmodels.OrderTypeMarket {
		for _, existing := range p.orders.FindOpenOrders(instrument, orderDate, false) {
			if existing.Type != eventmodels.OrderTypeMarket || existing.Status != eventmodels.OrderStatusNew || !dayOf(existing.OrderDate).Equal(dayOf(orderDate)) {
				continue
			}

			p.orders.mutate(existing, func(o *eventmodels.Order) {
				o.Unit = eventmodels.NormalizeUnit(o.Unit + unit)
			})
			p.orders.markDirty(existing)
			p.UpdateAggregatedOrderTree(existing, unit)
			p.publishOrder(existing)
			return existing, nil
		}
	}

	order := eventmodels.NewOrder(p.ID, instrument.ID, unit, orderDate, orderType, limit)
	p.orders.AddOrderMemory(order)
	p.UpdateAggregatedOrderTree(order, order.Unit)
	p.publishOrder(order)

	return order, nil
}

// SubmitOrders moves every order still in the new state on date's order day to
// submitted, tree-wide.
func (p *Portfolio) SubmitOrders(date time.Time) {
	for _, byID := range p.orders.OpenOrders(date, false) {
		for _, order := range byID {
			if order.Status != eventmodels.OrderStatusNew {
				continue
			}
			if err := p.UpdateOrderTree(order, eventmodels.OrderStatusSubmitted, math.NaN(), math.NaN(), time.Time{}); err != nil {
				log.Errorf("SubmitOrders: portfolio %d: order %s: %v", p.ID, order.ID, err)
			}
		}
	}
}

// UpdateOrderTree applies a status change, and optionally amended unit and
// execution details, to an order and every mirror of it in the tree. Unit is
// ignored when NaN. Re-applying an identical update is a no-op, so duplicate
// fill notifications are harmless.
func (p *Portfolio) UpdateOrderTree(order *eventmodels.Order, status eventmodels.OrderStatus, unit, executionLevel float64, executionDate time.Time) error {
	held := p.orders.FindOrder(order.ID, order.Aggregated)
	if held == nil {
		return fmt.Errorf("UpdateOrderTree: portfolio %d: order %s: %w", p.ID, order.ID, ErrOrderNotFound)
	}

	if status == eventmodels.OrderStatusExecuted && !math.IsNaN(executionLevel) && executionLevel < 0 {
		return fmt.Errorf("UpdateOrderTree: portfolio %d: order %s: execution level %f: %w", p.ID, order.ID, executionLevel, ErrNegativeExecutionLevel)
	}

	if p.orderUpdateIsNoop(held, status, unit, executionLevel) {
		return nil
	}

	if !held.Status.CanTransition(status) {
		return fmt.Errorf("UpdateOrderTree: portfolio %d: order %s: %s -> %s: %w", p.ID, order.ID, held.Status, status, ErrInvalidTransition)
	}

	unitDiff := 0.0
	if !math.IsNaN(unit) {
		unitDiff = unit - held.Unit
	}

	// A booked order seen here as an aggregated mirror means the status change
	// originated above the owner. Fan the update down to whichever descendant
	// owns the direct record so the whole family converges.
	if held.Aggregated {
		for _, child := range p.Children() {
			target := child.orders.FindOrder(order.ID, false)
			if target == nil {
				target = child.orders.FindOrder(order.ID, true)
			}
			if target == nil {
				continue
			}
			if err := child.UpdateOrderTree(target, status, unit, executionLevel, executionDate); err != nil {
				return err
			}
		}
	}

	p.applyOrderUpdate(held, status, unit, executionLevel, executionDate)

	// Upward: every ancestor mirror shifts by the same unit delta and adopts
	// the same status and execution details.
	for ancestor := p.Parent(); ancestor != nil; ancestor = ancestor.Parent() {
		mirror := ancestor.orders.FindOrder(order.ID, true)
		if mirror == nil {
			continue
		}

		mirrorUnit := math.NaN()
		if unitDiff != 0 {
			mirrorUnit = mirror.Unit + unitDiff
		}
		ancestor.applyOrderUpdate(mirror, status, mirrorUnit, executionLevel, executionDate)
	}

	if mirror := p.orders.FindOrder(order.ID, true); mirror != nil && !held.Aggregated {
		mirrorUnit := math.NaN()
		if unitDiff != 0 {
			mirrorUnit = mirror.Unit + unitDiff
		}
		p.applyOrderUpdate(mirror, status, mirrorUnit, executionLevel, executionDate)
	}

	return nil
}

func (p *Portfolio) orderUpdateIsNoop(held *eventmodels.Order, status eventmodels.OrderStatus, unit, executionLevel float64) bool {
	if held.Status != status {
		return false
	}
	if !math.IsNaN(unit) && unit != held.Unit {
		return false
	}
	if !math.IsNaN(executionLevel) && executionLevel != held.ExecutionLevel {
		return false
	}
	return true
}

// applyOrderUpdate mutates the held record in place. Status is written last:
// observers keyed on the status field must never see it flip before the
// execution details are in place.
func (p *Portfolio) applyOrderUpdate(order *eventmodels.Order, status eventmodels.OrderStatus, unit, executionLevel float64, executionDate time.Time) {
	p.orders.mutate(order, func(o *eventmodels.Order) {
		if !math.IsNaN(unit) {
			o.Unit = unit
		}

		switch status {
		case eventmodels.OrderStatusExecuted:
			o.ExecutionLevel = executionLevel
			o.ExecutionDate = executionDate
		case eventmodels.OrderStatusNotExecuted:
			o.ExecutionDate = executionDate
		}

		o.Status = status
	})

	p.orders.markDirty(order)
	p.publishOrder(order)
}

func (p *Portfolio) publishOrder(order *eventmodels.Order) {
	timestamp := order.ExecutionDate
	if timestamp.IsZero() {
		timestamp = order.OrderDate
	}

	eventpubsub.Publish(eventpubsub.TopicOrderUpdated, eventpubsub.OrderUpdatedEvent{
		OrderID:      order.ID,
		PortfolioID:  order.PortfolioID,
		InstrumentID: order.InstrumentID,
		Unit:         order.Unit,
		Status:       string(order.Status),
		Timestamp:    timestamp,
		Aggregated:   order.Aggregated,
	})
}

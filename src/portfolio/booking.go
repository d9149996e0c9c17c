package portfolio

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// BookOrders converts the day's executed orders into position changes at
// timestamp. Orders that cannot be booked do not halt the batch: a missing
// fill level keeps the order open for a later pass, while a blocked or failed
// nested commit rejects the order and leaves settled AUM untouched.
func (p *Portfolio) BookOrders(timestamp time.Time) {
	for _, byID := range p.orders.OpenOrders(timestamp, false) {
		for _, order := range byID {
			if err := p.bookOrder(order, timestamp); err != nil {
				log.Errorf("BookOrders: portfolio %d: order %s: %v", p.ID, order.ID, err)
			}
		}
	}
}

func (p *Portfolio) bookOrder(order *eventmodels.Order, timestamp time.Time) error {
	if order.Status == eventmodels.OrderStatusBooked {
		return fmt.Errorf("%w", ErrDoubleBooking)
	}

	instrument := p.instrument(order.InstrumentID)
	if instrument == nil {
		return fmt.Errorf("bookOrder: unknown instrument %d", order.InstrumentID)
	}

	nested := p.nestedPortfolio(instrument)

	// A zero-unit order has no position effect; close it out immediately.
	if order.Unit == 0 && nested == nil {
		if order.Status != eventmodels.OrderStatusExecuted {
			if err := p.UpdateOrderTree(order, eventmodels.OrderStatusExecuted, math.NaN(), 0, timestamp); err != nil {
				return err
			}
		}
		return p.UpdateOrderTree(order, eventmodels.OrderStatusBooked, math.NaN(), math.NaN(), timestamp)
	}

	if nested != nil {
		if s := nested.Strategy(); s != nil {
			return p.bookStrategyOrder(order, nested, s, timestamp)
		}
	}

	if order.Status != eventmodels.OrderStatusExecuted {
		return nil
	}

	if math.IsNaN(order.ExecutionLevel) {
		return fmt.Errorf("bookOrder: instrument %s: executed order has no execution level, leaving open", instrument)
	}

	// A reserve-currency order is a cash conversion, not a holding change. It
	// goes through the rebalancer so the balance stays on a single leg and
	// flips at a zero crossing instead of driving one leg negative.
	if p.IsReserve(instrument) {
		value := order.Unit * p.reservePrice(instrument, timestamp)
		if _, err := p.UpdateReservePosition(timestamp, value, instrument.Currency, false); err != nil {
			return fmt.Errorf("bookOrder: reserve %s: %w", instrument, err)
		}
		return p.UpdateOrderTree(order, eventmodels.OrderStatusBooked, math.NaN(), math.NaN(), timestamp)
	}

	oldUnit := 0.0
	if old := p.positions.findLatestSnapshot(instrument.ID, timestamp, false); old != nil {
		oldUnit = old.Unit
	}

	if _, err := p.CreatePosition(instrument, timestamp, oldUnit+order.Unit, order.ExecutionLevel); err != nil {
		return fmt.Errorf("bookOrder: instrument %s: %w", instrument, err)
	}

	return p.UpdateOrderTree(order, eventmodels.OrderStatusBooked, math.NaN(), math.NaN(), timestamp)
}

// bookStrategyOrder commits a pending AUM change into the nested strategy. The
// commit is deferred while the strategy's own tree still carries open risk
// orders, so the new AUM never prices off half-settled holdings. A failed
// commit rejects the order instead of leaving the books torn.
func (p *Portfolio) bookStrategyOrder(order *eventmodels.Order, nested *Portfolio, s IStrategy, timestamp time.Time) error {
	day := dayOf(timestamp)

	aumChange := s.GetOrderAUMChange(timestamp)
	if aumChange == 0 {
		if order.Status != eventmodels.OrderStatusExecuted {
			if err := p.UpdateOrderTree(order, eventmodels.OrderStatusExecuted, math.NaN(), 0, timestamp); err != nil {
				return err
			}
		}
		return p.UpdateOrderTree(order, eventmodels.OrderStatusBooked, math.NaN(), math.NaN(), timestamp)
	}

	nested.UpdatePositions(timestamp)

	// An unresolved descendant order blocks the commit. The order is rejected
	// but the pending change stays parked on the order series, so the next pass
	// sizes and re-issues against the same target.
	if nested.hasOpenRiskOrders(timestamp) {
		log.Debugf("bookOrder: portfolio %d: strategy %d still has open risk orders, deferring AUM commit", p.ID, s.GetID())
		return p.UpdateOrderTree(order, eventmodels.OrderStatusNotExecuted, math.NaN(), math.NaN(), timestamp)
	}

	currentAUM := s.GetAUM(day) + s.GetAggregatedAUMChanges(day, timestamp)
	targetAUM := currentAUM + aumChange

	if order.Status != eventmodels.OrderStatusExecuted {
		if err := p.UpdateOrderTree(order, eventmodels.OrderStatusExecuted, math.NaN(), math.Abs(targetAUM), timestamp); err != nil {
			return err
		}
	}

	if err := s.UpdateAUM(timestamp, targetAUM, true); err != nil {
		if uerr := p.UpdateOrderTree(order, eventmodels.OrderStatusNotExecuted, math.NaN(), math.NaN(), timestamp); uerr != nil {
			log.Errorf("bookOrder: portfolio %d: order %s: reject after failed commit: %v", p.ID, order.ID, uerr)
		}
		return fmt.Errorf("bookOrder: strategy %d: commit AUM %f: %w", s.GetID(), targetAUM, err)
	}

	// Funding leaves the parent and arrives in the child. The child side is
	// settled by the notional retarget inside UpdateAUM; here the parent's
	// reserve gives up the same amount, converted into its own currency.
	parentChange := aumChange
	if nested.Currency != p.Currency {
		rate := p.market.FXRate(nested.Currency, p.Currency, timestamp)
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate == 0 {
			log.Warnf("bookOrder: portfolio %d: no %s/%s rate at %s, using 1.0", p.ID, nested.Currency, p.Currency, timestamp.Format(time.RFC3339))
			rate = 1.0
		}
		parentChange = aumChange * rate
	}

	if _, err := p.UpdateReservePosition(timestamp, -parentChange, p.Currency, false); err != nil {
		return fmt.Errorf("bookOrder: strategy %d: fund transfer: %w", s.GetID(), err)
	}

	s.SetOrderAUMChangePoint(day, 0)

	if pos := p.positions.findLatestSnapshot(order.InstrumentID, timestamp, false); pos == nil || pos.Unit == 0 {
		instrument := p.instrument(order.InstrumentID)
		if _, err := p.createPosition(instrument, timestamp, 1, math.Abs(targetAUM), createOptions{updateIfExists: true, updateStrategy: false}); err != nil {
			return fmt.Errorf("bookOrder: strategy %d: open wrapper position: %w", s.GetID(), err)
		}
	}

	return p.UpdateOrderTree(order, eventmodels.OrderStatusBooked, math.NaN(), math.NaN(), timestamp)
}

// hasOpenRiskOrders reports whether this portfolio or any descendant still has
// a non-terminal order on a non-reserve instrument at date.
func (p *Portfolio) hasOpenRiskOrders(date time.Time) bool {
	for instrumentID := range p.orders.OpenOrders(date, false) {
		if !p.IsReserve(p.instrument(instrumentID)) {
			return true
		}
	}

	for _, child := range p.Children() {
		if child.hasOpenRiskOrders(date) {
			return true
		}
	}

	return false
}

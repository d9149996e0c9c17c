package portfolio

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// GetReservePosition returns the live cash leg for a currency: the long leg if
// it carries units, otherwise the short leg.
func (p *Portfolio) GetReservePosition(currency eventmodels.Currency, date time.Time) *eventmodels.Position {
	if long := p.Reserve(currency, eventmodels.PositionTypeLong); long != nil {
		if pos := p.FindPosition(long, date, false); pos != nil {
			return pos
		}
	}

	if short := p.Reserve(currency, eventmodels.PositionTypeShort); short != nil {
		if pos := p.FindPosition(short, date, false); pos != nil {
			return pos
		}
	}

	return nil
}

// reservePrice values one unit of a reserve leg off its own series. A missing
// print degrades to par with a warning rather than poisoning the rebalance.
func (p *Portfolio) reservePrice(reserve *eventmodels.Instrument, date time.Time) float64 {
	price := p.market.GetValue(reserve.ID, date, eventmodels.SeriesTypeLast, eventmodels.DefaultProvider, eventmodels.RollTypeLast)
	if math.IsNaN(price) || math.IsInf(price, 0) || price == 0 {
		log.Warnf("reservePrice: portfolio %d reserve %s at %s: no price, using 1.0", p.ID, reserve, date.Format(time.RFC3339))
		return 1.0
	}
	return price
}

// UpdateReservePosition applies a cash flow to the currency's reserve. The
// balance lives on exactly one leg at a time: a zero crossing closes the
// current leg and opens the opposite one in the same operation. updateAll also
// rolls the other currencies' legs to date so every reserve resolves at the
// same timestamp.
func (p *Portfolio) UpdateReservePosition(date time.Time, updateValue float64, currency eventmodels.Currency, updateAll bool) (*eventmodels.Position, error) {
	if math.IsNaN(updateValue) || math.IsInf(updateValue, 0) {
		return nil, fmt.Errorf("UpdateReservePosition: portfolio %d %s: update value %f: %w", p.ID, currency, updateValue, ErrInvalidUnit)
	}

	longLeg := p.Reserve(currency, eventmodels.PositionTypeLong)
	shortLeg := p.Reserve(currency, eventmodels.PositionTypeShort)
	if longLeg == nil || shortLeg == nil {
		return nil, fmt.Errorf("UpdateReservePosition: portfolio %d %s: %w", p.ID, currency, ErrNoReserve)
	}

	currentUnit := 0.0
	if pos := p.positions.findLatestSnapshot(longLeg.ID, date, false); pos != nil {
		currentUnit += pos.Unit
	}
	if pos := p.positions.findLatestSnapshot(shortLeg.ID, date, false); pos != nil {
		currentUnit += pos.Unit
	}

	price := p.reservePrice(longLeg, date)
	newUnit := eventmodels.NormalizeUnit(currentUnit + updateValue/price)

	target, other := longLeg, shortLeg
	if newUnit < 0 {
		target, other = shortLeg, longLeg
	}

	pos, err := p.createPosition(target, date, newUnit, newUnit, createOptions{updateIfExists: true})
	if err != nil {
		return nil, fmt.Errorf("UpdateReservePosition: portfolio %d %s: %w", p.ID, currency, err)
	}

	if old := p.positions.findLatestSnapshot(other.ID, date, false); old != nil && old.Unit != 0 {
		if _, err := p.createPosition(other, date, 0, 0, createOptions{updateIfExists: true}); err != nil {
			return nil, fmt.Errorf("UpdateReservePosition: portfolio %d %s: close %s leg: %w", p.ID, currency, other.Symbol, err)
		}
	}

	if updateAll {
		p.rollOtherReserves(date, currency)
	}

	return pos, nil
}

func (p *Portfolio) rollOtherReserves(date time.Time, except eventmodels.Currency) {
	p.reserveMu.RLock()
	currencies := make([]eventmodels.Currency, 0, len(p.reserves))
	for currency := range p.reserves {
		if currency != except {
			currencies = append(currencies, currency)
		}
	}
	p.reserveMu.RUnlock()

	for _, currency := range currencies {
		for _, positionType := range []eventmodels.PositionType{eventmodels.PositionTypeLong, eventmodels.PositionTypeShort} {
			leg := p.Reserve(currency, positionType)
			if leg == nil {
				continue
			}
			old := p.positions.findLatestSnapshot(leg.ID, date, false)
			if old == nil || old.Unit == 0 || old.Timestamp.Equal(date) {
				continue
			}
			if _, err := p.createPosition(leg, date, old.Unit, math.NaN(), createOptions{
				updateIfExists:      true,
				onlyUpdateTimestamp: true,
			}); err != nil {
				log.Errorf("UpdateReservePosition: portfolio %d: roll %s %s leg: %v", p.ID, currency, positionType, err)
			}
		}
	}
}

// UpdateNotional retargets the portfolio's total value to notional by topping
// up or draining its base currency reserve. With onlyUpdateTimestamp the
// holdings are rolled to date unchanged.
func (p *Portfolio) UpdateNotional(date time.Time, notional float64, onlyUpdateTimestamp bool) error {
	p.UpdatePositions(date)

	if onlyUpdateTimestamp {
		return nil
	}

	if math.IsNaN(notional) || math.IsInf(notional, 0) {
		return fmt.Errorf("UpdateNotional: portfolio %d: notional %f: %w", p.ID, notional, ErrInvalidUnit)
	}

	current := p.Value(date, false)

	// Nested plain portfolios scale with their parent's allotment. Strategy
	// books are excluded: their sizing only moves through booked AUM orders.
	if current > 0 && notional != current {
		factor := notional / current
		for _, pos := range p.positions.latestPositions(date, false) {
			nested := p.nestedPortfolio(p.instrument(pos.InstrumentID))
			if nested == nil || nested.Strategy() != nil {
				continue
			}
			nestedValue := nested.Value(date, false)
			if err := nested.UpdateNotional(date, nestedValue*factor, false); err != nil {
				return fmt.Errorf("UpdateNotional: portfolio %d: nested %d: %w", p.ID, nested.ID, err)
			}
		}
		current = p.Value(date, false)
	}

	diff := notional - current
	if diff == 0 {
		return nil
	}

	if _, err := p.UpdateReservePosition(date, diff, p.Currency, false); err != nil {
		return fmt.Errorf("UpdateNotional: portfolio %d: %w", p.ID, err)
	}

	return nil
}

// UpdateNotionalOrder records pending notional change as an order on the base
// currency's long reserve leg, leaving positions untouched until booking.
func (p *Portfolio) UpdateNotionalOrder(orderDate time.Time, notionalChange float64) (*eventmodels.Order, error) {
	leg := p.Reserve(p.Currency, eventmodels.PositionTypeLong)
	if leg == nil {
		return nil, fmt.Errorf("UpdateNotionalOrder: portfolio %d %s: %w", p.ID, p.Currency, ErrNoReserve)
	}

	price := p.reservePrice(leg, orderDate)
	order, err := p.CreateOrder(leg, notionalChange/price, orderDate, eventmodels.OrderTypeMarket, 0)
	if err != nil {
		return nil, fmt.Errorf("UpdateNotionalOrder: portfolio %d: %w", p.ID, err)
	}
	return order, nil
}

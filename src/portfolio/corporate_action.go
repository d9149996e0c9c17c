package portfolio

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// ApplyCorporateAction adjusts the portfolio's holdings for a single action on
// its ex-date. A split scales the position and any open orders by the factor
// without cash effect; a cash dividend credits the reserve per unit held.
func (p *Portfolio) ApplyCorporateAction(action *eventmodels.CorporateAction) error {
	instrument := p.instrument(action.InstrumentID)
	if instrument == nil {
		return fmt.Errorf("ApplyCorporateAction: action %s: unknown instrument %d", action.ID, action.InstrumentID)
	}

	pos := p.positions.findLatestSnapshot(instrument.ID, action.ExDate, false)

	switch action.Type {
	case eventmodels.CorporateActionSplit:
		if action.Factor <= 0 || math.IsNaN(action.Factor) {
			return fmt.Errorf("ApplyCorporateAction: action %s: bad split factor %f", action.ID, action.Factor)
		}

		if pos != nil && pos.Unit != 0 && action.Factor != 1 {
			// The snapshot is rewritten in place: a split re-denominates the
			// holding, it is not a trade, so strike and reserves stay put and
			// no aggregation delta is produced for the scaling itself.
			scaled := eventmodels.NormalizeUnit(pos.Unit * action.Factor)
			diff := scaled - pos.Unit
			p.positions.mutate(func() { pos.Unit = scaled })
			p.UpdateAggregatedPositionTree(instrument, 0, diff, action.ExDate)
		}

		for _, order := range p.orders.FindOpenOrders(instrument, action.ExDate, false) {
			scaled := eventmodels.NormalizeUnit(order.Unit * action.Factor)
			diff := scaled - order.Unit
			p.orders.mutate(order, func(o *eventmodels.Order) { o.Unit = scaled })
			p.orders.markDirty(order)
			p.UpdateAggregatedOrderTree(order, diff)
		}

	case eventmodels.CorporateActionCashDividend:
		if pos == nil || pos.Unit == 0 || action.Amount == 0 {
			return nil
		}
		if _, err := p.UpdateReservePosition(action.ExDate, pos.Unit*action.Amount, instrument.Currency, false); err != nil {
			return fmt.Errorf("ApplyCorporateAction: action %s: credit dividend: %w", action.ID, err)
		}

	default:
		return fmt.Errorf("ApplyCorporateAction: action %s: unknown type %s", action.ID, action.Type)
	}

	return nil
}

// ProcessCorporateActions applies every unprocessed action due at or before
// date. Failures are logged and the action stays unprocessed for the next
// pass.
func (p *Portfolio) ProcessCorporateActions(actions []*eventmodels.CorporateAction, date time.Time) {
	for _, action := range actions {
		if action.Processed || action.ExDate.After(date) {
			continue
		}
		if err := p.ApplyCorporateAction(action); err != nil {
			log.Errorf("ProcessCorporateActions: portfolio %d: %v", p.ID, err)
			continue
		}
		action.Processed = true
	}
}

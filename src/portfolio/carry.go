package portfolio

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// CarryCost accrues the financing cost of holding a position from its last
// snapshot to date, using the instrument's carry series and day count. A
// missing carry print means no accrual.
func (p *Portfolio) CarryCost(instrument *eventmodels.Instrument, pos *eventmodels.Position, date time.Time) float64 {
	if instrument == nil || pos == nil || pos.Unit == 0 {
		return 0
	}
	if !date.After(pos.Timestamp) {
		return 0
	}

	rate := p.market.GetValue(instrument.ID, date, eventmodels.SeriesTypeCarry, eventmodels.DefaultProvider, eventmodels.RollTypeLast)
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate == 0 {
		return 0
	}

	elapsedDays := date.Sub(pos.Timestamp).Hours() / 24
	return pos.Unit * rate * instrument.DayCount.YearFraction(elapsedDays)
}

// RealizeCarryCost debits the accrued carry of a position from the currency's
// reserve. Realization is deduplicated on (instrument, unit, timestamp) so a
// re-run over the same snapshot cannot charge twice.
func (p *Portfolio) RealizeCarryCost(instrument *eventmodels.Instrument, date time.Time) error {
	if instrument == nil || p.IsReserve(instrument) || instrument.HasPortfolio() {
		return nil
	}

	pos := p.positions.findLatestSnapshot(instrument.ID, date, false)
	cost := p.CarryCost(instrument, pos, date)
	if cost == 0 {
		return nil
	}

	key := fmt.Sprintf("%d|%d|%f|%d", p.ID, instrument.ID, pos.Unit, pos.Timestamp.UnixNano())

	p.carryMu.Lock()
	if p.realizedCarry[key] {
		p.carryMu.Unlock()
		return nil
	}
	p.realizedCarry[key] = true
	p.carryMu.Unlock()

	if _, err := p.UpdateReservePosition(date, -cost, instrument.Currency, false); err != nil {
		p.carryMu.Lock()
		delete(p.realizedCarry, key)
		p.carryMu.Unlock()
		return fmt.Errorf("RealizeCarryCost: portfolio %d instrument %s: %w", p.ID, instrument, err)
	}

	return nil
}

// RealizeCarryAggregatedPositions realizes carry across the aggregated view.
// Off by default; the direct-position path is the production one.
func (p *Portfolio) RealizeCarryAggregatedPositions(instrument *eventmodels.Instrument, date time.Time) {
	if !p.config.EnableAggregatedCarry {
		return
	}

	for _, pos := range p.positions.latestPositions(date, true) {
		held := p.instrument(pos.InstrumentID)
		if held == nil || (instrument != nil && held.ID != instrument.ID) {
			continue
		}
		if err := p.RealizeCarryCost(held, date); err != nil {
			log.Errorf("RealizeCarryAggregatedPositions: portfolio %d: %v", p.ID, err)
		}
	}
}

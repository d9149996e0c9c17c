package portfolio

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// UpdateAggregatedPositionTree shifts the aggregated view of an instrument by
// unitDiff at the owning portfolio and at every ancestor. Nested portfolio
// instruments are skipped: their leaf holdings already propagate individually,
// and aggregating the wrapper too would double count.
func (p *Portfolio) UpdateAggregatedPositionTree(instrument *eventmodels.Instrument, executionLevel, unitDiff float64, timestamp time.Time) {
	if instrument == nil || instrument.HasPortfolio() {
		return
	}
	if unitDiff == 0 || math.IsNaN(unitDiff) {
		return
	}

	for node := p; node != nil; node = node.Parent() {
		old := node.positions.findLatestSnapshot(instrument.ID, timestamp, true)
		oldUnit := 0.0
		if old != nil {
			oldUnit = old.Unit
		}

		newUnit := eventmodels.NormalizeUnit(oldUnit + unitDiff)
		if _, err := node.createPosition(instrument, timestamp, newUnit, executionLevel, createOptions{
			updateIfExists: true,
			aggregated:     true,
		}); err != nil {
			log.Errorf("UpdateAggregatedPositionTree: portfolio %d instrument %s: %v", node.ID, instrument, err)
			return
		}
	}
}

// UpdateAggregatedOrderTree shifts the aggregated mirror of an order by diff
// at the owning portfolio and at every ancestor, creating mirrors where none
// exist yet. Mirrors share the owning order's ID.
func (p *Portfolio) UpdateAggregatedOrderTree(order *eventmodels.Order, diff float64) {
	if order == nil || order.Aggregated || diff == 0 {
		return
	}

	node := p
	for node != nil {
		mirror := node.orders.FindOrder(order.ID, true)
		if mirror == nil {
			mirror = order.Mirror(node.ID)
			node.orders.AddOrderMemory(mirror)
		} else {
			node.orders.mutate(mirror, func(o *eventmodels.Order) {
				o.Unit = eventmodels.NormalizeUnit(o.Unit + diff)
			})
		}
		node.publishOrder(mirror)

		node = node.Parent()
	}
}

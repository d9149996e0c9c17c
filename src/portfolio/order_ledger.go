package portfolio

import (
	"sort"
	"sync"
	"time"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// orderIndex is one family of the order ledger (direct or aggregated),
// indexed three ways: by ID, by order day, and by instrument. All three views
// share the same *Order values, so an in-place status update is visible
// everywhere at once.
type orderIndex struct {
	byID         map[string]*eventmodels.Order
	byDate       map[time.Time]map[int]map[string]*eventmodels.Order
	byInstrument map[int]map[time.Time]map[string]*eventmodels.Order
	orderedDays  []time.Time
}

func newOrderIndex() *orderIndex {
	return &orderIndex{
		byID:         make(map[string]*eventmodels.Order),
		byDate:       make(map[time.Time]map[int]map[string]*eventmodels.Order),
		byInstrument: make(map[int]map[time.Time]map[string]*eventmodels.Order),
	}
}

func (x *orderIndex) add(order *eventmodels.Order) {
	day := dayOf(order.OrderDate)

	x.byID[order.ID] = order

	if _, found := x.byDate[day]; !found {
		x.byDate[day] = make(map[int]map[string]*eventmodels.Order)
		i := sort.Search(len(x.orderedDays), func(i int) bool { return x.orderedDays[i].After(day) })
		x.orderedDays = append(x.orderedDays, time.Time{})
		copy(x.orderedDays[i+1:], x.orderedDays[i:])
		x.orderedDays[i] = day
	}
	if _, found := x.byDate[day][order.InstrumentID]; !found {
		x.byDate[day][order.InstrumentID] = make(map[string]*eventmodels.Order)
	}
	x.byDate[day][order.InstrumentID][order.ID] = order

	if _, found := x.byInstrument[order.InstrumentID]; !found {
		x.byInstrument[order.InstrumentID] = make(map[time.Time]map[string]*eventmodels.Order)
	}
	if _, found := x.byInstrument[order.InstrumentID][day]; !found {
		x.byInstrument[order.InstrumentID][day] = make(map[string]*eventmodels.Order)
	}
	x.byInstrument[order.InstrumentID][day][order.ID] = order
}

// latestDayAtOrBefore finds the most recent indexed order day not after date.
func (x *orderIndex) latestDayAtOrBefore(date time.Time) (time.Time, bool) {
	day := dayOf(date)
	for i := len(x.orderedDays) - 1; i >= 0; i-- {
		if !x.orderedDays[i].After(day) {
			return x.orderedDays[i], true
		}
	}
	return time.Time{}, false
}

// OrderLedger stores a portfolio's orders in two families: the orders the
// portfolio owns, and the aggregated mirrors propagated from descendants. A
// single mutex keeps the three indexes of each family consistent.
type OrderLedger struct {
	p *Portfolio

	mu         sync.RWMutex
	direct     *orderIndex
	aggregated *orderIndex
	dirty      []*eventmodels.Order
}

func newOrderLedger(p *Portfolio) *OrderLedger {
	return &OrderLedger{
		p:          p,
		direct:     newOrderIndex(),
		aggregated: newOrderIndex(),
	}
}

func (l *OrderLedger) family(aggregated bool) *orderIndex {
	if aggregated {
		return l.aggregated
	}
	return l.direct
}

// AddOrderMemory indexes an order and marks it for persistence.
func (l *OrderLedger) AddOrderMemory(order *eventmodels.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.family(order.Aggregated).add(order)
	if !order.Aggregated {
		l.dirty = append(l.dirty, order)
	}
}

// addOrderMemoryLoaded indexes an order loaded from storage without queueing a
// write-back.
func (l *OrderLedger) addOrderMemoryLoaded(order *eventmodels.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.family(order.Aggregated).add(order)
}

func (l *OrderLedger) FindOrder(id string, aggregated bool) *eventmodels.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.family(aggregated).byID[id]
}

// FindOpenOrders returns the non-terminal orders for an instrument on the most
// recent order day at or before date. Orders from earlier days do not
// resurface: an order left open on a prior day is stale, not actionable.
func (l *OrderLedger) FindOpenOrders(instrument *eventmodels.Instrument, date time.Time, aggregated bool) map[string]*eventmodels.Order {
	if instrument == nil {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	x := l.family(aggregated)
	days, found := x.byInstrument[instrument.ID]
	if !found {
		return nil
	}

	var latest time.Time
	queryDay := dayOf(date)
	for day := range days {
		if day.After(queryDay) {
			continue
		}
		if day.After(latest) {
			latest = day
		}
	}
	if latest.IsZero() {
		return nil
	}

	open := make(map[string]*eventmodels.Order)
	for id, order := range days[latest] {
		if order.Status.IsOpen() {
			open[id] = order
		}
	}

	if len(open) == 0 {
		return nil
	}
	return open
}

// OpenOrders returns every non-terminal order on the most recent order day at
// or before date, keyed by instrument then order ID.
func (l *OrderLedger) OpenOrders(date time.Time, aggregated bool) map[int]map[string]*eventmodels.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	x := l.family(aggregated)
	day, found := x.latestDayAtOrBefore(date)
	if !found {
		return nil
	}

	open := make(map[int]map[string]*eventmodels.Order)
	for instrumentID, byID := range x.byDate[day] {
		for id, order := range byID {
			if !order.Status.IsOpen() {
				continue
			}
			if _, ok := open[instrumentID]; !ok {
				open[instrumentID] = make(map[string]*eventmodels.Order)
			}
			open[instrumentID][id] = order
		}
	}

	if len(open) == 0 {
		return nil
	}
	return open
}

// Orders returns every order on the most recent order day at or before date,
// open or terminal, in a deterministic slice.
func (l *OrderLedger) Orders(date time.Time, aggregated bool) []*eventmodels.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	x := l.family(aggregated)
	day, found := x.latestDayAtOrBefore(date)
	if !found {
		return nil
	}

	var orders []*eventmodels.Order
	for _, byID := range x.byDate[day] {
		for _, order := range byID {
			orders = append(orders, order)
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].InstrumentID != orders[j].InstrumentID {
			return orders[i].InstrumentID < orders[j].InstrumentID
		}
		return orders[i].ID < orders[j].ID
	})
	return orders
}

// NonExecutedOrders returns the orders rejected on the given day.
func (l *OrderLedger) NonExecutedOrders(date time.Time, aggregated bool) []*eventmodels.Order {
	var rejected []*eventmodels.Order
	for _, order := range l.Orders(date, aggregated) {
		if order.Status == eventmodels.OrderStatusNotExecuted {
			rejected = append(rejected, order)
		}
	}
	return rejected
}

// mutate applies an in-place field update to a shared order record under the
// ledger's write lock, so concurrent readers never observe a half-applied
// update.
func (l *OrderLedger) mutate(order *eventmodels.Order, fn func(*eventmodels.Order)) {
	l.mu.Lock()
	fn(order)
	l.mu.Unlock()
}

// markDirty queues an order for the next Save flush. Aggregated mirrors are
// memory-only and never queued.
func (l *OrderLedger) markDirty(order *eventmodels.Order) {
	if order.Aggregated {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, queued := range l.dirty {
		if queued.ID == order.ID {
			return
		}
	}
	l.dirty = append(l.dirty, order)
}

func (l *OrderLedger) drainDirtyOrders() []*eventmodels.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	drained := l.dirty
	l.dirty = nil
	return drained
}

package portfolio

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
	"github.com/jiaming2012/portfolio-kernel/src/eventpubsub"
)

// Portfolio is a node in the portfolio tree. It owns a position ledger and an
// order ledger scoped to itself, funds trades against per-currency reserve
// instruments, and optionally represents exactly one strategy.
type Portfolio struct {
	ID           int
	Name         string
	Currency     eventmodels.Currency
	InstrumentID int

	parentID   int
	strategyID int

	registry *Registry
	repo     eventmodels.IRepository
	market   eventmodels.IMarketData
	config   *Config

	positions *PositionLedger
	orders    *OrderLedger

	reserveMu sync.RWMutex
	reserves  map[eventmodels.Currency]map[eventmodels.PositionType]*eventmodels.Instrument

	// saveMu guards the flush of newly created positions/orders to storage,
	// so racing in-memory mutations cannot persist duplicates.
	saveMu sync.Mutex

	carryMu       sync.Mutex
	realizedCarry map[string]bool
}

func NewPortfolio(registry *Registry, repo eventmodels.IRepository, market eventmodels.IMarketData, id int, name string, currency eventmodels.Currency, config *Config) *Portfolio {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Portfolio{
		ID:            id,
		Name:          name,
		Currency:      currency,
		registry:      registry,
		repo:          repo,
		market:        market,
		config:        config,
		reserves:      make(map[eventmodels.Currency]map[eventmodels.PositionType]*eventmodels.Instrument),
		realizedCarry: make(map[string]bool),
	}

	p.positions = newPositionLedger(p)
	p.orders = newOrderLedger(p)

	registry.AddPortfolio(p)
	return p
}

func (p *Portfolio) String() string {
	return fmt.Sprintf("%s (%d)", p.Name, p.ID)
}

func (p *Portfolio) SetParent(parentID int) {
	p.parentID = parentID
}

func (p *Portfolio) Parent() *Portfolio {
	if p.parentID == 0 {
		return nil
	}
	return p.registry.FindPortfolio(p.parentID)
}

// Master walks to the root of the tree: the unique ancestor with no parent.
func (p *Portfolio) Master() *Portfolio {
	node := p
	for {
		parent := node.Parent()
		if parent == nil {
			return node
		}
		node = parent
	}
}

func (p *Portfolio) Children() []*Portfolio {
	return p.registry.Children(p.ID)
}

func (p *Portfolio) SetStrategy(s IStrategy) {
	p.strategyID = s.GetID()
	p.registry.AddStrategy(s)
}

func (p *Portfolio) Strategy() IStrategy {
	if p.strategyID == 0 {
		return nil
	}
	return p.registry.FindStrategy(p.strategyID)
}

func (p *Portfolio) Registry() *Registry {
	return p.registry
}

func (p *Portfolio) MarketData() eventmodels.IMarketData {
	return p.market
}

// AddReserve registers the long and short cash legs for a currency.
func (p *Portfolio) AddReserve(currency eventmodels.Currency, longLeg, shortLeg *eventmodels.Instrument) {
	p.reserveMu.Lock()
	defer p.reserveMu.Unlock()

	p.registry.AddInstrument(longLeg)
	p.registry.AddInstrument(shortLeg)

	p.reserves[currency] = map[eventmodels.PositionType]*eventmodels.Instrument{
		eventmodels.PositionTypeLong:  longLeg,
		eventmodels.PositionTypeShort: shortLeg,
	}
}

// Reserve resolves a currency's cash leg, falling back to the master
// portfolio's reserve map for nodes that carry none of their own.
func (p *Portfolio) Reserve(currency eventmodels.Currency, positionType eventmodels.PositionType) *eventmodels.Instrument {
	p.reserveMu.RLock()
	legs, found := p.reserves[currency]
	p.reserveMu.RUnlock()

	if found {
		return legs[positionType]
	}

	if parent := p.Parent(); parent != nil {
		return p.Master().Reserve(currency, positionType)
	}

	return nil
}

func (p *Portfolio) IsReserve(instrument *eventmodels.Instrument) bool {
	if instrument == nil {
		return false
	}

	if instrument.InstrumentType == eventmodels.InstrumentTypeReserve {
		return true
	}

	p.reserveMu.RLock()
	defer p.reserveMu.RUnlock()

	for _, legs := range p.reserves {
		for _, leg := range legs {
			if leg.ID == instrument.ID {
				return true
			}
		}
	}

	if parent := p.Parent(); parent != nil {
		return parent.IsReserve(instrument)
	}

	return false
}

// nestedPortfolio resolves the portfolio an instrument represents, either
// directly or through a strategy, or nil for regular instruments.
func (p *Portfolio) nestedPortfolio(instrument *eventmodels.Instrument) *Portfolio {
	if instrument == nil || !instrument.HasPortfolio() {
		return nil
	}
	return p.registry.FindPortfolio(instrument.PortfolioID)
}

func (p *Portfolio) instrument(id int) *eventmodels.Instrument {
	return p.registry.FindInstrument(id)
}

// priceOf values one unit of an instrument: market value for securities and
// reserves, AUM for nested strategies, recursive portfolio value for nested
// portfolios. NaN marks missing data.
func (p *Portfolio) priceOf(instrument *eventmodels.Instrument, date time.Time) float64 {
	if nested := p.nestedPortfolio(instrument); nested != nil {
		if s := nested.Strategy(); s != nil {
			return s.GetAUM(date)
		}
		return nested.Value(date, false)
	}

	price := p.market.GetValue(instrument.ID, date, eventmodels.SeriesTypeLast, eventmodels.DefaultProvider, eventmodels.RollTypeLast)

	// Reserve legs without a print are worth par, so cash never drops out of
	// the book just because nobody quotes it.
	if p.IsReserve(instrument) && (math.IsNaN(price) || math.IsInf(price, 0) || price == 0) {
		return 1.0
	}

	return price
}

// Value is the weighted sum of position values. riskOnly excludes the reserve
// legs. Missing prices degrade to skipped contributions.
func (p *Portfolio) Value(date time.Time, riskOnly bool) float64 {
	positions := p.Positions(date, false)

	total := 0.0
	for _, pos := range positions {
		instrument := p.instrument(pos.InstrumentID)
		if instrument == nil {
			continue
		}

		if riskOnly && p.IsReserve(instrument) {
			continue
		}

		value := pos.Value(p.priceOf(instrument, date))
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		total += value
	}

	return total
}

// VirtualPositions previews exposure: confirmed position units plus open order
// units per instrument, without mutating the ledger.
func (p *Portfolio) VirtualPositions(date time.Time) []*eventmodels.VirtualPosition {
	units := make(map[int]float64)

	for _, pos := range p.positions.latestPositions(date, false) {
		units[pos.InstrumentID] += pos.Unit
	}

	for _, orders := range p.orders.OpenOrders(date, false) {
		for _, order := range orders {
			units[order.InstrumentID] += order.Unit
		}
	}

	ids := make([]int, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	virtual := make([]*eventmodels.VirtualPosition, 0, len(ids))
	for _, id := range ids {
		virtual = append(virtual, &eventmodels.VirtualPosition{
			InstrumentID: id,
			Timestamp:    date,
			Unit:         units[id],
		})
	}

	return virtual
}

// Save flushes newly created positions and updated orders to storage. The
// coarse per-portfolio lock prevents duplicate writes when concurrent
// mutations race to persist.
func (p *Portfolio) Save() error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	newPositions := p.positions.drainNewPositions()
	if len(newPositions) > 0 {
		if err := p.repo.SaveNewPositions(p.ID, newPositions); err != nil {
			p.positions.requeueNewPositions(newPositions)
			return fmt.Errorf("Save: portfolio %d: %w", p.ID, err)
		}
	}

	dirtyOrders := p.orders.drainDirtyOrders()
	for _, order := range dirtyOrders {
		if err := p.repo.UpdateOrder(order); err != nil {
			log.Errorf("Save: portfolio %d: order %s: %v", p.ID, order.ID, err)
		}
	}

	return nil
}

// LoadState primes the in-memory ledgers from storage for a date. Load is
// lazy elsewhere; this is the explicit warm-up used at startup.
func (p *Portfolio) LoadState(date time.Time) error {
	positions, err := p.repo.LoadPositions(p.ID, date)
	if err != nil {
		return fmt.Errorf("LoadState: portfolio %d: %w", p.ID, err)
	}

	p.positions.loadSnapshots(positions, date)

	orders, err := p.repo.LoadOrders(p.ID, date)
	if err != nil {
		return fmt.Errorf("LoadState: portfolio %d: %w", p.ID, err)
	}

	for _, order := range orders {
		p.orders.addOrderMemoryLoaded(order)
	}

	return nil
}

// GetProperty reads named instrument metadata from storage.
func (p *Portfolio) GetProperty(instrument *eventmodels.Instrument, name string) (string, error) {
	value, err := p.repo.GetProperty(instrument.ID, name)
	if err != nil {
		return "", fmt.Errorf("GetProperty: instrument %s %s: %w", instrument, name, err)
	}
	return value, nil
}

// SetProperty writes named instrument metadata and announces the change.
func (p *Portfolio) SetProperty(instrument *eventmodels.Instrument, name, value string) error {
	if err := p.repo.SetProperty(instrument.ID, name, value); err != nil {
		return fmt.Errorf("SetProperty: instrument %s %s: %w", instrument, name, err)
	}

	eventpubsub.Publish(eventpubsub.TopicPropertyChanged, eventpubsub.PropertyChangedEvent{
		InstrumentID: instrument.ID,
		Name:         name,
		Value:        value,
		Timestamp:    time.Now().UTC(),
	})

	return nil
}

// Positions returns the snapshot list at the resolved as-of timestamp.
func (p *Portfolio) Positions(date time.Time, aggregated bool) []*eventmodels.Position {
	return p.positions.Positions(date, aggregated)
}

// RiskPositions filters reserve-cash legs out of the position list.
func (p *Portfolio) RiskPositions(date time.Time, aggregated bool) []*eventmodels.Position {
	var risk []*eventmodels.Position
	for _, pos := range p.Positions(date, aggregated) {
		if p.IsReserve(p.instrument(pos.InstrumentID)) {
			continue
		}
		risk = append(risk, pos)
	}
	return risk
}

func (p *Portfolio) FindPosition(instrument *eventmodels.Instrument, timestamp time.Time, aggregated bool) *eventmodels.Position {
	return p.positions.FindPosition(instrument, timestamp, aggregated)
}

func (p *Portfolio) GetLastTimestamp(date time.Time) time.Time {
	return p.positions.GetLastTimestamp(date)
}

func (p *Portfolio) GetFirstTimestamp(date time.Time) time.Time {
	return p.positions.GetFirstTimestamp(date)
}

func (p *Portfolio) FindOrder(id string, aggregated bool) *eventmodels.Order {
	return p.orders.FindOrder(id, aggregated)
}

func (p *Portfolio) FindOpenOrders(instrument *eventmodels.Instrument, date time.Time, aggregated bool) map[string]*eventmodels.Order {
	return p.orders.FindOpenOrders(instrument, date, aggregated)
}

func (p *Portfolio) OpenOrders(date time.Time, aggregated bool) map[int]map[string]*eventmodels.Order {
	return p.orders.OpenOrders(date, aggregated)
}

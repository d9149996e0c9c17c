package storage

import (
	"math"
	"sync"
	"time"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// MemoryRepository is the in-process storage collaborator. Simulations and
// tests run on it; the postgres repository replaces it in deployments.
type MemoryRepository struct {
	mu         sync.RWMutex
	positions  map[int][]*eventmodels.Position
	orders     map[int]map[string]*eventmodels.Order
	properties map[int]map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		positions:  make(map[int][]*eventmodels.Position),
		orders:     make(map[int]map[string]*eventmodels.Order),
		properties: make(map[int]map[string]string),
	}
}

func (r *MemoryRepository) LoadPositions(portfolioID int, date time.Time) ([]*eventmodels.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var loaded []*eventmodels.Position
	for _, pos := range r.positions[portfolioID] {
		if pos.Timestamp.After(date) {
			continue
		}
		loaded = append(loaded, pos.Copy())
	}
	return loaded, nil
}

func (r *MemoryRepository) LoadOrders(portfolioID int, date time.Time) ([]*eventmodels.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var loaded []*eventmodels.Order
	for _, order := range r.orders[portfolioID] {
		if order.OrderDate.After(date) {
			continue
		}
		loaded = append(loaded, order.Copy())
	}
	return loaded, nil
}

func (r *MemoryRepository) SaveNewPositions(portfolioID int, positions []*eventmodels.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pos := range positions {
		r.positions[portfolioID] = append(r.positions[portfolioID], pos.Copy())
	}
	return nil
}

func (r *MemoryRepository) UpdateOrder(order *eventmodels.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.orders[order.PortfolioID]; !found {
		r.orders[order.PortfolioID] = make(map[string]*eventmodels.Order)
	}
	r.orders[order.PortfolioID][order.ID] = order.Copy()
	return nil
}

func (r *MemoryRepository) LastPositionTimestamp(portfolioID int, date time.Time) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last time.Time
	for _, pos := range r.positions[portfolioID] {
		if pos.Timestamp.After(date) {
			continue
		}
		if pos.Timestamp.After(last) {
			last = pos.Timestamp
		}
	}
	return last, nil
}

func (r *MemoryRepository) FirstPositionTimestamp(portfolioID int, date time.Time) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first time.Time
	for _, pos := range r.positions[portfolioID] {
		if pos.Timestamp.After(date) {
			continue
		}
		if first.IsZero() || pos.Timestamp.Before(first) {
			first = pos.Timestamp
		}
	}
	return first, nil
}

func (r *MemoryRepository) GetProperty(instrumentID int, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.properties[instrumentID][name], nil
}

func (r *MemoryRepository) SetProperty(instrumentID int, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.properties[instrumentID]; !found {
		r.properties[instrumentID] = make(map[string]string)
	}
	r.properties[instrumentID][name] = value
	return nil
}

// PositionCount reports the number of persisted snapshots for a portfolio.
func (r *MemoryRepository) PositionCount(portfolioID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions[portfolioID])
}

type seriesKey struct {
	instrumentID int
	seriesType   eventmodels.SeriesType
	provider     string
}

type fxKey struct {
	from eventmodels.Currency
	to   eventmodels.Currency
}

// MemoryMarketData serves instrument series and FX rates from in-process time
// series. Missing data comes back as NaN, matching the collaborator contract.
type MemoryMarketData struct {
	mu     sync.RWMutex
	series map[seriesKey]*eventmodels.TimeSeries
	fx     map[fxKey]*eventmodels.TimeSeries
}

func NewMemoryMarketData() *MemoryMarketData {
	return &MemoryMarketData{
		series: make(map[seriesKey]*eventmodels.TimeSeries),
		fx:     make(map[fxKey]*eventmodels.TimeSeries),
	}
}

// SetValue records a print on the instrument's default-provider last series.
func (m *MemoryMarketData) SetValue(instrumentID int, date time.Time, value float64) {
	m.SetSeriesValue(instrumentID, date, eventmodels.SeriesTypeLast, eventmodels.DefaultProvider, value)
}

func (m *MemoryMarketData) SetSeriesValue(instrumentID int, date time.Time, seriesType eventmodels.SeriesType, provider string, value float64) {
	key := seriesKey{instrumentID: instrumentID, seriesType: seriesType, provider: provider}

	m.mu.Lock()
	ts, found := m.series[key]
	if !found {
		ts = eventmodels.NewTimeSeries()
		m.series[key] = ts
	}
	m.mu.Unlock()

	ts.AddPoint(date, value)
}

func (m *MemoryMarketData) GetValue(instrumentID int, date time.Time, seriesType eventmodels.SeriesType, provider string, roll eventmodels.RollType) float64 {
	m.mu.RLock()
	ts, found := m.series[seriesKey{instrumentID: instrumentID, seriesType: seriesType, provider: provider}]
	m.mu.RUnlock()

	if !found {
		return math.NaN()
	}
	return ts.ValueAt(date, roll)
}

func (m *MemoryMarketData) SetFXRate(from, to eventmodels.Currency, date time.Time, rate float64) {
	key := fxKey{from: from, to: to}

	m.mu.Lock()
	ts, found := m.fx[key]
	if !found {
		ts = eventmodels.NewTimeSeries()
		m.fx[key] = ts
	}
	m.mu.Unlock()

	ts.AddPoint(date, rate)
}

// FXRate resolves from/to at date, trying the inverse pair when the direct one
// is missing.
func (m *MemoryMarketData) FXRate(from, to eventmodels.Currency, date time.Time) float64 {
	if from == to {
		return 1.0
	}

	m.mu.RLock()
	direct, foundDirect := m.fx[fxKey{from: from, to: to}]
	inverse, foundInverse := m.fx[fxKey{from: to, to: from}]
	m.mu.RUnlock()

	if foundDirect {
		if rate := direct.ValueAt(date, eventmodels.RollTypeLast); !math.IsNaN(rate) {
			return rate
		}
	}
	if foundInverse {
		if rate := inverse.ValueAt(date, eventmodels.RollTypeLast); !math.IsNaN(rate) && rate != 0 {
			return 1.0 / rate
		}
	}

	return math.NaN()
}

var (
	_ eventmodels.IRepository = (*MemoryRepository)(nil)
	_ eventmodels.IRepository = (*PostgresRepository)(nil)
	_ eventmodels.IMarketData = (*MemoryMarketData)(nil)
)

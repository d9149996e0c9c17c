package portfolio

import (
	"sort"
	"sync"
	"time"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// IStrategy is the contract the portfolio tree needs from a strategy. The
// concrete type lives in src/strategy; the indirection keeps the strategy's
// AUM series reachable from booking without an import cycle.
type IStrategy interface {
	GetID() int
	GetInstrumentID() int
	GetPortfolioID() int
	GetAUM(date time.Time) float64
	GetSODAUM(date time.Time) float64
	GetAUMChange(date time.Time) float64
	GetOrderAUMChange(date time.Time) float64
	GetAggregatedAUMChanges(start, end time.Time) float64
	UpdateAUM(date time.Time, aumValue float64, updatePortfolio bool) error
	UpdateAUMOrder(orderDate time.Time, aumValue float64) error
	SetAUMPoint(date time.Time, value float64)
	SetAUMChangePoint(date time.Time, value float64)
	SetOrderAUMChangePoint(date time.Time, value float64)
}

// Registry is the ID-keyed arena for portfolios, strategies and instruments.
// Parent links are stored as IDs and resolved lazily through the registry, so
// the tree carries no reference cycles and master resolution is a walk to
// root.
type Registry struct {
	mu          sync.RWMutex
	portfolios  map[int]*Portfolio
	strategies  map[int]IStrategy
	instruments map[int]*eventmodels.Instrument
	nextID      int
}

func NewRegistry() *Registry {
	return &Registry{
		portfolios:  make(map[int]*Portfolio),
		strategies:  make(map[int]IStrategy),
		instruments: make(map[int]*eventmodels.Instrument),
		nextID:      1,
	}
}

func (r *Registry) NextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	return id
}

func (r *Registry) AddPortfolio(p *Portfolio) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.portfolios[p.ID] = p
	if p.ID >= r.nextID {
		r.nextID = p.ID + 1
	}
}

func (r *Registry) FindPortfolio(id int) *Portfolio {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.portfolios[id]
}

func (r *Registry) AddStrategy(s IStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.strategies[s.GetID()] = s
	if s.GetID() >= r.nextID {
		r.nextID = s.GetID() + 1
	}
}

func (r *Registry) FindStrategy(id int) IStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategies[id]
}

func (r *Registry) AddInstrument(instrument *eventmodels.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.instruments[instrument.ID] = instrument
	if instrument.ID >= r.nextID {
		r.nextID = instrument.ID + 1
	}
}

func (r *Registry) FindInstrument(id int) *eventmodels.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instruments[id]
}

// Children returns the direct child portfolios of parentID in ID order.
func (r *Registry) Children(parentID int) []*Portfolio {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var children []*Portfolio
	for _, p := range r.portfolios {
		if p.parentID == parentID {
			children = append(children, p)
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	return children
}

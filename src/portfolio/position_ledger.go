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

// PositionLedger is the per-portfolio, point-in-time position store. Snapshots
// are keyed by (timestamp, instrument) in two families: the portfolio's own
// direct holdings and the aggregated view propagated from descendants.
// Aggregated snapshots live in memory only; they are rebuilt by propagation
// after a load.
type PositionLedger struct {
	p *Portfolio

	mu              sync.RWMutex
	direct          map[time.Time]map[int]*eventmodels.Position
	aggregated      map[time.Time]map[int]*eventmodels.Position
	orderedDates    []time.Time
	aggregatedDates []time.Time
	loadedDates     map[time.Time]bool
	lastTimestamp   time.Time
	firstTimestamp  time.Time
	newPositions    []*eventmodels.Position
}

func newPositionLedger(p *Portfolio) *PositionLedger {
	return &PositionLedger{
		p:           p,
		direct:      make(map[time.Time]map[int]*eventmodels.Position),
		aggregated:  make(map[time.Time]map[int]*eventmodels.Position),
		loadedDates: make(map[time.Time]bool),
	}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetLastTimestamp resolves the as-of timestamp for a query date. Resolution
// is three-tiered: the cached watermark, the in-memory ordered snapshot dates,
// and finally the storage collaborator, whose answer is memoized. The fallback
// exists because in-memory caches fill lazily and must never report "no
// position" while storage has one.
func (l *PositionLedger) GetLastTimestamp(date time.Time) time.Time {
	l.mu.Lock()

	if l.lastTimestamp.IsZero() && len(l.orderedDates) != 0 {
		l.lastTimestamp = l.orderedDates[len(l.orderedDates)-1]
		defer l.mu.Unlock()
		return l.lastTimestamp
	}

	if !l.lastTimestamp.IsZero() && !date.Before(l.lastTimestamp) {
		defer l.mu.Unlock()
		return l.lastTimestamp
	}

	for i := len(l.orderedDates) - 1; i >= 0; i-- {
		if !date.Before(l.orderedDates[i]) {
			defer l.mu.Unlock()
			return l.orderedDates[i]
		}
	}

	if l.loadedDates[dayOf(date)] {
		defer l.mu.Unlock()
		return time.Time{}
	}
	l.mu.Unlock()

	t, err := l.p.repo.LastPositionTimestamp(l.p.ID, date)
	if err != nil {
		log.Errorf("GetLastTimestamp: portfolio %d: %v", l.p.ID, err)
		return time.Time{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.lastTimestamp) {
		l.lastTimestamp = t
	}
	return t
}

// GetFirstTimestamp mirrors GetLastTimestamp for the earliest snapshot.
func (l *PositionLedger) GetFirstTimestamp(date time.Time) time.Time {
	l.mu.Lock()

	if !l.firstTimestamp.IsZero() && !date.Before(l.firstTimestamp) {
		defer l.mu.Unlock()
		return l.firstTimestamp
	}

	if len(l.orderedDates) != 0 {
		defer l.mu.Unlock()
		return l.orderedDates[0]
	}

	if l.loadedDates[dayOf(date)] {
		defer l.mu.Unlock()
		return time.Time{}
	}
	l.mu.Unlock()

	t, err := l.p.repo.FirstPositionTimestamp(l.p.ID, date)
	if err != nil {
		log.Errorf("GetFirstTimestamp: portfolio %d: %v", l.p.ID, err)
		return time.Time{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.firstTimestamp.IsZero() || t.Before(l.firstTimestamp) {
		l.firstTimestamp = t
	}
	return t
}

// FindPosition returns the snapshot at the resolved as-of timestamp, or nil if
// none exists there or its unit is exactly zero.
func (l *PositionLedger) FindPosition(instrument *eventmodels.Instrument, timestamp time.Time, aggregated bool) *eventmodels.Position {
	if instrument == nil {
		return nil
	}

	asOf := l.GetLastTimestamp(timestamp)
	if asOf.IsZero() {
		return nil
	}

	pos := l.snapshotAt(asOf, instrument.ID, aggregated)
	if pos == nil || pos.Unit == 0 {
		return nil
	}
	return pos
}

func (l *PositionLedger) snapshotAt(timestamp time.Time, instrumentID int, aggregated bool) *eventmodels.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	family := l.direct
	if aggregated {
		family = l.aggregated
	}

	byInstrument, found := family[timestamp]
	if !found {
		return nil
	}
	return byInstrument[instrumentID]
}

// findLatestSnapshot walks snapshot dates backwards from timestamp until the
// instrument appears. Internal queries (exposure previews, corporate actions)
// use it where UpdatePositions has not densified the maps.
func (l *PositionLedger) findLatestSnapshot(instrumentID int, timestamp time.Time, aggregated bool) *eventmodels.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	family, dates := l.direct, l.orderedDates
	if aggregated {
		family, dates = l.aggregated, l.aggregatedDates
	}

	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i].After(timestamp) {
			continue
		}
		if pos, found := family[dates[i]][instrumentID]; found {
			return pos
		}
	}
	return nil
}

// Positions lists the snapshots at the resolved as-of timestamp.
func (l *PositionLedger) Positions(date time.Time, aggregated bool) []*eventmodels.Position {
	asOf := l.GetLastTimestamp(date)
	if asOf.IsZero() {
		return nil
	}
	return l.positionsAt(asOf, aggregated)
}

func (l *PositionLedger) positionsAt(timestamp time.Time, aggregated bool) []*eventmodels.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	family := l.direct
	if aggregated {
		family = l.aggregated
	}

	byInstrument, found := family[timestamp]
	if !found {
		return nil
	}

	positions := make([]*eventmodels.Position, 0, len(byInstrument))
	for _, pos := range byInstrument {
		positions = append(positions, pos)
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].InstrumentID < positions[j].InstrumentID })
	return positions
}

// latestPositions returns, per instrument, the most recent snapshot at or
// before date, regardless of whether the maps are dense.
func (l *PositionLedger) latestPositions(date time.Time, aggregated bool) []*eventmodels.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	family, dates := l.direct, l.orderedDates
	if aggregated {
		family, dates = l.aggregated, l.aggregatedDates
	}

	latest := make(map[int]*eventmodels.Position)
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i].After(date) {
			continue
		}
		for id, pos := range family[dates[i]] {
			if _, seen := latest[id]; !seen {
				latest[id] = pos
			}
		}
	}

	positions := make([]*eventmodels.Position, 0, len(latest))
	for _, pos := range latest {
		if pos.Unit != 0 {
			positions = append(positions, pos)
		}
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].InstrumentID < positions[j].InstrumentID })
	return positions
}

// storeSnapshot indexes a snapshot in memory and publishes the mutation.
// Direct snapshots are also queued for persistence; aggregated views are
// memory-only.
func (l *PositionLedger) storeSnapshot(pos *eventmodels.Position, addNew bool) {
	l.mu.Lock()

	if pos.Aggregated {
		if _, found := l.aggregated[pos.Timestamp]; !found {
			l.aggregated[pos.Timestamp] = make(map[int]*eventmodels.Position)
			l.insertAggregatedDate(pos.Timestamp)
		}
		l.aggregated[pos.Timestamp][pos.InstrumentID] = pos
	} else {
		if _, found := l.direct[pos.Timestamp]; !found {
			l.direct[pos.Timestamp] = make(map[int]*eventmodels.Position)
			l.insertOrderedDate(pos.Timestamp)
		}
		l.direct[pos.Timestamp][pos.InstrumentID] = pos

		if addNew {
			l.newPositions = append(l.newPositions, pos)
		}
	}

	if pos.Timestamp.After(l.lastTimestamp) {
		l.lastTimestamp = pos.Timestamp
	}
	if l.firstTimestamp.IsZero() || pos.Timestamp.Before(l.firstTimestamp) {
		l.firstTimestamp = pos.Timestamp
	}
	l.loadedDates[dayOf(pos.Timestamp)] = true
	l.mu.Unlock()

	eventpubsub.Publish(eventpubsub.TopicPositionUpdated, eventpubsub.PositionUpdatedEvent{
		PortfolioID:  pos.PortfolioID,
		InstrumentID: pos.InstrumentID,
		Unit:         pos.Unit,
		Strike:       pos.Strike,
		Timestamp:    pos.Timestamp,
		Aggregated:   pos.Aggregated,
		AddNew:       addNew,
	})
}

func (l *PositionLedger) insertOrderedDate(t time.Time) {
	i := sort.Search(len(l.orderedDates), func(i int) bool { return l.orderedDates[i].After(t) })
	l.orderedDates = append(l.orderedDates, time.Time{})
	copy(l.orderedDates[i+1:], l.orderedDates[i:])
	l.orderedDates[i] = t
}

func (l *PositionLedger) insertAggregatedDate(t time.Time) {
	i := sort.Search(len(l.aggregatedDates), func(i int) bool { return l.aggregatedDates[i].After(t) })
	l.aggregatedDates = append(l.aggregatedDates, time.Time{})
	copy(l.aggregatedDates[i+1:], l.aggregatedDates[i:])
	l.aggregatedDates[i] = t
}

// mutate applies an in-place field update to a shared snapshot under the
// ledger's write lock, so concurrent readers never observe a half-applied
// update.
func (l *PositionLedger) mutate(fn func()) {
	l.mu.Lock()
	fn()
	l.mu.Unlock()
}

func (l *PositionLedger) drainNewPositions() []*eventmodels.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	drained := l.newPositions
	l.newPositions = nil
	return drained
}

func (l *PositionLedger) requeueNewPositions(positions []*eventmodels.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newPositions = append(positions, l.newPositions...)
}

// loadSnapshots merges storage snapshots into memory without re-queueing them
// for persistence.
func (l *PositionLedger) loadSnapshots(positions []*eventmodels.Position, date time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pos := range positions {
		if _, found := l.direct[pos.Timestamp]; !found {
			l.direct[pos.Timestamp] = make(map[int]*eventmodels.Position)
			l.insertOrderedDate(pos.Timestamp)
		}
		l.direct[pos.Timestamp][pos.InstrumentID] = pos

		if pos.Timestamp.After(l.lastTimestamp) {
			l.lastTimestamp = pos.Timestamp
		}
		if l.firstTimestamp.IsZero() || pos.Timestamp.Before(l.firstTimestamp) {
			l.firstTimestamp = pos.Timestamp
		}
	}

	l.loadedDates[dayOf(date)] = true
}

type createOptions struct {
	updateIfExists      bool
	onlyUpdateTimestamp bool
	updateReserve       bool
	updateStrategy      bool
	realizeCarry        bool
	aggregated          bool
}

// CreatePosition records a position change at a timestamp, computing the new
// strike, funding the change against the reserve, and propagating the delta
// up the tree.
func (p *Portfolio) CreatePosition(instrument *eventmodels.Instrument, timestamp time.Time, unit, executionLevel float64) (*eventmodels.Position, error) {
	return p.createPosition(instrument, timestamp, unit, executionLevel, createOptions{
		updateIfExists: true,
		updateReserve:  true,
		updateStrategy: true,
	})
}

func (p *Portfolio) createPosition(instrument *eventmodels.Instrument, timestamp time.Time, unit, executionLevel float64, opts createOptions) (*eventmodels.Position, error) {
	l := p.positions

	if math.IsNaN(unit) || math.IsInf(unit, 0) {
		return nil, fmt.Errorf("CreatePosition: portfolio %d instrument %s at %s: %w", p.ID, instrument, timestamp.Format(time.RFC3339), ErrInvalidUnit)
	}

	l.mu.RLock()
	last := l.lastTimestamp
	l.mu.RUnlock()
	if !last.IsZero() && timestamp.Before(last) {
		return nil, fmt.Errorf("CreatePosition: portfolio %d instrument %s: %s < %s: %w", p.ID, instrument, timestamp.Format(time.RFC3339), last.Format(time.RFC3339), ErrStaleTimestamp)
	}

	unit = eventmodels.NormalizeUnit(unit)

	// Nested portfolios and strategies carry a binary unit; their sizing is
	// the AUM/notional series.
	if instrument.HasPortfolio() {
		nested := p.nestedPortfolio(instrument)
		if nested != nil && !opts.onlyUpdateTimestamp {
			if s := nested.Strategy(); s != nil && opts.updateStrategy {
				gross := s.GetSODAUM(timestamp) - (s.GetAUMChange(timestamp) - s.GetOrderAUMChange(timestamp))
				executionLevel = gross
				if err := s.UpdateAUM(timestamp, gross, true); err != nil {
					return nil, fmt.Errorf("CreatePosition: update AUM for strategy %d: %w", s.GetID(), err)
				}
			} else if s == nil {
				if err := nested.UpdateNotional(timestamp, executionLevel, opts.onlyUpdateTimestamp); err != nil {
					return nil, fmt.Errorf("CreatePosition: update notional for portfolio %d: %w", nested.ID, err)
				}
			}
		}

		if unit != 0 {
			unit = 1
		}
	}

	if opts.realizeCarry && p.config.EnableAggregatedCarry {
		p.Master().RealizeCarryAggregatedPositions(instrument, timestamp)
	}

	isReserve := p.IsReserve(instrument)

	// Fund the change against the currency's reserve before the snapshot is
	// written, so the offset prices off the pre-trade state.
	if opts.updateReserve && !isReserve && !opts.onlyUpdateTimestamp && !instrument.HasPortfolio() {
		old := l.findLatestSnapshot(instrument.ID, timestamp, opts.aggregated)
		oldUnit := 0.0
		if old != nil {
			oldUnit = old.Unit
		}

		unitDiff := unit - oldUnit
		value := 0.0
		if instrument.FundingType == eventmodels.FundingTypeTotalReturn {
			value = -executionLevel * unitDiff
		}

		if value != 0 && !math.IsNaN(value) {
			if _, err := p.UpdateReservePosition(timestamp, value, instrument.Currency, false); err != nil {
				return nil, fmt.Errorf("CreatePosition: fund %s: %w", instrument, err)
			}
		}
	}

	if existing := l.snapshotAt(timestamp, instrument.ID, opts.aggregated); existing != nil {
		return p.updateSnapshot(existing, instrument, timestamp, unit, executionLevel, opts, isReserve)
	}

	return p.appendSnapshot(instrument, timestamp, unit, executionLevel, opts, isReserve)
}

// updateSnapshot amends the snapshot that already exists at the exact
// timestamp.
func (p *Portfolio) updateSnapshot(existing *eventmodels.Position, instrument *eventmodels.Instrument, timestamp time.Time, unit, executionLevel float64, opts createOptions, isReserve bool) (*eventmodels.Position, error) {
	l := p.positions

	if !opts.updateIfExists && existing.Unit != 0 {
		return nil, fmt.Errorf("CreatePosition: portfolio %d instrument %s at %s: old unit %f new unit %f: %w", p.ID, instrument, timestamp.Format(time.RFC3339), existing.Unit, unit, ErrPositionExists)
	}

	if opts.onlyUpdateTimestamp {
		return existing, nil
	}

	unitDiff := unit - existing.Unit
	if unitDiff != 0 {
		strike := nextStrike(existing.Unit, existing.Strike, unit, executionLevel, instrument.FundingType, isReserve)
		l.mutate(func() {
			existing.Strike = strike
			existing.StrikeTimestamp = timestamp
			if existing.InitialStrikeTimestamp.Equal(timestamp) {
				existing.InitialStrike = strike
			}
			existing.Unit = unit
		})
	}

	l.storeSnapshot(existing, false)

	if !opts.aggregated && unitDiff != 0 {
		p.UpdateAggregatedPositionTree(instrument, executionLevel, unitDiff, timestamp)
	}

	return existing, nil
}

// appendSnapshot writes a brand-new snapshot at the timestamp, seeding it from
// the most recent prior snapshot if one exists.
func (p *Portfolio) appendSnapshot(instrument *eventmodels.Instrument, timestamp time.Time, unit, executionLevel float64, opts createOptions, isReserve bool) (*eventmodels.Position, error) {
	l := p.positions

	old := l.findLatestSnapshot(instrument.ID, timestamp, opts.aggregated)

	var newUnit, strike, initialStrike float64
	var strikeTimestamp, initialStrikeTimestamp time.Time

	if opts.onlyUpdateTimestamp && old != nil {
		newUnit = old.Unit
		strike = old.Strike
		strikeTimestamp = old.StrikeTimestamp
		initialStrike = old.InitialStrike
		initialStrikeTimestamp = old.InitialStrikeTimestamp
	} else {
		newUnit = unit

		oldUnit, oldStrike := 0.0, 0.0
		if old != nil {
			oldUnit = old.Unit
			oldStrike = old.Strike
		}
		strike = nextStrikeFresh(oldUnit, oldStrike, old != nil, newUnit, executionLevel, instrument.FundingType, isReserve)
		strikeTimestamp = timestamp

		if old != nil {
			initialStrike = old.InitialStrike
			initialStrikeTimestamp = old.InitialStrikeTimestamp
			if initialStrikeTimestamp.Equal(timestamp) {
				initialStrike = strike
			}
		} else {
			initialStrike = strike
			initialStrikeTimestamp = timestamp
		}
	}

	pos := eventmodels.NewPosition(p.ID, instrument.ID, newUnit, timestamp, strike, strikeTimestamp, initialStrike, initialStrikeTimestamp, opts.aggregated)

	l.storeSnapshot(pos, !opts.aggregated)

	if !opts.aggregated && !opts.onlyUpdateTimestamp {
		oldUnit := 0.0
		if old != nil {
			oldUnit = old.Unit
		}
		if diff := newUnit - oldUnit; diff != 0 {
			p.UpdateAggregatedPositionTree(instrument, executionLevel, diff, timestamp)
		}
	}

	return pos, nil
}

// nextStrike applies the strike accumulation rules for an in-place unit
// change: excess-return partial closes realize cost basis proportionally,
// everything else accumulates executionLevel x unitDelta. A flat position
// resets strike to zero.
func nextStrike(oldUnit, oldStrike, newUnit, executionLevel float64, funding eventmodels.FundingType, isReserve bool) float64 {
	if newUnit == 0 {
		return 0
	}

	if isReserve {
		if funding == eventmodels.FundingTypeExcessReturn {
			return newUnit
		}
		return oldStrike + (newUnit - oldUnit)
	}

	if funding == eventmodels.FundingTypeExcessReturn && math.Abs(newUnit) < math.Abs(oldUnit) {
		divisor := oldUnit
		if divisor == 0 {
			divisor = 1
		}
		return oldStrike * newUnit / divisor
	}

	return oldStrike + executionLevel*(newUnit-oldUnit)
}

// nextStrikeFresh computes the strike of a snapshot appended at a new
// timestamp.
func nextStrikeFresh(oldUnit, oldStrike float64, hasOld bool, newUnit, executionLevel float64, funding eventmodels.FundingType, isReserve bool) float64 {
	if newUnit == 0 {
		return 0
	}

	if !hasOld || oldUnit == 0 {
		if isReserve {
			return executionLevel
		}
		return executionLevel * newUnit
	}

	if math.Abs(newUnit-oldUnit) < eventmodels.UnitTolerance {
		return oldStrike
	}

	return nextStrike(oldUnit, oldStrike, newUnit, executionLevel, funding, isReserve)
}

// UpdatePositions rolls every open position's snapshot forward to date. The
// roll is economically a no-op; it exists so later point-in-time comparisons
// all resolve to the same timestamp.
func (p *Portfolio) UpdatePositions(date time.Time) {
	for _, pos := range p.positions.latestPositions(date, false) {
		if pos.Timestamp.Equal(date) {
			continue
		}

		instrument := p.instrument(pos.InstrumentID)
		if instrument == nil {
			continue
		}

		if nested := p.nestedPortfolio(instrument); nested != nil {
			nested.UpdatePositions(date)
		}

		if _, err := p.createPosition(instrument, date, pos.Unit, math.NaN(), createOptions{
			updateIfExists:      true,
			onlyUpdateTimestamp: true,
		}); err != nil {
			log.Errorf("UpdatePositions: portfolio %d instrument %d: %v", p.ID, pos.InstrumentID, err)
		}
	}

	for _, pos := range p.positions.latestPositions(date, true) {
		if pos.Timestamp.Equal(date) {
			continue
		}

		instrument := p.instrument(pos.InstrumentID)
		if instrument == nil {
			continue
		}

		if _, err := p.createPosition(instrument, date, pos.Unit, math.NaN(), createOptions{
			updateIfExists:      true,
			onlyUpdateTimestamp: true,
			aggregated:          true,
		}); err != nil {
			log.Errorf("UpdatePositions: portfolio %d aggregated instrument %d: %v", p.ID, pos.InstrumentID, err)
		}
	}
}

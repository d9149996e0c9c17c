package strategy

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
	"github.com/jiaming2012/portfolio-kernel/src/eventpubsub"
	"github.com/jiaming2012/portfolio-kernel/src/portfolio"
)

// Strategy wraps one portfolio and keeps the canonical AUM bookkeeping for it:
// the committed AUM series, the intraday aggregated changes, and the pending
// order-driven change that has not been booked yet.
type Strategy struct {
	ID           int
	Name         string
	InstrumentID int

	portfolio *portfolio.Portfolio

	aum            *eventmodels.TimeSeries
	aumChange      *eventmodels.TimeSeries
	aumOrderChange *eventmodels.TimeSeries
}

func NewStrategy(p *portfolio.Portfolio, id, instrumentID int, name string) *Strategy {
	s := &Strategy{
		ID:             id,
		Name:           name,
		InstrumentID:   instrumentID,
		portfolio:      p,
		aum:            eventmodels.NewTimeSeries(),
		aumChange:      eventmodels.NewTimeSeries(),
		aumOrderChange: eventmodels.NewTimeSeries(),
	}

	p.SetStrategy(s)
	return s
}

func (s *Strategy) String() string {
	return fmt.Sprintf("%s (%d)", s.Name, s.ID)
}

func (s *Strategy) GetID() int           { return s.ID }
func (s *Strategy) GetInstrumentID() int { return s.InstrumentID }
func (s *Strategy) GetPortfolioID() int  { return s.portfolio.ID }

func (s *Strategy) Portfolio() *portfolio.Portfolio { return s.portfolio }

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetAUM is the committed AUM at or before date. Zero before the first commit.
func (s *Strategy) GetAUM(date time.Time) float64 {
	v := s.aum.ValueAt(date, eventmodels.RollTypeLast)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// GetAUMChange is the day's accumulated committed change at date.
func (s *Strategy) GetAUMChange(date time.Time) float64 {
	v := s.aumChange.ValueAt(dayOf(date), eventmodels.RollTypeExact)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// GetOrderAUMChange is the pending, unbooked change sitting in orders.
func (s *Strategy) GetOrderAUMChange(date time.Time) float64 {
	v := s.aumOrderChange.ValueAt(dayOf(date), eventmodels.RollTypeExact)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// GetAggregatedAUMChanges sums the committed day changes in [start, end].
func (s *Strategy) GetAggregatedAUMChanges(start, end time.Time) float64 {
	return s.aumChange.SumRange(dayOf(start), end)
}

// GetSODAUM is the start-of-day AUM projected to date: the committed AUM at
// the day open, plus the day's committed changes so far, plus whatever is
// still pending in orders. A strategy never runs a negative book; the floor
// is zero.
func (s *Strategy) GetSODAUM(date time.Time) float64 {
	day := dayOf(date)
	base := s.aum.ValueAt(day, eventmodels.RollTypeLast)
	if math.IsNaN(base) {
		base = 0
	}
	return math.Max(0, base+s.aumChange.SumRange(day, date)+s.GetOrderAUMChange(date))
}

// GetNextAUM is the level the book will hold once the pending order change
// books: the committed AUM plus whatever sits unbooked in orders.
func (s *Strategy) GetNextAUM(date time.Time) float64 {
	return s.GetAUM(date) + s.GetOrderAUMChange(date)
}

// UpdateAUM commits a new AUM level at date, accumulating the delta into the
// day's change series. With updatePortfolio the wrapped portfolio's notional
// is retargeted to the new level in the same call.
func (s *Strategy) UpdateAUM(date time.Time, aumValue float64, updatePortfolio bool) error {
	if math.IsNaN(aumValue) || math.IsInf(aumValue, 0) {
		return fmt.Errorf("UpdateAUM: strategy %d: invalid AUM %f", s.ID, aumValue)
	}

	old := s.GetAUM(date)
	s.aum.AddPoint(date, aumValue)

	day := dayOf(date)
	change := s.aumChange.ValueAt(day, eventmodels.RollTypeExact)
	if math.IsNaN(change) {
		change = 0
	}
	s.aumChange.AddPoint(day, change+(aumValue-old))

	eventpubsub.Publish(eventpubsub.TopicAUMUpdated, eventpubsub.AUMUpdatedEvent{
		StrategyID: s.ID,
		Value:      aumValue,
		Timestamp:  date,
	})
	emitAUMChange(s, date, old, aumValue)

	if updatePortfolio {
		if err := s.portfolio.UpdateNotional(date, aumValue, false); err != nil {
			return fmt.Errorf("UpdateAUM: strategy %d: %w", s.ID, err)
		}
	}

	return nil
}

// UpdateAUMOrder accumulates a pending AUM change on the day's order series.
// A fully invested book with no orders in flight cannot absorb a flow until
// the next rebalance, so the change is skipped rather than queued blind.
func (s *Strategy) UpdateAUMOrder(orderDate time.Time, aumValue float64) error {
	if math.IsNaN(aumValue) || math.IsInf(aumValue, 0) {
		return fmt.Errorf("UpdateAUMOrder: strategy %d: invalid AUM change %f", s.ID, aumValue)
	}

	if aumValue != 0 && len(s.portfolio.OpenOrders(orderDate, false)) == 0 && len(s.portfolio.RiskPositions(orderDate, false)) > 0 {
		log.Debugf("UpdateAUMOrder: strategy %d: no open orders against invested book, skipping change %f", s.ID, aumValue)
		return nil
	}

	day := dayOf(orderDate)
	pending := s.aumOrderChange.ValueAt(day, eventmodels.RollTypeExact)
	if math.IsNaN(pending) {
		pending = 0
	}
	s.aumOrderChange.AddPoint(day, pending+aumValue)

	return nil
}

func (s *Strategy) SetAUMPoint(date time.Time, value float64) {
	s.aum.AddPoint(date, value)
}

func (s *Strategy) SetAUMChangePoint(date time.Time, value float64) {
	s.aumChange.AddPoint(dayOf(date), value)
}

func (s *Strategy) SetOrderAUMChangePoint(date time.Time, value float64) {
	s.aumOrderChange.AddPoint(dayOf(date), value)
}

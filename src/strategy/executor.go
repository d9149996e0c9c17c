package strategy

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ILogic is the trading logic plugged into a strategy. ExecuteLogic places
// orders through the strategy's portfolio; the executor drives everything
// around it.
type ILogic interface {
	ExecuteLogic(s *Strategy, date time.Time) error
}

// IPreNAVCalculation runs before the NAV is struck, for logic that needs to
// adjust holdings first (corporate actions, carry realization).
type IPreNAVCalculation interface {
	PreNAVCalculation(s *Strategy, date time.Time) error
}

// IPostExecuteLogic runs after order placement and before submission.
type IPostExecuteLogic interface {
	PostExecuteLogic(s *Strategy, date time.Time) error
}

// Executor drives strategy lifecycles. A strategy that is still mid-cycle when
// asked to run again is skipped silently; overlapping runs of the same
// strategy would interleave their ledger writes.
type Executor struct {
	mu      sync.Mutex
	running map[int]bool
}

func NewExecutor() *Executor {
	return &Executor{running: make(map[int]bool)}
}

func (e *Executor) tryAcquire(strategyID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running[strategyID] {
		return false
	}
	e.running[strategyID] = true
	return true
}

func (e *Executor) release(strategyID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, strategyID)
}

// Execute runs one full lifecycle pass for the strategy at date: pre-NAV
// adjustments, NAV strike, trading logic, post-logic, order submission and
// booking, then a storage flush.
func (e *Executor) Execute(s *Strategy, logic ILogic, date time.Time) error {
	if !e.tryAcquire(s.ID) {
		log.Debugf("Execute: strategy %d already running at %s, skipping", s.ID, date.Format(time.RFC3339))
		return nil
	}
	defer e.release(s.ID)

	if pre, ok := logic.(IPreNAVCalculation); ok {
		if err := pre.PreNAVCalculation(s, date); err != nil {
			return fmt.Errorf("Execute: strategy %d: pre NAV: %w", s.ID, err)
		}
	}

	if err := e.navCalculation(s, date); err != nil {
		return fmt.Errorf("Execute: strategy %d: NAV: %w", s.ID, err)
	}

	if logic != nil {
		if err := logic.ExecuteLogic(s, date); err != nil {
			return fmt.Errorf("Execute: strategy %d: logic: %w", s.ID, err)
		}
	}

	if post, ok := logic.(IPostExecuteLogic); ok {
		if err := post.PostExecuteLogic(s, date); err != nil {
			return fmt.Errorf("Execute: strategy %d: post logic: %w", s.ID, err)
		}
	}

	s.portfolio.SubmitOrders(date)
	s.portfolio.BookOrders(date)

	if err := s.portfolio.Save(); err != nil {
		return fmt.Errorf("Execute: strategy %d: %w", s.ID, err)
	}

	return nil
}

// navCalculation marks the book to market and commits the result as the
// strategy's AUM, without touching the portfolio's holdings.
func (e *Executor) navCalculation(s *Strategy, date time.Time) error {
	s.portfolio.UpdatePositions(date)
	value := s.portfolio.Value(date, false)
	return s.UpdateAUM(date, value, false)
}

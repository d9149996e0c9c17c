package strategy

import (
	"time"

	"github.com/kataras/go-events"
	log "github.com/sirupsen/logrus"
)

const (
	// EventAUMChange fires on every AUM commit with the old and new level.
	EventAUMChange events.EventName = "strategy:aum_change"
)

// AUMChangeListener receives AUM commits. Listeners run synchronously on the
// committing goroutine and must not write back into the strategy.
type AUMChangeListener func(strategyID int, date time.Time, oldValue, newValue float64)

// OnAUMChange registers a listener for AUM commits across all strategies.
func OnAUMChange(listener AUMChangeListener) {
	events.On(EventAUMChange, func(payload ...interface{}) {
		if len(payload) != 4 {
			log.Errorf("OnAUMChange: malformed payload of length %d", len(payload))
			return
		}

		strategyID, ok1 := payload[0].(int)
		date, ok2 := payload[1].(time.Time)
		oldValue, ok3 := payload[2].(float64)
		newValue, ok4 := payload[3].(float64)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			log.Errorf("OnAUMChange: malformed payload types")
			return
		}

		listener(strategyID, date, oldValue, newValue)
	})
}

func emitAUMChange(s *Strategy, date time.Time, oldValue, newValue float64) {
	events.Emit(EventAUMChange, s.ID, date, oldValue, newValue)
}

package eventmodels

import "time"

// VirtualPosition is an ephemeral exposure preview: the sum of a confirmed
// position's unit and any still-open order units for the same instrument. It
// is never persisted.
type VirtualPosition struct {
	InstrumentID int       `json:"instrument_id"`
	Timestamp    time.Time `json:"timestamp"`
	Unit         float64   `json:"unit"`
}

package eventmodels

import "time"

type CorporateActionType string

const (
	CorporateActionSplit        CorporateActionType = "split"
	CorporateActionCashDividend CorporateActionType = "cash_dividend"
)

// CorporateAction is an already-resolved action to apply to positions and open
// orders; sourcing actions is a collaborator concern. Processed is only set
// once the application succeeded, so failed actions are retried on the next
// calendar pass.
type CorporateAction struct {
	ID           string              `json:"id"`
	InstrumentID int                 `json:"instrument_id"`
	ExDate       time.Time           `json:"ex_date"`
	Type         CorporateActionType `json:"type"`
	Factor       float64             `json:"factor"`
	Amount       float64             `json:"amount"`
	Processed    bool                `json:"processed"`
}

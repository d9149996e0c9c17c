package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

// PositionRecord is the persisted form of a direct position snapshot.
// Aggregated snapshots are derived state and never stored.
type PositionRecord struct {
	gorm.Model
	PortfolioID            int       `gorm:"column:portfolio_id;not null;index:idx_position_lookup"`
	InstrumentID           int       `gorm:"column:instrument_id;not null;index:idx_position_lookup"`
	Unit                   float64   `gorm:"column:unit;type:numeric;not null"`
	Timestamp              time.Time `gorm:"column:timestamp;type:timestamp;not null;index:idx_position_lookup"`
	Strike                 float64   `gorm:"column:strike;type:numeric;not null"`
	StrikeTimestamp        time.Time `gorm:"column:strike_timestamp;type:timestamp;not null"`
	InitialStrike          float64   `gorm:"column:initial_strike;type:numeric;not null"`
	InitialStrikeTimestamp time.Time `gorm:"column:initial_strike_timestamp;type:timestamp;not null"`
}

func (PositionRecord) TableName() string {
	return "positions"
}

func (r *PositionRecord) ToPosition() (*eventmodels.Position, error) {
	pos := &eventmodels.Position{}
	if err := copier.Copy(pos, r); err != nil {
		return nil, fmt.Errorf("ToPosition: %w", err)
	}
	return pos, nil
}

func NewPositionRecord(pos *eventmodels.Position) (*PositionRecord, error) {
	record := &PositionRecord{}
	if err := copier.Copy(record, pos); err != nil {
		return nil, fmt.Errorf("NewPositionRecord: %w", err)
	}
	return record, nil
}

// OrderRecord is the persisted form of a direct order. Mirrors are rebuilt by
// propagation and never stored.
type OrderRecord struct {
	gorm.Model
	OrderID        string     `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	PortfolioID    int        `gorm:"column:portfolio_id;not null;index"`
	InstrumentID   int        `gorm:"column:instrument_id;not null"`
	Unit           float64    `gorm:"column:unit;type:numeric;not null"`
	OrderDate      time.Time  `gorm:"column:order_date;type:timestamp;not null;index"`
	ExecutionDate  *time.Time `gorm:"column:execution_date;type:timestamp"`
	OrderType      string     `gorm:"column:order_type;type:text;not null"`
	LimitLevel     *float64   `gorm:"column:limit_level;type:numeric"`
	Status         string     `gorm:"column:status;type:text;not null"`
	ExecutionLevel *float64   `gorm:"column:execution_level;type:numeric"`
	Client         string     `gorm:"column:client;type:text"`
	Destination    string     `gorm:"column:destination;type:text"`
	Account        string     `gorm:"column:account;type:text"`
}

func (OrderRecord) TableName() string {
	return "orders"
}

func (r *OrderRecord) ToOrder() *eventmodels.Order {
	order := &eventmodels.Order{
		ID:           r.OrderID,
		PortfolioID:  r.PortfolioID,
		InstrumentID: r.InstrumentID,
		Unit:         r.Unit,
		OrderDate:    r.OrderDate,
		Type:         eventmodels.OrderType(r.OrderType),
		Status:       eventmodels.OrderStatus(r.Status),
		Client:       r.Client,
		Destination:  r.Destination,
		Account:      r.Account,
	}

	if r.ExecutionDate != nil {
		order.ExecutionDate = *r.ExecutionDate
	}
	if r.LimitLevel != nil {
		order.Limit = *r.LimitLevel
	}
	if r.ExecutionLevel != nil {
		order.ExecutionLevel = *r.ExecutionLevel
	} else {
		order.ExecutionLevel = math.NaN()
	}

	return order
}

func NewOrderRecord(order *eventmodels.Order) *OrderRecord {
	record := &OrderRecord{
		OrderID:      order.ID,
		PortfolioID:  order.PortfolioID,
		InstrumentID: order.InstrumentID,
		Unit:         order.Unit,
		OrderDate:    order.OrderDate,
		OrderType:    string(order.Type),
		Status:       string(order.Status),
		Client:       order.Client,
		Destination:  order.Destination,
		Account:      order.Account,
	}

	if !order.ExecutionDate.IsZero() {
		d := order.ExecutionDate
		record.ExecutionDate = &d
	}
	if order.Limit != 0 {
		l := order.Limit
		record.LimitLevel = &l
	}
	if !math.IsNaN(order.ExecutionLevel) {
		level := order.ExecutionLevel
		record.ExecutionLevel = &level
	}

	return record
}

// PropertyRecord stores named key/value metadata per instrument.
type PropertyRecord struct {
	gorm.Model
	InstrumentID int    `gorm:"column:instrument_id;not null;uniqueIndex:idx_property"`
	Name         string `gorm:"column:name;type:text;not null;uniqueIndex:idx_property"`
	Value        string `gorm:"column:value;type:text;not null"`
}

func (PropertyRecord) TableName() string {
	return "instrument_properties"
}

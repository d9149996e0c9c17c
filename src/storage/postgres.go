package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
	"github.com/jiaming2012/portfolio-kernel/src/logger"
)

// PostgresRepository persists positions, orders and instrument properties in
// postgres.
type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.NewLogrusLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("NewPostgresRepository: open: %w", err)
	}

	if err := db.AutoMigrate(&PositionRecord{}, &OrderRecord{}, &PropertyRecord{}); err != nil {
		return nil, fmt.Errorf("NewPostgresRepository: migrate: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// LoadPositions returns the direct snapshots for a portfolio up to date.
func (r *PostgresRepository) LoadPositions(portfolioID int, date time.Time) ([]*eventmodels.Position, error) {
	var records []PositionRecord
	if err := r.db.Where("portfolio_id = ? AND timestamp <= ?", portfolioID, date).Order("timestamp asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("LoadPositions: portfolio %d: %w", portfolioID, err)
	}

	positions := make([]*eventmodels.Position, 0, len(records))
	for i := range records {
		pos, err := records[i].ToPosition()
		if err != nil {
			return nil, fmt.Errorf("LoadPositions: portfolio %d: %w", portfolioID, err)
		}
		pos.PortfolioID = portfolioID
		positions = append(positions, pos)
	}

	return positions, nil
}

// LoadOrders returns the direct orders for a portfolio up to date.
func (r *PostgresRepository) LoadOrders(portfolioID int, date time.Time) ([]*eventmodels.Order, error) {
	var records []OrderRecord
	if err := r.db.Where("portfolio_id = ? AND order_date <= ?", portfolioID, date).Order("order_date asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("LoadOrders: portfolio %d: %w", portfolioID, err)
	}

	orders := make([]*eventmodels.Order, 0, len(records))
	for i := range records {
		orders = append(orders, records[i].ToOrder())
	}

	return orders, nil
}

func (r *PostgresRepository) SaveNewPositions(portfolioID int, positions []*eventmodels.Position) error {
	if len(positions) == 0 {
		return nil
	}

	records := make([]*PositionRecord, 0, len(positions))
	for _, pos := range positions {
		record, err := NewPositionRecord(pos)
		if err != nil {
			return fmt.Errorf("SaveNewPositions: portfolio %d: %w", portfolioID, err)
		}
		record.PortfolioID = portfolioID
		records = append(records, record)
	}

	if err := r.db.Create(&records).Error; err != nil {
		return fmt.Errorf("SaveNewPositions: portfolio %d: %w", portfolioID, err)
	}

	return nil
}

// UpdateOrder upserts the order keyed on its external ID.
func (r *PostgresRepository) UpdateOrder(order *eventmodels.Order) error {
	record := NewOrderRecord(order)

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("UpdateOrder: order %s: %w", order.ID, err)
	}

	return nil
}

func (r *PostgresRepository) LastPositionTimestamp(portfolioID int, date time.Time) (time.Time, error) {
	var record PositionRecord
	err := r.db.Where("portfolio_id = ? AND timestamp <= ?", portfolioID, date).Order("timestamp desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("LastPositionTimestamp: portfolio %d: %w", portfolioID, err)
	}
	return record.Timestamp, nil
}

func (r *PostgresRepository) FirstPositionTimestamp(portfolioID int, date time.Time) (time.Time, error) {
	var record PositionRecord
	err := r.db.Where("portfolio_id = ? AND timestamp <= ?", portfolioID, date).Order("timestamp asc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("FirstPositionTimestamp: portfolio %d: %w", portfolioID, err)
	}
	return record.Timestamp, nil
}

func (r *PostgresRepository) GetProperty(instrumentID int, name string) (string, error) {
	var record PropertyRecord
	err := r.db.Where("instrument_id = ? AND name = ?", instrumentID, name).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetProperty: instrument %d %s: %w", instrumentID, name, err)
	}
	return record.Value, nil
}

func (r *PostgresRepository) SetProperty(instrumentID int, name, value string) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&PropertyRecord{InstrumentID: instrumentID, Name: name, Value: value}).Error
	if err != nil {
		return fmt.Errorf("SetProperty: instrument %d %s: %w", instrumentID, name, err)
	}
	return nil
}

package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

type PositionCSVRow struct {
	PortfolioID  int     `csv:"portfolio_id"`
	InstrumentID int     `csv:"instrument_id"`
	Unit         float64 `csv:"unit"`
	Timestamp    string  `csv:"timestamp"`
	Strike       float64 `csv:"strike"`
	Aggregated   bool    `csv:"aggregated"`
}

type OrderCSVRow struct {
	OrderID        string  `csv:"order_id"`
	PortfolioID    int     `csv:"portfolio_id"`
	InstrumentID   int     `csv:"instrument_id"`
	Unit           float64 `csv:"unit"`
	OrderDate      string  `csv:"order_date"`
	Status         string  `csv:"status"`
	ExecutionLevel float64 `csv:"execution_level"`
}

// ExportPositionsCSV writes position snapshots to a csv file for inspection.
func ExportPositionsCSV(path string, positions []*eventmodels.Position) error {
	rows := make([]*PositionCSVRow, 0, len(positions))
	for _, pos := range positions {
		rows = append(rows, &PositionCSVRow{
			PortfolioID:  pos.PortfolioID,
			InstrumentID: pos.InstrumentID,
			Unit:         pos.Unit,
			Timestamp:    pos.Timestamp.Format(time.RFC3339),
			Strike:       pos.Strike,
			Aggregated:   pos.Aggregated,
		})
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ExportPositionsCSV: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("ExportPositionsCSV: %w", err)
	}
	return nil
}

// ExportOrdersCSV writes orders to a csv file for inspection.
func ExportOrdersCSV(path string, orders []*eventmodels.Order) error {
	rows := make([]*OrderCSVRow, 0, len(orders))
	for _, order := range orders {
		rows = append(rows, &OrderCSVRow{
			OrderID:        order.ID,
			PortfolioID:    order.PortfolioID,
			InstrumentID:   order.InstrumentID,
			Unit:           order.Unit,
			OrderDate:      order.OrderDate.Format(time.RFC3339),
			Status:         string(order.Status),
			ExecutionLevel: order.ExecutionLevel,
		})
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ExportOrdersCSV: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("ExportOrdersCSV: %w", err)
	}
	return nil
}

package storage

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestMemoryRepository(t *testing.T) {
	t.Run("round trips positions up to the load date", func(t *testing.T) {
		repo := NewMemoryRepository()

		early := eventmodels.NewPosition(1, 7, 10, day(2), 1000, day(2), 1000, day(2), false)
		late := eventmodels.NewPosition(1, 7, 12, day(9), 1200, day(9), 1000, day(2), false)
		require.NoError(t, repo.SaveNewPositions(1, []*eventmodels.Position{early, late}))

		loaded, err := repo.LoadPositions(1, day(5))
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.True(t, loaded[0].Equals(early))
	})

	t.Run("timestamp bounds", func(t *testing.T) {
		repo := NewMemoryRepository()

		first := eventmodels.NewPosition(1, 7, 10, day(2), 1000, day(2), 1000, day(2), false)
		last := eventmodels.NewPosition(1, 7, 12, day(6), 1200, day(6), 1000, day(2), false)
		require.NoError(t, repo.SaveNewPositions(1, []*eventmodels.Position{first, last}))

		lastTS, err := repo.LastPositionTimestamp(1, day(9))
		require.NoError(t, err)
		assert.Equal(t, day(6), lastTS)

		firstTS, err := repo.FirstPositionTimestamp(1, day(9))
		require.NoError(t, err)
		assert.Equal(t, day(2), firstTS)

		none, err := repo.LastPositionTimestamp(1, day(1))
		require.NoError(t, err)
		assert.True(t, none.IsZero())
	})

	t.Run("update order upserts by ID", func(t *testing.T) {
		repo := NewMemoryRepository()

		order := eventmodels.NewOrder(1, 7, 10, day(2), eventmodels.OrderTypeMarket, 0)
		require.NoError(t, repo.UpdateOrder(order))

		order.Status = eventmodels.OrderStatusBooked
		require.NoError(t, repo.UpdateOrder(order))

		loaded, err := repo.LoadOrders(1, day(9))
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, eventmodels.OrderStatusBooked, loaded[0].Status)
	})

	t.Run("properties", func(t *testing.T) {
		repo := NewMemoryRepository()

		require.NoError(t, repo.SetProperty(7, "isin", "US0000000001"))
		value, err := repo.GetProperty(7, "isin")
		require.NoError(t, err)
		assert.Equal(t, "US0000000001", value)

		missing, err := repo.GetProperty(7, "cusip")
		require.NoError(t, err)
		assert.Empty(t, missing)
	})
}

func TestMemoryMarketData(t *testing.T) {
	t.Run("missing data is NaN", func(t *testing.T) {
		market := NewMemoryMarketData()
		assert.True(t, math.IsNaN(market.GetValue(7, day(2), eventmodels.SeriesTypeLast, eventmodels.DefaultProvider, eventmodels.RollTypeLast)))
	})

	t.Run("values roll forward", func(t *testing.T) {
		market := NewMemoryMarketData()
		market.SetValue(7, day(2), 100)

		assert.Equal(t, 100.0, market.GetValue(7, day(5), eventmodels.SeriesTypeLast, eventmodels.DefaultProvider, eventmodels.RollTypeLast))
		assert.True(t, math.IsNaN(market.GetValue(7, day(5), eventmodels.SeriesTypeLast, eventmodels.DefaultProvider, eventmodels.RollTypeExact)))
	})

	t.Run("fx falls back to the inverse pair", func(t *testing.T) {
		market := NewMemoryMarketData()
		market.SetFXRate(eventmodels.CurrencyEUR, eventmodels.CurrencyUSD, day(2), 1.25)

		assert.Equal(t, 1.25, market.FXRate(eventmodels.CurrencyEUR, eventmodels.CurrencyUSD, day(2)))
		assert.InDelta(t, 0.8, market.FXRate(eventmodels.CurrencyUSD, eventmodels.CurrencyEUR, day(2)), 1e-9)
		assert.Equal(t, 1.0, market.FXRate(eventmodels.CurrencyUSD, eventmodels.CurrencyUSD, day(2)))
		assert.True(t, math.IsNaN(market.FXRate(eventmodels.CurrencyGBP, eventmodels.CurrencyUSD, day(2))))
	})
}

func TestOrderRecordRoundTrip(t *testing.T) {
	order := eventmodels.NewOrder(1, 7, 10, day(2), eventmodels.OrderTypeLimit, 99.5)
	order.Status = eventmodels.OrderStatusExecuted
	order.ExecutionLevel = 100.25
	order.ExecutionDate = day(3)

	restored := NewOrderRecord(order).ToOrder()
	assert.True(t, order.Equals(restored))
	assert.Equal(t, order.Status, restored.Status)
	assert.Equal(t, order.ExecutionLevel, restored.ExecutionLevel)
	assert.Equal(t, order.Limit, restored.Limit)
}

func TestExportPositionsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.csv")

	positions := []*eventmodels.Position{
		eventmodels.NewPosition(1, 7, 10, day(2), 1000, day(2), 1000, day(2), false),
	}

	require.NoError(t, ExportPositionsCSV(path, positions))
	assert.FileExists(t, path)
}

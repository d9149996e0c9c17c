package eventmodels

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusCanTransition(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusNew, OrderStatusSubmitted, true},
		{OrderStatusNew, OrderStatusExecuted, true},
		{OrderStatusNew, OrderStatusNotExecuted, true},
		{OrderStatusNew, OrderStatusBooked, false},
		{OrderStatusSubmitted, OrderStatusExecuted, true},
		{OrderStatusSubmitted, OrderStatusNotExecuted, true},
		{OrderStatusSubmitted, OrderStatusNew, false},
		{OrderStatusExecuted, OrderStatusBooked, true},
		{OrderStatusExecuted, OrderStatusSubmitted, false},
		{OrderStatusBooked, OrderStatusExecuted, false},
		{OrderStatusNotExecuted, OrderStatusSubmitted, false},
		// Re-applying the current status is always legal.
		{OrderStatusBooked, OrderStatusBooked, true},
		{OrderStatusNew, OrderStatusNew, true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusBooked.IsTerminal())
	assert.True(t, OrderStatusNotExecuted.IsTerminal())
	assert.True(t, OrderStatusNew.IsOpen())
	assert.True(t, OrderStatusSubmitted.IsOpen())
	assert.True(t, OrderStatusExecuted.IsOpen())
}

func TestOrderEquals(t *testing.T) {
	date := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	a := NewOrder(1, 2, 10, date, OrderTypeMarket, 0)
	b := NewOrder(1, 2, 10, date, OrderTypeMarket, 0)

	assert.True(t, a.Equals(b))

	b.Unit = 11
	assert.False(t, a.Equals(b))

	mirror := a.Mirror(9)
	assert.False(t, a.Equals(mirror))
	assert.Equal(t, a.ID, mirror.ID)
	assert.True(t, mirror.Aggregated)
}

func TestUpdateWeightedUnitExecutionLevel(t *testing.T) {
	t.Run("weights the level by the incremental fill", func(t *testing.T) {
		date := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
		order := NewOrder(1, 2, 10, date, OrderTypeMarket, 0)
		order.ExecutionLevel = 100

		require.NoError(t, order.UpdateWeightedUnitExecutionLevel(10, 110))

		assert.Equal(t, 20.0, order.Unit)
		assert.InDelta(t, 105.0, order.ExecutionLevel, 1e-9)
	})

	t.Run("first fill replaces the NaN level", func(t *testing.T) {
		date := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
		order := NewOrder(1, 2, 0, date, OrderTypeMarket, 0)
		require.True(t, math.IsNaN(order.ExecutionLevel))

		require.NoError(t, order.UpdateWeightedUnitExecutionLevel(10, 100))
		assert.Equal(t, 100.0, order.ExecutionLevel)
	})

	t.Run("terminal orders cannot be amended", func(t *testing.T) {
		date := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
		order := NewOrder(1, 2, 10, date, OrderTypeMarket, 0)
		order.Status = OrderStatusBooked

		assert.Error(t, order.UpdateWeightedUnitExecutionLevel(5, 100))
	})

	t.Run("negative level is rejected", func(t *testing.T) {
		date := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
		order := NewOrder(1, 2, 10, date, OrderTypeMarket, 0)

		assert.Error(t, order.UpdateWeightedUnitExecutionLevel(5, -1))
	})
}

func TestNormalizeUnit(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeUnit(5e-8))
	assert.Equal(t, 0.0, NormalizeUnit(-5e-8))
	assert.Equal(t, 1e-6, NormalizeUnit(1e-6))
	assert.Equal(t, -3.5, NormalizeUnit(-3.5))
}

package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

func TestUpdateReservePosition(t *testing.T) {
	t.Run("credit lands on the long leg", func(t *testing.T) {
		f := newFixture()

		pos, err := f.child.UpdateReservePosition(ts(2, 10), 100, eventmodels.CurrencyUSD, false)
		require.NoError(t, err)

		assert.Equal(t, f.usdLong.ID, pos.InstrumentID)
		assert.Equal(t, 100.0, pos.Unit)
	})

	t.Run("a debit through zero flips the balance onto the short leg", func(t *testing.T) {
		f := newFixture()

		_, err := f.child.UpdateReservePosition(ts(2, 10), 100, eventmodels.CurrencyUSD, false)
		require.NoError(t, err)

		pos, err := f.child.UpdateReservePosition(ts(2, 11), -150, eventmodels.CurrencyUSD, false)
		require.NoError(t, err)

		assert.Equal(t, f.usdShort.ID, pos.InstrumentID)
		assert.Equal(t, -50.0, pos.Unit)

		long := f.child.positions.findLatestSnapshot(f.usdLong.ID, ts(2, 11), false)
		require.NotNil(t, long)
		assert.Equal(t, 0.0, long.Unit)

		live := f.child.GetReservePosition(eventmodels.CurrencyUSD, ts(2, 11))
		require.NotNil(t, live)
		assert.Equal(t, f.usdShort.ID, live.InstrumentID)
	})

	t.Run("flipping back reopens the long leg", func(t *testing.T) {
		f := newFixture()

		_, err := f.child.UpdateReservePosition(ts(2, 10), -100, eventmodels.CurrencyUSD, false)
		require.NoError(t, err)

		pos, err := f.child.UpdateReservePosition(ts(2, 11), 160, eventmodels.CurrencyUSD, false)
		require.NoError(t, err)

		assert.Equal(t, f.usdLong.ID, pos.InstrumentID)
		assert.Equal(t, 60.0, pos.Unit)
	})

	t.Run("missing reserve configuration is an error", func(t *testing.T) {
		f := newFixture()

		_, err := f.child.UpdateReservePosition(ts(2, 10), 100, eventmodels.CurrencyEUR, false)
		assert.ErrorIs(t, err, ErrNoReserve)
	})

	t.Run("cash flows conserve across trade and reserve", func(t *testing.T) {
		f := newFixture()
		f.market.SetValue(f.stock.ID, ts(2, 10), 100.0)

		_, err := f.child.CreatePosition(f.stock, ts(2, 10), 10, 100.0)
		require.NoError(t, err)

		// Stock is worth +1000, reserve carries -1000: the book nets to zero.
		assert.InDelta(t, 0.0, f.child.Value(ts(2, 10), false), 1e-9)
	})
}

func TestUpdateNotional(t *testing.T) {
	t.Run("tops the reserve up to the target", func(t *testing.T) {
		f := newFixture()

		require.NoError(t, f.child.UpdateNotional(ts(2, 10), 5000, false))

		reserve := f.child.GetReservePosition(eventmodels.CurrencyUSD, ts(2, 10))
		require.NotNil(t, reserve)
		assert.Equal(t, 5000.0, reserve.Unit)
	})

	t.Run("timestamp-only rolls without cash movement", func(t *testing.T) {
		f := newFixture()

		require.NoError(t, f.child.UpdateNotional(ts(2, 10), 5000, false))
		require.NoError(t, f.child.UpdateNotional(ts(3, 10), 9999, true))

		reserve := f.child.GetReservePosition(eventmodels.CurrencyUSD, ts(3, 10))
		require.NotNil(t, reserve)
		assert.Equal(t, 5000.0, reserve.Unit)
		assert.Equal(t, ts(3, 10), reserve.Timestamp)
	})
}

func TestUpdateNotionalOrder(t *testing.T) {
	f := newFixture()

	order, err := f.child.UpdateNotionalOrder(ts(2, 9), 2500)
	require.NoError(t, err)

	assert.Equal(t, f.usdLong.ID, order.InstrumentID)
	assert.Equal(t, 2500.0, order.Unit)
	assert.Equal(t, eventmodels.OrderStatusNew, order.Status)
}

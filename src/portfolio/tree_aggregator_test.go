package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
)

func TestUpdateAggregatedPositionTree(t *testing.T) {
	t.Run("every ancestor shifts by exactly the traded delta", func(t *testing.T) {
		f := newFixture()
		grandchild := f.addGrandchild()

		_, err := grandchild.CreatePosition(f.stock, ts(2, 10), 10, 100.0)
		require.NoError(t, err)

		for _, node := range []*Portfolio{grandchild, f.child, f.master} {
			agg := node.FindPosition(f.stock, ts(2, 10), true)
			require.NotNil(t, agg, "portfolio %d", node.ID)
			assert.Equal(t, 10.0, agg.Unit)
			assert.True(t, agg.Aggregated)
		}

		// Trade again in the grandchild: every level moves by the delta, not
		// the full unit.
		_, err = grandchild.CreatePosition(f.stock, ts(2, 11), 14, 101.0)
		require.NoError(t, err)

		for _, node := range []*Portfolio{grandchild, f.child, f.master} {
			agg := node.FindPosition(f.stock, ts(2, 11), true)
			require.NotNil(t, agg)
			assert.Equal(t, 14.0, agg.Unit)
		}
	})

	t.Run("the owning portfolio aggregates its own direct holding", func(t *testing.T) {
		f := newFixture()

		_, err := f.child.CreatePosition(f.stock, ts(2, 10), 10, 100.0)
		require.NoError(t, err)

		agg := f.child.FindPosition(f.stock, ts(2, 10), true)
		require.NotNil(t, agg)
		assert.Equal(t, 10.0, agg.Unit)
		assert.True(t, agg.Aggregated)

		direct := f.child.FindPosition(f.stock, ts(2, 10), false)
		require.NotNil(t, direct)
		assert.Equal(t, direct.Unit, agg.Unit)
	})

	t.Run("siblings sum in the common ancestor", func(t *testing.T) {
		f := newFixture()
		sibling := NewPortfolio(f.registry, f.repo, f.market, f.registry.NextID(), "sibling", eventmodels.CurrencyUSD, nil)
		sibling.SetParent(f.master.ID)

		_, err := f.child.CreatePosition(f.stock, ts(2, 10), 10, 100.0)
		require.NoError(t, err)
		_, err = sibling.CreatePosition(f.stock, ts(2, 11), 7, 101.0)
		require.NoError(t, err)

		agg := f.master.FindPosition(f.stock, ts(2, 11), true)
		require.NotNil(t, agg)
		assert.Equal(t, 17.0, agg.Unit)
	})

	t.Run("a full close zeroes the ancestor view", func(t *testing.T) {
		f := newFixture()

		_, err := f.child.CreatePosition(f.stock, ts(2, 10), 10, 100.0)
		require.NoError(t, err)
		_, err = f.child.CreatePosition(f.stock, ts(2, 11), 0, 105.0)
		require.NoError(t, err)

		assert.Nil(t, f.master.FindPosition(f.stock, ts(2, 11), true))
	})

	t.Run("aggregated records never persist", func(t *testing.T) {
		f := newFixture()

		_, err := f.child.CreatePosition(f.stock, ts(2, 10), 10, 100.0)
		require.NoError(t, err)

		require.NoError(t, f.master.Save())
		assert.Equal(t, 0, f.repo.PositionCount(f.master.ID))
	})
}

func TestRiskPositions(t *testing.T) {
	f := newFixture()

	_, err := f.child.CreatePosition(f.stock, ts(2, 10), 10, 100.0)
	require.NoError(t, err)

	all := f.child.Positions(ts(2, 10), false)
	risk := f.child.RiskPositions(ts(2, 10), false)

	assert.Len(t, all, 2)
	require.Len(t, risk, 1)
	assert.Equal(t, f.stock.ID, risk[0].InstrumentID)
}

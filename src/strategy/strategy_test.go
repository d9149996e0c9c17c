package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
	"github.com/jiaming2012/portfolio-kernel/src/portfolio"
	"github.com/jiaming2012/portfolio-kernel/src/storage"
)

type fixture struct {
	registry *portfolio.Registry
	repo     *storage.MemoryRepository
	market   *storage.MemoryMarketData

	master *portfolio.Portfolio
	child  *portfolio.Portfolio
	s      *Strategy

	usdLong    *eventmodels.Instrument
	usdShort   *eventmodels.Instrument
	stock      *eventmodels.Instrument
	strategyIn *eventmodels.Instrument
}

func newFixture() *fixture {
	f := &fixture{
		registry: portfolio.NewRegistry(),
		repo:     storage.NewMemoryRepository(),
		market:   storage.NewMemoryMarketData(),
	}

	f.master = portfolio.NewPortfolio(f.registry, f.repo, f.market, f.registry.NextID(), "master", eventmodels.CurrencyUSD, nil)
	f.child = portfolio.NewPortfolio(f.registry, f.repo, f.market, f.registry.NextID(), "child", eventmodels.CurrencyUSD, nil)
	f.child.SetParent(f.master.ID)

	f.usdLong = &eventmodels.Instrument{ID: f.registry.NextID(), Symbol: "USD-CASH", InstrumentType: eventmodels.InstrumentTypeReserve, Currency: eventmodels.CurrencyUSD}
	f.usdShort = &eventmodels.Instrument{ID: f.registry.NextID(), Symbol: "USD-BORROW", InstrumentType: eventmodels.InstrumentTypeReserve, Currency: eventmodels.CurrencyUSD}
	f.master.AddReserve(eventmodels.CurrencyUSD, f.usdLong, f.usdShort)

	f.stock = &eventmodels.Instrument{ID: f.registry.NextID(), Symbol: "ACME", Currency: eventmodels.CurrencyUSD}
	f.registry.AddInstrument(f.stock)

	strategyID := f.registry.NextID()
	f.strategyIn = &eventmodels.Instrument{
		ID:             f.registry.NextID(),
		Symbol:         "STRAT",
		InstrumentType: eventmodels.InstrumentTypeStrategy,
		Currency:       eventmodels.CurrencyUSD,
		PortfolioID:    f.child.ID,
		StrategyID:     strategyID,
	}
	f.registry.AddInstrument(f.strategyIn)

	f.s = NewStrategy(f.child, strategyID, f.strategyIn.ID, "test-strategy")
	return f
}

func ts(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestUpdateAUM(t *testing.T) {
	t.Run("commits the level and accumulates the day change", func(t *testing.T) {
		f := newFixture()

		require.NoError(t, f.s.UpdateAUM(ts(2, 10), 1000, false))
		require.NoError(t, f.s.UpdateAUM(ts(2, 14), 1250, false))

		assert.Equal(t, 1250.0, f.s.GetAUM(ts(2, 14)))
		assert.Equal(t, 1250.0, f.s.GetAUMChange(ts(2, 14)))
	})

	t.Run("retargets the portfolio when asked", func(t *testing.T) {
		f := newFixture()

		require.NoError(t, f.s.UpdateAUM(ts(2, 10), 1000, true))

		reserve := f.child.GetReservePosition(eventmodels.CurrencyUSD, ts(2, 10))
		require.NotNil(t, reserve)
		assert.Equal(t, 1000.0, reserve.Unit)
	})

	t.Run("rejects NaN", func(t *testing.T) {
		f := newFixture()
		assert.Error(t, f.s.UpdateAUM(ts(2, 10), math.NaN(), false))
	})
}

func TestGetSODAUM(t *testing.T) {
	t.Run("projects day open plus changes plus pending orders", func(t *testing.T) {
		f := newFixture()

		f.s.SetAUMPoint(ts(1, 18), 1000)
		f.s.SetAUMChangePoint(ts(2, 0), 50)
		f.s.SetOrderAUMChangePoint(ts(2, 0), 25)

		assert.Equal(t, 1075.0, f.s.GetSODAUM(ts(2, 12)))
	})

	t.Run("never negative", func(t *testing.T) {
		f := newFixture()

		f.s.SetAUMPoint(ts(1, 18), 100)
		f.s.SetOrderAUMChangePoint(ts(2, 0), -500)

		assert.Equal(t, 0.0, f.s.GetSODAUM(ts(2, 12)))
	})

	t.Run("zero before the first commit", func(t *testing.T) {
		f := newFixture()
		assert.Equal(t, 0.0, f.s.GetSODAUM(ts(2, 12)))
	})
}

func TestNestedStrategyBooking(t *testing.T) {
	t.Run("books an AUM subscription through the parent", func(t *testing.T) {
		f := newFixture()

		order, err := f.master.CreateOrder(f.strategyIn, 1000, ts(2, 9), eventmodels.OrderTypeMarket, 0)
		require.NoError(t, err)
		assert.Equal(t, 1000.0, f.s.GetOrderAUMChange(ts(2, 9)))

		f.master.SubmitOrders(ts(2, 9))
		f.master.BookOrders(ts(2, 10))

		assert.Equal(t, eventmodels.OrderStatusBooked, order.Status)
		assert.Equal(t, 1000.0, f.s.GetAUM(ts(2, 10)))
		assert.Equal(t, 0.0, f.s.GetOrderAUMChange(ts(2, 10)))

		// The child received the cash and the parent's reserve gave it up.
		childReserve := f.child.GetReservePosition(eventmodels.CurrencyUSD, ts(2, 10))
		require.NotNil(t, childReserve)
		assert.Equal(t, 1000.0, childReserve.Unit)

		masterReserve := f.master.GetReservePosition(eventmodels.CurrencyUSD, ts(2, 10))
		require.NotNil(t, masterReserve)
		assert.Equal(t, -1000.0, masterReserve.Unit)

		wrapper := f.master.FindPosition(f.strategyIn, ts(2, 10), false)
		require.NotNil(t, wrapper)
		assert.Equal(t, 1.0, wrapper.Unit)
	})

	t.Run("rejects the commit while the child has open risk orders", func(t *testing.T) {
		f := newFixture()

		order, err := f.master.CreateOrder(f.strategyIn, 1000, ts(2, 9), eventmodels.OrderTypeMarket, 0)
		require.NoError(t, err)

		blocking, err := f.child.CreateOrder(f.stock, 5, ts(2, 9), eventmodels.OrderTypeMarket, 0)
		require.NoError(t, err)

		f.master.BookOrders(ts(2, 10))

		// The order is rejected but the pending change stays parked, so the
		// strategy still sizes against the same target.
		assert.Equal(t, eventmodels.OrderStatusNotExecuted, order.Status)
		assert.Equal(t, 0.0, f.s.GetAUM(ts(2, 10)))
		assert.Equal(t, 1000.0, f.s.GetOrderAUMChange(ts(2, 10)))
		assert.Equal(t, 1000.0, f.s.GetSODAUM(ts(2, 10)))

		require.NoError(t, f.child.UpdateOrderTree(blocking, eventmodels.OrderStatusNotExecuted, math.NaN(), math.NaN(), ts(2, 11)))

		// The next pass re-issues against the parked change and commits.
		_, err = f.master.CreateOrder(f.strategyIn, 0, ts(2, 11), eventmodels.OrderTypeMarket, 0)
		require.NoError(t, err)

		f.master.BookOrders(ts(2, 11))

		assert.Equal(t, 1000.0, f.s.GetAUM(ts(2, 11)))
		assert.Equal(t, 0.0, f.s.GetOrderAUMChange(ts(2, 11)))
	})
}

type reentrantLogic struct {
	executor *Executor
	strategy *Strategy
	calls    int
}

func (l *reentrantLogic) ExecuteLogic(s *Strategy, date time.Time) error {
	l.calls++
	if l.calls == 1 {
		return l.executor.Execute(l.strategy, l, date)
	}
	return nil
}

func TestExecutor(t *testing.T) {
	t.Run("skips a re-entrant run of the same strategy", func(t *testing.T) {
		f := newFixture()
		executor := NewExecutor()

		logic := &reentrantLogic{executor: executor, strategy: f.s}
		require.NoError(t, executor.Execute(f.s, logic, ts(2, 10)))

		assert.Equal(t, 1, logic.calls)
	})

	t.Run("strikes the NAV as the strategy AUM", func(t *testing.T) {
		f := newFixture()
		executor := NewExecutor()

		_, err := f.child.UpdateReservePosition(ts(2, 9), 500, eventmodels.CurrencyUSD, false)
		require.NoError(t, err)

		require.NoError(t, executor.Execute(f.s, nil, ts(2, 10)))
		assert.Equal(t, 500.0, f.s.GetAUM(ts(2, 10)))
	})
}

func TestComputePerformance(t *testing.T) {
	t.Run("derives return statistics from the AUM series", func(t *testing.T) {
		f := newFixture()

		f.s.SetAUMPoint(ts(2, 18), 1000)
		f.s.SetAUMPoint(ts(3, 18), 1100)
		f.s.SetAUMPoint(ts(4, 18), 990)

		perf, err := f.s.ComputePerformance(ts(2, 0), ts(5, 0))
		require.NoError(t, err)

		assert.InDelta(t, -0.01, perf.TotalReturn, 1e-9)
		assert.Equal(t, 3, perf.Observations)
		assert.InDelta(t, -0.1, perf.MaxDrawdown, 1e-9)
		assert.Greater(t, perf.Volatility, 0.0)
	})

	t.Run("too few points is an error", func(t *testing.T) {
		f := newFixture()
		f.s.SetAUMPoint(ts(2, 18), 1000)

		_, err := f.s.ComputePerformance(ts(2, 0), ts(5, 0))
		assert.Error(t, err)
	})
}

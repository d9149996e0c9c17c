package portfolio

import (
	"time"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
	"github.com/jiaming2012/portfolio-kernel/src/storage"
)

type fixture struct {
	registry *Registry
	repo     *storage.MemoryRepository
	market   *storage.MemoryMarketData

	master *Portfolio
	child  *Portfolio

	usdLong  *eventmodels.Instrument
	usdShort *eventmodels.Instrument
	stock    *eventmodels.Instrument
}

func newFixture() *fixture {
	f := &fixture{
		registry: NewRegistry(),
		repo:     storage.NewMemoryRepository(),
		market:   storage.NewMemoryMarketData(),
	}

	f.master = NewPortfolio(f.registry, f.repo, f.market, f.registry.NextID(), "master", eventmodels.CurrencyUSD, nil)
	f.child = NewPortfolio(f.registry, f.repo, f.market, f.registry.NextID(), "child", eventmodels.CurrencyUSD, nil)
	f.child.SetParent(f.master.ID)

	f.usdLong = &eventmodels.Instrument{ID: f.registry.NextID(), Symbol: "USD-CASH", InstrumentType: eventmodels.InstrumentTypeReserve, Currency: eventmodels.CurrencyUSD}
	f.usdShort = &eventmodels.Instrument{ID: f.registry.NextID(), Symbol: "USD-BORROW", InstrumentType: eventmodels.InstrumentTypeReserve, Currency: eventmodels.CurrencyUSD}
	f.master.AddReserve(eventmodels.CurrencyUSD, f.usdLong, f.usdShort)

	f.stock = &eventmodels.Instrument{ID: f.registry.NextID(), Symbol: "ACME", Currency: eventmodels.CurrencyUSD}
	f.registry.AddInstrument(f.stock)

	return f
}

func (f *fixture) addGrandchild() *Portfolio {
	grandchild := NewPortfolio(f.registry, f.repo, f.market, f.registry.NextID(), "grandchild", eventmodels.CurrencyUSD, nil)
	grandchild.SetParent(f.child.ID)
	return grandchild
}

func ts(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

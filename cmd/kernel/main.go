package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiaming2012/portfolio-kernel/src/eventmodels"
	"github.com/jiaming2012/portfolio-kernel/src/eventpubsub"
	"github.com/jiaming2012/portfolio-kernel/src/portfolio"
	"github.com/jiaming2012/portfolio-kernel/src/storage"
	"github.com/jiaming2012/portfolio-kernel/src/strategy"
	"github.com/jiaming2012/portfolio-kernel/src/utils"
)

var (
	configPath string
	csvPath    string
)

var rootCmd = &cobra.Command{
	Use:   "kernel",
	Short: "Portfolio bookkeeping kernel",
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a one-day order lifecycle on an in-memory book",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo()
	},
}

func kernelConfig() (*utils.KernelConfig, *portfolio.Config) {
	cfg, err := utils.LoadKernelConfig(configPath)
	if err != nil {
		log.Warnf("kernelConfig: %v, using defaults", err)
		cfg = &utils.KernelConfig{}
	}

	out := portfolio.DefaultConfig()
	if cfg.UnitRounding != "" {
		out.UnitRounding = portfolio.UnitRoundingPolicy(cfg.UnitRounding)
	}
	out.EnableAggregatedCarry = cfg.EnableAggregatedCarry
	return cfg, out
}

// addReserves registers the configured cash legs, defaulting to a single USD
// pair when the config names none.
func addReserves(registry *portfolio.Registry, master *portfolio.Portfolio, cfg *utils.KernelConfig) {
	reserves := cfg.Reserves
	if len(reserves) == 0 {
		reserves = []utils.ReserveConfig{{Currency: "USD", LongSymbol: "USD-CASH", ShortSymbol: "USD-BORROW"}}
	}

	for _, r := range reserves {
		currency := eventmodels.NewCurrency(r.Currency)
		long := &eventmodels.Instrument{ID: registry.NextID(), Symbol: r.LongSymbol, InstrumentType: eventmodels.InstrumentTypeReserve, Currency: currency}
		short := &eventmodels.Instrument{ID: registry.NextID(), Symbol: r.ShortSymbol, InstrumentType: eventmodels.InstrumentTypeReserve, Currency: currency}
		master.AddReserve(currency, long, short)
	}
}

func runDemo() error {
	eventpubsub.Init()

	registry := portfolio.NewRegistry()
	repo := storage.NewMemoryRepository()
	market := storage.NewMemoryMarketData()
	cfg, config := kernelConfig()

	master := portfolio.NewPortfolio(registry, repo, market, registry.NextID(), "master", eventmodels.CurrencyUSD, config)
	child := portfolio.NewPortfolio(registry, repo, market, registry.NextID(), "equity-book", eventmodels.CurrencyUSD, config)
	child.SetParent(master.ID)

	addReserves(registry, master, cfg)

	stock := &eventmodels.Instrument{ID: registry.NextID(), Symbol: "ACME", Name: "Acme Corp", Currency: eventmodels.CurrencyUSD}
	registry.AddInstrument(stock)

	s := strategy.NewStrategy(child, registry.NextID(), registry.NextID(), "buy-and-hold")

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	open := day.Add(9*time.Hour + 30*time.Minute)
	fill := day.Add(10 * time.Hour)

	market.SetValue(stock.ID, open, 99.5)
	market.SetValue(stock.ID, fill, 100.0)

	order, err := child.CreateOrder(stock, 10, open, eventmodels.OrderTypeMarket, 0)
	if err != nil {
		return fmt.Errorf("runDemo: %w", err)
	}

	child.SubmitOrders(open)

	if err := child.UpdateOrderTree(order, eventmodels.OrderStatusExecuted, math.NaN(), 100.0, fill); err != nil {
		return fmt.Errorf("runDemo: %w", err)
	}

	child.BookOrders(fill)

	if err := child.Save(); err != nil {
		return fmt.Errorf("runDemo: %w", err)
	}

	nav := child.Value(fill, false)
	log.Infof("runDemo: strategy %s NAV %f", s, nav)

	printPositions(child.Positions(fill, false), master.Positions(fill, true))

	if csvPath != "" {
		all := append(child.Positions(fill, false), master.Positions(fill, true)...)
		if err := storage.ExportPositionsCSV(csvPath, all); err != nil {
			return fmt.Errorf("runDemo: %w", err)
		}
		log.Infof("runDemo: wrote %s", csvPath)
	}

	return nil
}

func printPositions(direct, aggregated []*eventmodels.Position) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Portfolio", "Instrument", "Unit", "Strike", "Timestamp", "Aggregated"})

	for _, pos := range append(direct, aggregated...) {
		table.Append([]string{
			fmt.Sprintf("%d", pos.PortfolioID),
			fmt.Sprintf("%d", pos.InstrumentID),
			fmt.Sprintf("%.4f", pos.Unit),
			fmt.Sprintf("%.4f", pos.Strike),
			pos.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%v", pos.Aggregated),
		})
	}

	table.Render()
}

func main() {
	if err := utils.InitEnvironmentVariables(); err != nil {
		log.Debugf("main: %v", err)
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to yaml config")
	demoCmd.Flags().StringVar(&csvPath, "csv", "", "write positions to csv")
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

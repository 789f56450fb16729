package main

import (
	"context"
	"fmt"

	"fundmate/config"
	"fundmate/models"
	"fundmate/observability"
	"fundmate/portfolio"
	"fundmate/repository"
	"fundmate/services"
	"fundmate/statements"

	"github.com/shopspring/decimal"
)

// App wires statement ingestion, reconciliation and pricing together.
type App struct {
	cfg         *config.Config
	repo        *repository.Repository
	processor   *statements.StatementProcessor
	excelParser *statements.ExcelPositionParser
	tcParser    *statements.TradeConfirmationParser
	engine      *portfolio.Engine
	prices      portfolio.PriceSource
	rates       *services.ExchangeRateService
}

// NewApp creates a new App. repo, processor and rates may be nil when the
// corresponding configuration is absent.
func NewApp(
	cfg *config.Config,
	repo *repository.Repository,
	processor *statements.StatementProcessor,
	excelParser *statements.ExcelPositionParser,
	tcParser *statements.TradeConfirmationParser,
	engine *portfolio.Engine,
	prices portfolio.PriceSource,
	rates *services.ExchangeRateService,
) *App {
	return &App{
		cfg:         cfg,
		repo:        repo,
		processor:   processor,
		excelParser: excelParser,
		tcParser:    tcParser,
		engine:      engine,
		prices:      prices,
		rates:       rates,
	}
}

// shutdown releases held resources.
func (a *App) shutdown() {
	if a.repo != nil {
		a.repo.Close()
	}
}

// ProcessDate builds the portfolio for a statement date: extract scanned
// statements, parse broker workbooks, merge, price and persist.
func (a *App) ProcessDate(ctx context.Context, date string) (*portfolio.AssetSummary, error) {
	var extracted []*models.ProcessedResult
	if a.processor != nil {
		results, err := a.processor.ProcessFolder(ctx, a.cfg.Processing.StatementDir, date)
		if err != nil {
			return nil, fmt.Errorf("statement extraction: %w", err)
		}
		extracted = results
	} else {
		observability.Warn("document extractor not configured, skipping scanned statements")
	}

	excel, err := a.excelParser.ParseDirectory(a.cfg.Processing.ExcelDir, date)
	if err != nil {
		return nil, fmt.Errorf("excel statements: %w", err)
	}

	results := portfolio.Merge(extracted, excel)
	if len(results) == 0 {
		return nil, fmt.Errorf("no broker data found for %s", date)
	}

	portfolio.ReclassifyMoneyMarketFunds(results)

	rates, err := a.exchangeRates(ctx, date)
	if err != nil {
		return nil, err
	}

	optimizer := portfolio.NewOptimizer(a.prices, rates)
	if err := optimizer.PriceAll(ctx, results, date); err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	optimizer.ComputeValues(results)
	portfolio.RecomputeUSDTotals(results, rates)

	summary := portfolio.Summarize(date, results)
	summary.Log()
	recordPortfolioGauges(results)

	if a.repo != nil {
		if _, err := a.repo.SaveRun(ctx, date, "statement", "", results, rates); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	return summary, nil
}

// ProcessTradeConfirmations rolls the saved portfolio at baseDate forward to
// targetDate by replaying trade confirmations, then reprices and persists.
func (a *App) ProcessTradeConfirmations(ctx context.Context, baseDate, targetDate string) (*portfolio.AssetSummary, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("database not configured")
	}

	results, _, err := a.repo.LoadSnapshot(ctx, baseDate)
	if err != nil {
		return nil, fmt.Errorf("load base portfolio: %w", err)
	}
	if results == nil {
		return nil, fmt.Errorf("no saved portfolio for %s", baseDate)
	}

	txns, err := a.tcParser.ParseFolder(ctx, a.cfg.Processing.TradeConfDir, baseDate, targetDate)
	if err != nil {
		return nil, fmt.Errorf("trade confirmations: %w", err)
	}

	if err := a.engine.Apply(results, txns); err != nil {
		return nil, fmt.Errorf("apply transactions: %w", err)
	}

	rates, err := a.exchangeRates(ctx, targetDate)
	if err != nil {
		return nil, err
	}

	optimizer := portfolio.NewOptimizer(a.prices, rates)
	if err := optimizer.PriceAll(ctx, results, targetDate); err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	optimizer.ComputeValues(results)
	portfolio.RecomputeUSDTotals(results, rates)

	summary := portfolio.Summarize(targetDate, results)
	summary.Log()
	recordPortfolioGauges(results)

	if _, err := a.repo.SaveRun(ctx, targetDate, "trade_confirmation", baseDate, results, rates); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	return summary, nil
}

// Snapshot returns the saved portfolio for a date, or nil when none exists.
func (a *App) Snapshot(ctx context.Context, date string) ([]*models.ProcessedResult, models.ExchangeRates, error) {
	if a.repo == nil {
		return nil, nil, fmt.Errorf("database not configured")
	}
	return a.repo.LoadSnapshot(ctx, date)
}

// Dates returns all dates with a saved portfolio, newest first.
func (a *App) Dates(ctx context.Context) ([]string, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("database not configured")
	}
	return a.repo.AvailableDates(ctx)
}

// exchangeRates fetches rates for a date, falling back to USD-only when the
// rate service is not configured.
func (a *App) exchangeRates(ctx context.Context, date string) (models.ExchangeRates, error) {
	if a.rates == nil {
		observability.Warn("exchange rate service not configured, non-USD cash will not convert")
		return models.ExchangeRates{"USD": decimal.NewFromInt(1)}, nil
	}
	rates, err := a.rates.GetRates(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("exchange rates for %s: %w", date, err)
	}
	return rates, nil
}

func recordPortfolioGauges(results []*models.ProcessedResult) {
	m := observability.GetMetrics()
	for _, r := range results {
		value := r.USDTotal.Add(r.TotalPositionValueUSD)
		m.SetPortfolioValue(r.BrokerName, value.InexactFloat64())
		m.SetPortfolioPositions(r.BrokerName, len(r.Positions))
	}
}

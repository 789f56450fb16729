package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fundmate/config"
	"fundmate/observability"
	"fundmate/options"
	"fundmate/portfolio"
	"fundmate/repository"
	"fundmate/services"
	"fundmate/statements"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		observability.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}

	observability.InitLogger(cfg.Production)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Quote gateway and option symbol registry
	hkQuote := services.NewHKQuoteService(cfg.HKQuote.BaseURL)
	resolver := options.NewHKATSResolver(hkQuote)
	registry := options.NewRegistry().WithHKNumeric(resolver)

	// Document extractor (with nil checks for graceful degradation)
	var processor *statements.StatementProcessor
	bedrock, err := services.NewBedrockService(ctx, cfg.Bedrock.Region, cfg.Bedrock.ModelID)
	if err != nil {
		observability.Warn("failed to initialize Bedrock, scanned statements disabled", "error", err)
	} else {
		processor = statements.NewStatementProcessor(bedrock, registry, cfg.Processing.MaxExtractors)
	}

	// Market data
	var alpaca *services.AlpacaService
	if cfg.HasAlpaca() {
		alpaca = services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	} else {
		observability.Warn("Alpaca credentials not set, US stock closes fall back to the quote gateway")
	}
	priceRouter := services.NewPriceRouter(registry, hkQuote, alpaca)

	var rateService *services.ExchangeRateService
	if cfg.HasExchangeRate() {
		rateService = services.NewExchangeRateService(cfg.ExchangeRate.APIKey)
	} else {
		observability.Warn("exchange rate API key not set, non-USD conversion disabled")
	}

	// Database
	var repo *repository.Repository
	if cfg.HasDatabase() {
		repo, err = repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			observability.Warn("failed to initialize database, snapshots disabled", "error", err)
			repo = nil
		} else if err := repo.Migrate(ctx); err != nil {
			observability.Fatal("database migration failed", "error", err)
		}
	} else {
		observability.Warn("DATABASE_URL not set, snapshots disabled")
	}

	excelParser := statements.NewExcelPositionParser(registry)
	tcParser := statements.NewTradeConfirmationParser(resolver)
	engine := portfolio.NewEngine(registry)

	app := NewApp(cfg, repo, processor, excelParser, tcParser, engine, priceRouter, rateService)
	defer app.shutdown()

	// Scheduled processing
	if cfg.Scheduler.Enabled {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.Scheduler.CronExpr, func() {
			date := time.Now().Format("2006-01-02")
			if _, err := app.ProcessDate(context.Background(), date); err != nil {
				observability.Error("scheduled processing failed", "date", date, "error", err)
			}
		})
		if err != nil {
			observability.Fatal("invalid cron expression", "cron", cfg.Scheduler.CronExpr, "error", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		observability.Info("scheduler started", "cron", cfg.Scheduler.CronExpr)
	}

	// HTTP server
	handler := NewAPIHandler(app, cfg)
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: NewRouter(handler, cfg),
	}

	go func() {
		observability.Info("server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	observability.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.Error("server shutdown failed", "error", err)
	}
}

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"fundmate/models"

	"github.com/shopspring/decimal"
)

// getTestDB returns a repository connected to the test database.
// If DATABASE_URL is not set, the test is skipped.
func getTestDB(t *testing.T) *Repository {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewRepository(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return repo
}

// cleanupRuns removes runs saved by tests
func cleanupRuns(t *testing.T, repo *Repository, runDate string) {
	t.Helper()
	ctx := context.Background()
	repo.pool.Exec(ctx, "DELETE FROM processing_runs WHERE run_date = $1", runDate)
}

func testResult() *models.ProcessedResult {
	r := models.NewProcessedResult("FUTU")
	r.AccountID = "ACC-TEST"
	r.Cash["USD"] = decimal.NewFromInt(10000)
	r.Cash["HKD"] = decimal.NewFromInt(7800)
	r.USDTotal = decimal.NewFromInt(11000)
	r.TotalPositionValueUSD = decimal.NewFromInt(5000)
	r.Positions = append(r.Positions, &models.Position{
		StockCode: "AAPL",
		Holding:   decimal.NewFromInt(100),
		Broker:    "FUTU",
		Context:   models.ContextBase,
	})
	return r
}

func TestSaveRunAndLoadSnapshot(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	const runDate = "1999-01-04"
	defer cleanupRuns(t, repo, runDate)

	ctx := context.Background()
	rates := models.ExchangeRates{
		"USD": decimal.NewFromInt(1),
		"HKD": decimal.NewFromFloat(7.8),
	}

	runID, err := repo.SaveRun(ctx, runDate, "statement", "", []*models.ProcessedResult{testResult()}, rates)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	run, err := repo.LatestRun(ctx, runDate)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if run == nil {
		t.Fatal("expected a run, got nil")
	}
	if run.ID != runID {
		t.Errorf("expected run ID %s, got %s", runID, run.ID)
	}
	if run.Mode != "statement" {
		t.Errorf("expected mode 'statement', got %s", run.Mode)
	}
	if run.BaseDate != "" {
		t.Errorf("expected empty base date, got %s", run.BaseDate)
	}

	results, loadedRates, err := repo.LoadSnapshot(ctx, runDate)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 broker result, got %d", len(results))
	}
	got := results[0]
	if got.BrokerName != "FUTU" {
		t.Errorf("expected broker FUTU, got %s", got.BrokerName)
	}
	if got.AccountID != "ACC-TEST" {
		t.Errorf("expected account ACC-TEST, got %s", got.AccountID)
	}
	if !got.Cash["USD"].Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected USD cash 10000, got %s", got.Cash["USD"])
	}
	if len(got.Positions) != 1 || got.Positions[0].StockCode != "AAPL" {
		t.Errorf("unexpected positions: %+v", got.Positions)
	}
	if !loadedRates["HKD"].Equal(decimal.NewFromFloat(7.8)) {
		t.Errorf("expected HKD rate 7.8, got %s", loadedRates["HKD"])
	}
}

func TestSaveRun_TradeConfirmationMode(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	const runDate = "1999-02-26"
	defer cleanupRuns(t, repo, runDate)

	ctx := context.Background()
	rates := models.ExchangeRates{"USD": decimal.NewFromInt(1)}

	if _, err := repo.SaveRun(ctx, runDate, "trade_confirmation", "1999-01-29", []*models.ProcessedResult{testResult()}, rates); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	run, err := repo.LatestRun(ctx, runDate)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if run.Mode != "trade_confirmation" {
		t.Errorf("expected mode 'trade_confirmation', got %s", run.Mode)
	}
	if run.BaseDate != "1999-01-29" {
		t.Errorf("expected base date 1999-01-29, got %s", run.BaseDate)
	}
}

func TestLatestRun_ReRunWins(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	const runDate = "1999-03-31"
	defer cleanupRuns(t, repo, runDate)

	ctx := context.Background()
	rates := models.ExchangeRates{"USD": decimal.NewFromInt(1)}

	if _, err := repo.SaveRun(ctx, runDate, "statement", "", []*models.ProcessedResult{testResult()}, rates); err != nil {
		t.Fatalf("first SaveRun failed: %v", err)
	}

	second := testResult()
	second.USDTotal = decimal.NewFromInt(99999)
	secondID, err := repo.SaveRun(ctx, runDate, "statement", "", []*models.ProcessedResult{second}, rates)
	if err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	run, err := repo.LatestRun(ctx, runDate)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if run.ID != secondID {
		t.Errorf("expected latest run %s, got %s", secondID, run.ID)
	}

	results, _, err := repo.LoadSnapshot(ctx, runDate)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if !results[0].USDTotal.Equal(decimal.NewFromInt(99999)) {
		t.Errorf("expected latest USD total 99999, got %s", results[0].USDTotal)
	}
}

func TestLoadSnapshot_MissingDate(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	results, rates, err := repo.LoadSnapshot(context.Background(), "1970-01-02")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for missing date, got %d", len(results))
	}
	if rates != nil {
		t.Errorf("expected nil rates for missing date, got %v", rates)
	}
}

func TestAvailableDates(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	const runDate = "1999-04-30"
	defer cleanupRuns(t, repo, runDate)

	ctx := context.Background()
	rates := models.ExchangeRates{"USD": decimal.NewFromInt(1)}
	if _, err := repo.SaveRun(ctx, runDate, "statement", "", []*models.ProcessedResult{testResult()}, rates); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	dates, err := repo.AvailableDates(ctx)
	if err != nil {
		t.Fatalf("AvailableDates failed: %v", err)
	}
	found := false
	for _, d := range dates {
		if d == runDate {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in available dates, got %v", runDate, dates)
	}
}

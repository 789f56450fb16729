package portfolio

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/options"
)

func basePosition(t *testing.T, reg *options.Registry, code string, holding int64, broker string) *models.Position {
	t.Helper()
	p, err := models.NewPosition(reg, code, decimal.NewFromInt(holding), broker, models.ContextBase)
	if err != nil {
		t.Fatalf("NewPosition(%q): %v", code, err)
	}
	return p
}

func baseResult(broker string, positions ...*models.Position) *models.ProcessedResult {
	r := models.NewProcessedResult(broker)
	r.Positions = append(r.Positions, positions...)
	return r
}

func txn(broker, code, direction string, qty, price, amount float64) *models.Transaction {
	return &models.Transaction{
		Date:      "2026-06-30",
		Broker:    broker,
		StockCode: code,
		Direction: direction,
		Quantity:  decimal.NewFromFloat(qty),
		AvgPrice:  decimal.NewFromFloat(price),
		AmountUSD: decimal.NewFromFloat(amount),
		Currency:  "USD",
	}
}

func TestApplyBuyExtendsHoldingAndDebitsCash(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB", basePosition(t, reg, "AAPL", 100, "IB"))
	r.Cash["USD"] = decimal.NewFromInt(10000)
	r.USDTotal = decimal.NewFromInt(25000)

	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("IB", "AAPL", "BUY", 50, 160, 8000),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := r.Positions[0].Holding; !got.Equal(decimal.NewFromInt(150)) {
		t.Errorf("holding = %s, want 150", got)
	}
	if got := r.Cash["USD"]; !got.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("cash = %s, want 2000", got)
	}
	if got := r.USDTotal; !got.Equal(decimal.NewFromInt(17000)) {
		t.Errorf("usd total = %s, want 17000", got)
	}
}

func TestApplyBuyOpensNewPosition(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("FUTU")
	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("FUTU", "MSFT", "BUY", 10, 400, 4000),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(r.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(r.Positions))
	}
	p := r.Positions[0]
	if p.Context != models.ContextTC {
		t.Errorf("context = %q, want %q", p.Context, models.ContextTC)
	}
	if !p.BrokerPrice.Equal(decimal.NewFromInt(400)) {
		t.Errorf("broker price = %s, want 400", p.BrokerPrice)
	}
}

func TestApplySellClosesAtExactZero(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB", basePosition(t, reg, "AAPL", 100, "IB"))
	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("IB", "AAPL", "SELL", 100, 150, 15000),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(r.Positions) != 0 {
		t.Errorf("positions after full sell = %d, want 0", len(r.Positions))
	}
	if got := r.Cash["USD"]; !got.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("cash = %s, want 15000", got)
	}
}

func TestApplySellRejectsOversellWithoutMutation(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB", basePosition(t, reg, "AAPL", 100, "IB"))
	r.Cash["USD"] = decimal.NewFromInt(500)

	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("IB", "AAPL", "SELL", 150, 150, 22500),
	})
	if err == nil {
		t.Fatal("expected oversell error")
	}
	if !strings.Contains(err.Error(), "exceeds holding") {
		t.Errorf("error = %v, want oversell diagnostic", err)
	}
	// All-or-nothing: nothing moved.
	if got := r.Positions[0].Holding; !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("holding after failed sell = %s, want 100", got)
	}
	if got := r.Cash["USD"]; !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("cash after failed sell = %s, want 500", got)
	}
}

func TestApplySellNonexistentIsFatal(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB", basePosition(t, reg, "AAPL", 100, "IB"))
	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("IB", "TSLA", "SELL", 10, 200, 2000),
	})
	if err == nil {
		t.Fatal("expected error selling an unheld instrument")
	}
	if !strings.Contains(err.Error(), "AAPL=100") {
		t.Errorf("error should list current holdings, got: %v", err)
	}
}

func TestApplyNegativeSellOpensShort(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB")
	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("IB", "GME", "SELL", -50, 30, 1500),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := r.Positions[0].Holding; !got.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("short holding = %s, want -50", got)
	}
	if got := r.Cash["USD"]; !got.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("cash = %s, want 1500", got)
	}
}

func TestApplyBuyCoverClosesShort(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB", basePosition(t, reg, "GME", -50, "IB"))
	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("IB", "GME", "BUYCOVER", 50, 25, 1250),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(r.Positions) != 0 {
		t.Errorf("positions after cover = %d, want 0", len(r.Positions))
	}
	if got := r.Cash["USD"]; !got.Equal(decimal.NewFromInt(-1250)) {
		t.Errorf("cash = %s, want -1250", got)
	}
}

func TestApplyUnknownDirectionIsFatal(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB", basePosition(t, reg, "AAPL", 100, "IB"))
	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("IB", "AAPL", "TRANSFER", 10, 150, 1500),
	})
	if err == nil || !strings.Contains(err.Error(), "TRANSFER") {
		t.Fatalf("expected unknown-direction error naming the direction, got: %v", err)
	}
}

func TestApplyUnknownBrokerIsFatal(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	r := baseResult("IB")
	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("SCHWAB", "AAPL", "BUY", 10, 150, 1500),
	})
	if err == nil || !strings.Contains(err.Error(), "SCHWAB") {
		t.Fatalf("expected unknown-broker error, got: %v", err)
	}
}

func TestFindPositionMatchesAcrossOptionFormats(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	// Base statement holds the HKATS form; the confirmation uses the
	// spreadsheet numeric form for the same contract.
	base := basePosition(t, reg, "CLI 260629 20.00 CALL", 5, "FUTU")
	r := baseResult("FUTU", base)

	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("FUTU", "(CLI.HK 20260629 CALL 20.0)", "SELL", 2, 1.5, 3000),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := base.Holding; !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("holding = %s, want 3", got)
	}
}

func TestFindPositionFallsBackToRawDescription(t *testing.T) {
	reg := options.NewRegistry()
	engine := NewEngine(reg)

	// Some brokers put an opaque internal code in the code column and
	// the real contract in the description.
	opaque := basePosition(t, reg, "HKO-123456", 4, "HSBC")
	opaque.RawDescription = "CLI 260629 20.00 CALL"
	r := baseResult("HSBC", opaque)

	err := engine.Apply([]*models.ProcessedResult{r}, []*models.Transaction{
		txn("HSBC", "(CLI.HK 20260629 CALL 20.0)", "SELL", 4, 1.5, 6000),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(r.Positions) != 0 {
		t.Errorf("positions after matched sell = %d, want 0", len(r.Positions))
	}
}

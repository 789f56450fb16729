package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/options"
)

func TestReclassifyMoneyMarketFunds(t *testing.T) {
	reg := options.NewRegistry()

	mmf := basePosition(t, reg, "FSIXX", 1000, "IB")
	mmf.RawDescription = "Fidelity Treasury Money Market Fund"
	mmf.BrokerPrice = decimal.NewFromInt(1)
	mmf.PriceCurrency = "USD"

	equity := basePosition(t, reg, "AAPL", 100, "IB")

	r := baseResult("IB", mmf, equity)
	r.Cash["USD"] = decimal.NewFromInt(500)

	ReclassifyMoneyMarketFunds([]*models.ProcessedResult{r})

	if len(r.Positions) != 1 || r.Positions[0].StockCode != "AAPL" {
		t.Fatalf("positions after reclassification = %v", r.Positions)
	}
	if got := r.Cash["USD"]; !got.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("cash = %s, want 1500", got)
	}
}

func TestReclassifyMMFWithoutPriceAssumesPar(t *testing.T) {
	reg := options.NewRegistry()

	mmf := basePosition(t, reg, "HKMMF", 780, "HSBC")
	mmf.RawDescription = "HSBC HKD Money Market Fund Class A"
	mmf.PriceCurrency = "HKD"

	r := baseResult("HSBC", mmf)
	ReclassifyMoneyMarketFunds([]*models.ProcessedResult{r})

	if got := r.Cash["HKD"]; !got.Equal(decimal.NewFromInt(780)) {
		t.Errorf("HKD cash = %s, want 780", got)
	}
}

func TestRecomputeUSDTotals(t *testing.T) {
	r := models.NewProcessedResult("IB")
	r.Cash["USD"] = decimal.NewFromInt(1000)
	r.Cash["HKD"] = decimal.NewFromInt(780)

	rates := models.ExchangeRates{"HKD": decimal.NewFromFloat(7.8)}
	RecomputeUSDTotals([]*models.ProcessedResult{r}, rates)

	// 1000 + 780/7.8 = 1100.
	if !r.USDTotal.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("usd total = %s, want 1100", r.USDTotal)
	}
}

func TestRecomputeUSDTotalsIsCashOnly(t *testing.T) {
	reg := options.NewRegistry()
	pos := basePosition(t, reg, "AAPL", 100, "IB")
	pos.BrokerPrice = decimal.NewFromInt(150)
	pos.PriceCurrency = "USD"

	r := baseResult("IB", pos)
	r.Cash["USD"] = decimal.NewFromInt(10000)

	rates := models.ExchangeRates{"USD": decimal.NewFromInt(1)}
	o := NewOptimizer(nil, rates)
	o.ComputeValues([]*models.ProcessedResult{r})
	RecomputeUSDTotals([]*models.ProcessedResult{r}, rates)

	// The 15000 of position value stays out of the cash total.
	if !r.USDTotal.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("usd total = %s, want cash-only 10000", r.USDTotal)
	}
	if !r.TotalPositionValueUSD.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("position value = %s, want 15000", r.TotalPositionValueUSD)
	}
}

func TestMergeAndTotal(t *testing.T) {
	a := models.NewProcessedResult("IB")
	a.USDTotal = decimal.NewFromInt(100)
	b := models.NewProcessedResult("FUTU")
	b.USDTotal = decimal.NewFromInt(200)

	merged := Merge([]*models.ProcessedResult{a}, []*models.ProcessedResult{b})
	if len(merged) != 2 {
		t.Fatalf("merged = %d results, want 2", len(merged))
	}
	if got := TotalUSD(merged); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("total = %s, want 300", got)
	}
}

func TestSummarize(t *testing.T) {
	a := models.NewProcessedResult("IB")
	a.USDTotal = decimal.NewFromInt(100)
	a.TotalPositionValueUSD = decimal.NewFromInt(60)
	a.Cash["USD"] = decimal.NewFromInt(40)
	a.Valuation = &models.ValuationSummary{SuccessfulPrices: 3, FailedPrices: 1}

	b := models.NewProcessedResult("FUTU")
	b.USDTotal = decimal.NewFromInt(200)
	b.Cash["HKD"] = decimal.NewFromInt(780)

	s := Summarize("2026-06-30", []*models.ProcessedResult{b, a})

	if !s.CashUSD.Equal(decimal.NewFromInt(300)) {
		t.Errorf("cash = %s, want 300", s.CashUSD)
	}
	if !s.TotalUSD.Equal(decimal.NewFromInt(360)) {
		t.Errorf("total = %s, want 360 (cash plus positions)", s.TotalUSD)
	}
	if s.PricedOK != 3 || s.PricedFailed != 1 {
		t.Errorf("priced = %d/%d, want 3/1", s.PricedOK, s.PricedFailed)
	}
	// Broker order is deterministic regardless of input order.
	if s.Brokers[0].Broker != "FUTU" || s.Brokers[1].Broker != "IB" {
		t.Errorf("broker order = %v", s.Brokers)
	}
	if !s.CashByCCY["HKD"].Equal(decimal.NewFromInt(780)) {
		t.Errorf("HKD cash = %s, want 780", s.CashByCCY["HKD"])
	}
}

package portfolio

import (
	"strings"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/observability"
)

const moneyMarketMarker = "money market fund"

// Merge combines statement-derived and spreadsheet-derived results into a
// single slice. Results stay per-broker; nothing is netted across brokers.
func Merge(pdf, excel []*models.ProcessedResult) []*models.ProcessedResult {
	merged := make([]*models.ProcessedResult, 0, len(pdf)+len(excel))
	merged = append(merged, pdf...)
	merged = append(merged, excel...)
	return merged
}

// ReclassifyMoneyMarketFunds converts money-market-fund "positions" into
// cash. Brokers report MMF sweeps as holdings priced at or near 1.00, but
// for portfolio purposes they are cash in the fund's currency. The
// reclassified amount is holding times price; the position is removed.
func ReclassifyMoneyMarketFunds(results []*models.ProcessedResult) {
	for _, r := range results {
		kept := r.Positions[:0]
		for _, p := range r.Positions {
			if !isMoneyMarketFund(p) {
				kept = append(kept, p)
				continue
			}
			price, currency, ok := p.EffectivePrice()
			if !ok {
				// No price at all: treat each unit as one currency unit,
				// the only sensible valuation for a sweep fund.
				price = decimal.NewFromInt(1)
				currency = p.PriceCurrency
				if currency == "" {
					currency = "USD"
				}
			}
			amount := p.Holding.Mul(price)
			r.AddCash(currency, amount)
			observability.Info("reclassified money market fund as cash",
				"broker", r.BrokerName, "stock_code", p.StockCode,
				"amount", amount.String(), "currency", currency)
		}
		r.Positions = kept
	}
}

func isMoneyMarketFund(p *models.Position) bool {
	return strings.Contains(strings.ToLower(p.RawDescription), moneyMarketMarker) ||
		strings.Contains(strings.ToLower(p.StockCode), moneyMarketMarker)
}

// RecomputeUSDTotals rebuilds each result's USD total from its cash
// buckets, so post-reclassification totals reflect moved cash rather than
// the statement-time figure. The total is cash only: position market
// value is tracked separately in TotalPositionValueUSD and never folded
// into the cash figure.
func RecomputeUSDTotals(results []*models.ProcessedResult, rates models.ExchangeRates) {
	for _, r := range results {
		total := decimal.Zero
		for currency, amount := range r.Cash {
			usd, ok := rates.ToUSD(amount, currency)
			if !ok {
				observability.Warn("no exchange rate for cash bucket",
					"broker", r.BrokerName, "currency", currency)
				continue
			}
			total = total.Add(usd)
		}
		r.USDTotal = total
	}
}

// TotalUSD sums the cash USD totals across all broker results.
func TotalUSD(results []*models.ProcessedResult) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.USDTotal)
	}
	return total
}

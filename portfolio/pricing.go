package portfolio

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/observability"
)

// Quote is one price observation for an instrument on a valuation date.
type Quote struct {
	Price    decimal.Decimal
	Currency string
	Source   string
}

// PriceSource answers price queries for a stock code on a date. The
// description hint carries the raw statement text for sources that need
// it to disambiguate a bare code. A zero price with nil error means the
// source had no quote.
type PriceSource interface {
	GetPrice(ctx context.Context, stockCode, date, descriptionHint string) (Quote, error)
}

// Optimizer prices every position across all broker results with exactly
// one upstream query per distinct stock code. Brokers routinely hold the
// same instrument, so deduplicating before querying is what keeps the
// pricing pass within provider rate limits.
type Optimizer struct {
	source PriceSource
	rates  models.ExchangeRates
}

func NewOptimizer(source PriceSource, rates models.ExchangeRates) *Optimizer {
	return &Optimizer{source: source, rates: rates}
}

// PriceAll resolves one quote per distinct stock code and fans it out to
// every holder. A failed or empty quote leaves the affected positions on
// their broker-reported prices; only context cancellation aborts the run.
func (o *Optimizer) PriceAll(ctx context.Context, results []*models.ProcessedResult, date string) error {
	holders := make(map[string][]*models.Position)
	hints := make(map[string]string)
	for _, r := range results {
		for _, p := range r.Positions {
			holders[p.StockCode] = append(holders[p.StockCode], p)
			if hints[p.StockCode] == "" {
				hints[p.StockCode] = p.RawDescription
			}
		}
	}

	codes := make([]string, 0, len(holders))
	for code := range holders {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return err
		}
		quote, err := o.source.GetPrice(ctx, code, date, hints[code])
		if err != nil {
			observability.Warn("price lookup failed",
				"stock_code", code, "date", date, "error", err)
			continue
		}
		if !quote.Price.IsPositive() || quote.Currency == "" {
			observability.Debug("no quote for instrument", "stock_code", code, "date", date)
			continue
		}
		for _, p := range holders[code] {
			p.FinalPrice = quote.Price
			p.FinalPriceSource = quote.Source
			p.OptimizedPriceCurrency = quote.Currency
		}
	}
	return nil
}

// ComputeValues turns prices into position values and builds each result's
// valuation summary. Effective price prefers the batch quote, falling back
// to the broker statement price; value is price times holding times the
// contract multiplier, converted to USD by dividing by the currency's
// units-per-USD rate.
func (o *Optimizer) ComputeValues(results []*models.ProcessedResult) {
	for _, r := range results {
		summary := &models.ValuationSummary{}
		for _, p := range r.Positions {
			price, currency, ok := p.EffectivePrice()
			if !ok {
				summary.FailedPrices++
				observability.Warn("position has no usable price",
					"broker", r.BrokerName, "stock_code", p.StockCode)
				continue
			}
			value := price.Mul(p.Holding).Mul(decimal.NewFromInt(p.EffectiveMultiplier()))
			usd, converted := o.rates.ToUSD(value, currency)
			if !converted {
				summary.FailedPrices++
				observability.Warn("no exchange rate for position value",
					"broker", r.BrokerName, "stock_code", p.StockCode, "currency", currency)
				continue
			}
			summary.SuccessfulPrices++
			summary.TotalValueUSD = summary.TotalValueUSD.Add(usd)
		}
		r.Valuation = summary
		r.TotalPositionValueUSD = summary.TotalValueUSD
	}
}

package models

import (
	"github.com/shopspring/decimal"
)

// ValuationSummary accumulates how the batch pricing pass went for one
// broker result.
type ValuationSummary struct {
	SuccessfulPrices int             `json:"successful_prices"`
	FailedPrices     int             `json:"failed_prices"`
	TotalValueUSD    decimal.Decimal `json:"total_value_usd"`
}

// ProcessedResult is the reconciled state of one broker account: cash
// balances by currency, positions, and the running USD total that the
// transaction engine and valuation pass maintain.
type ProcessedResult struct {
	BrokerName        string                     `json:"broker_name"`
	AccountID         string                     `json:"account_id,omitempty"`
	StatementDate     string                     `json:"statement_date,omitempty"`
	Cash              map[string]decimal.Decimal `json:"cash"`
	CashTotal         decimal.Decimal            `json:"cash_total"`
	CashTotalCurrency string                     `json:"cash_total_currency,omitempty"`
	Positions         []*Position                `json:"positions"`
	USDTotal          decimal.Decimal            `json:"usd_total"`
	Valuation         *ValuationSummary          `json:"valuation,omitempty"`

	// TotalPositionValueUSD is filled by the valuation pass; zero until
	// then.
	TotalPositionValueUSD decimal.Decimal `json:"total_position_value_usd"`
}

// NewProcessedResult builds an empty result for a broker with an
// initialized cash map.
func NewProcessedResult(broker string) *ProcessedResult {
	return &ProcessedResult{
		BrokerName: broker,
		Cash:       map[string]decimal.Decimal{},
		Positions:  []*Position{},
	}
}

// AddCash adjusts one currency bucket, creating it on first use.
func (r *ProcessedResult) AddCash(currency string, delta decimal.Decimal) {
	r.Cash[currency] = r.Cash[currency].Add(delta)
}

// RemovePosition drops the position at index i, preserving order.
func (r *ProcessedResult) RemovePosition(i int) {
	r.Positions = append(r.Positions[:i], r.Positions[i+1:]...)
}

// ExchangeRates maps a currency code to its units-per-USD rate for one
// valuation date. Converting an amount to USD divides by the rate.
type ExchangeRates map[string]decimal.Decimal

// ToUSD converts an amount in the given currency. USD and unknown
// currencies pass through unchanged; unknown rates are a data gap the
// caller logs, not a reason to zero a position.
func (rates ExchangeRates) ToUSD(amount decimal.Decimal, currency string) (decimal.Decimal, bool) {
	if currency == "" || currency == "USD" {
		return amount, true
	}
	rate, ok := rates[currency]
	if !ok || rate.IsZero() {
		return amount, false
	}
	return amount.Div(rate), true
}

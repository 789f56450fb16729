package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/observability"
)

// AssetSummary is the fund-level rollup served by the API and logged at
// the end of a processing run.
type AssetSummary struct {
	Date          string                     `json:"date"`
	Brokers       []BrokerSummary            `json:"brokers"`
	CashByCCY     map[string]decimal.Decimal `json:"cash_by_currency"`
	PositionsUSD  decimal.Decimal            `json:"positions_usd"`
	CashUSD       decimal.Decimal            `json:"cash_usd"`
	TotalUSD      decimal.Decimal            `json:"total_usd"`
	PricedOK      int                        `json:"priced_ok"`
	PricedFailed  int                        `json:"priced_failed"`
	PositionCount int                        `json:"position_count"`
}

// BrokerSummary is one broker's slice of the rollup. USDTotal is the
// broker's cash normalized to USD; positions are valued separately.
type BrokerSummary struct {
	Broker       string          `json:"broker"`
	Positions    int             `json:"positions"`
	PositionsUSD decimal.Decimal `json:"positions_usd"`
	USDTotal     decimal.Decimal `json:"usd_total"`
}

// Summarize rolls per-broker results into one fund view.
func Summarize(date string, results []*models.ProcessedResult) *AssetSummary {
	s := &AssetSummary{
		Date:      date,
		CashByCCY: map[string]decimal.Decimal{},
	}
	for _, r := range results {
		bs := BrokerSummary{
			Broker:       r.BrokerName,
			Positions:    len(r.Positions),
			PositionsUSD: r.TotalPositionValueUSD,
			USDTotal:     r.USDTotal,
		}
		s.Brokers = append(s.Brokers, bs)
		s.PositionCount += len(r.Positions)
		s.PositionsUSD = s.PositionsUSD.Add(r.TotalPositionValueUSD)
		s.CashUSD = s.CashUSD.Add(r.USDTotal)
		s.TotalUSD = s.TotalUSD.Add(r.USDTotal).Add(r.TotalPositionValueUSD)
		for currency, amount := range r.Cash {
			s.CashByCCY[currency] = s.CashByCCY[currency].Add(amount)
		}
		if r.Valuation != nil {
			s.PricedOK += r.Valuation.SuccessfulPrices
			s.PricedFailed += r.Valuation.FailedPrices
		}
	}
	sort.Slice(s.Brokers, func(i, j int) bool { return s.Brokers[i].Broker < s.Brokers[j].Broker })
	return s
}

// Log writes the summary through the structured logger, one line for the
// fund and one per broker.
func (s *AssetSummary) Log() {
	observability.Info("portfolio summary",
		"date", s.Date,
		"brokers", len(s.Brokers),
		"positions", s.PositionCount,
		"positions_usd", s.PositionsUSD.StringFixed(2),
		"cash_usd", s.CashUSD.StringFixed(2),
		"total_usd", s.TotalUSD.StringFixed(2),
		"priced_ok", s.PricedOK,
		"priced_failed", s.PricedFailed)
	for _, b := range s.Brokers {
		observability.Info("broker summary",
			"date", s.Date,
			"broker", b.Broker,
			"positions", b.Positions,
			"positions_usd", b.PositionsUSD.StringFixed(2),
			"usd_total", b.USDTotal.StringFixed(2))
	}
}

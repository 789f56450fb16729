package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Trade directions as they appear after normalization. Broker files use a
// wider vocabulary ("BUY COVER", "SELLSHORT") that the statement parsers
// map onto these four before the engine sees them.
const (
	DirectionBuy       = "BUY"
	DirectionSell      = "SELL"
	DirectionBuyCover  = "BUYCOVER"
	DirectionSellShort = "SELLSHORT"
)

// Transaction is one trade-confirmation line: a fill against a single
// instrument at a single broker. Quantities and amounts are absolute;
// direction carries the sign semantics.
type Transaction struct {
	Date      string          `json:"date"` // YYYY-MM-DD
	Broker    string          `json:"broker"`
	StockCode string          `json:"stock_code"`
	Direction string          `json:"direction"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	Currency  string          `json:"currency"`
	Market    string          `json:"market,omitempty"`
}

// NormalizeDirection collapses the broker vocabulary onto BUY/SELL for
// cash-flow purposes. BUYCOVER closes a short with the cash flow of a buy;
// SELLSHORT opens a short with the cash flow of a sell.
func (t *Transaction) NormalizeDirection() (string, error) {
	switch strings.ToUpper(strings.TrimSpace(t.Direction)) {
	case DirectionBuy, DirectionBuyCover:
		return DirectionBuy, nil
	case DirectionSell, DirectionSellShort:
		return DirectionSell, nil
	default:
		return "", fmt.Errorf("unknown transaction direction %q for %s at %s on %s",
			t.Direction, t.StockCode, t.Broker, t.Date)
	}
}

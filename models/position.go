package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fundmate/options"
)

// PositionContext records where a position came from.
type PositionContext string

const (
	// ContextBase marks positions read from a broker statement snapshot.
	ContextBase PositionContext = "base"
	// ContextTC marks positions injected by a trade confirmation.
	ContextTC PositionContext = "tc"
)

// strikeTolerance absorbs the precision differences between brokers that
// report the same strike with different rounding.
const strikeTolerance = 0.01

// Position is one holding of one instrument at one broker account. Option
// codes are decomposed once, at construction, via the parser registry; the
// parsed fields then drive cross-format contract matching.
type Position struct {
	StockCode string          `json:"stock_code"`
	Holding   decimal.Decimal `json:"holding"` // signed; negative is a short
	Broker    string          `json:"broker"`
	Context   PositionContext `json:"context"`

	BrokerPrice            decimal.Decimal `json:"broker_price"`
	PriceCurrency          string          `json:"price_currency"`
	FinalPrice             decimal.Decimal `json:"final_price"`
	FinalPriceSource       string          `json:"final_price_source"`
	OptimizedPriceCurrency string          `json:"optimized_price_currency"`

	RawDescription string `json:"raw_description"`

	// Multiplier is the broker-supplied contract size; zero means the
	// broker did not report one and the parsed or equity default applies.
	Multiplier int64 `json:"multiplier"`

	// Fields below are derived from StockCode at construction.
	OptionFormat  options.Format     `json:"option_format,omitempty"` // empty for equities
	Underlying    string             `json:"underlying,omitempty"`
	ExpiryDate    time.Time          `json:"expiry_date,omitempty"`
	Strike        float64            `json:"strike,omitempty"`
	OptionType    options.OptionType `json:"option_type,omitempty"`
	HKNumericCode string             `json:"hk_numeric_code,omitempty"`
	HKATSResolved bool               `json:"hkats_resolved,omitempty"`
}

// NewPosition parses the stock code through the registry and builds the
// position from the result. An unparseable code leaves the position as an
// opaque equity-like entity; only a resolver transport failure errors.
func NewPosition(reg *options.Registry, stockCode string, holding decimal.Decimal, broker string, pctx PositionContext) (*Position, error) {
	parsed, err := reg.Parse(stockCode)
	if err != nil {
		return nil, err
	}
	return NewPositionFromParsed(stockCode, holding, broker, pctx, parsed), nil
}

// NewPositionFromParsed builds a position from an already-parsed code.
// Construction has no hidden control flow: the parse step is the caller's.
func NewPositionFromParsed(stockCode string, holding decimal.Decimal, broker string, pctx PositionContext, parsed options.ParsedOption) *Position {
	p := &Position{
		StockCode:              stockCode,
		Holding:                holding,
		Broker:                 broker,
		Context:                pctx,
		OptimizedPriceCurrency: "USD",
	}
	if parsed.IsOption() {
		p.OptionFormat = parsed.Format
		p.Underlying = parsed.Underlying
		p.ExpiryDate = parsed.ExpiryDate
		p.Strike = parsed.Strike
		p.OptionType = parsed.OptionType
		p.HKNumericCode = parsed.HKNumericCode
		p.HKATSResolved = parsed.HKATSResolved
		p.Multiplier = parsed.Multiplier
	}
	return p
}

// IsOption reports whether the stock code parsed under an option grammar.
func (p *Position) IsOption() bool {
	return p.OptionFormat != "" && p.OptionFormat != options.FormatUnparseable
}

// EffectiveMultiplier resolves the contract size by priority:
// broker-supplied, then parsed option metadata, then the equity default 1.
func (p *Position) EffectiveMultiplier() int64 {
	if p.Multiplier > 0 {
		return p.Multiplier
	}
	return 1
}

// EffectivePrice is the market-data price when the batch query succeeded,
// falling back to the broker-reported price: a position is never left
// unpriced while a statement price exists. The second return is the
// currency the price is quoted in.
func (p *Position) EffectivePrice() (decimal.Decimal, string, bool) {
	if p.FinalPrice.IsPositive() {
		return p.FinalPrice, p.OptimizedPriceCurrency, true
	}
	if !p.BrokerPrice.IsZero() {
		return p.BrokerPrice, p.PriceCurrency, true
	}
	return decimal.Zero, "", false
}

// MatchesOption decides whether two positions are the same option contract
// despite differing source-string formats. This predicate is the single
// source of truth for contract identity:
//
//  1. byte-identical stock codes always match;
//  2. equities and unparseable codes match on exact code only;
//  3. OTC contracts are broker-specific and never match structurally;
//  4. standard options match on underlying, expiry, option type, and
//     strike within 0.01.
func (p *Position) MatchesOption(other *Position) bool {
	if p.StockCode == other.StockCode {
		return true
	}
	if p.OptionFormat == "" || other.OptionFormat == "" {
		return false
	}
	if p.OptionFormat == options.FormatUnparseable || other.OptionFormat == options.FormatUnparseable {
		return false
	}
	if p.OptionFormat == options.FormatOTC || other.OptionFormat == options.FormatOTC {
		return false
	}
	return p.Underlying == other.Underlying &&
		sameDay(p.ExpiryDate, other.ExpiryDate) &&
		math.Abs(p.Strike-other.Strike) < strikeTolerance &&
		p.OptionType == other.OptionType
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Package portfolio reconciles broker snapshots with trade confirmations
// and values the combined book: applying fills to base positions, pricing
// every instrument once across brokers, and aggregating per-broker results
// into a fund-level view.
package portfolio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/observability"
	"fundmate/options"
)

// Engine applies trade confirmations to per-broker statement snapshots.
// The parser registry decides contract identity, so a confirmation coded
// "2628 HK 06/29/26 C20" lands on a base position coded
// "CLI 260629 20.00 CALL" at the same broker.
type Engine struct {
	registry *options.Registry
}

func NewEngine(registry *options.Registry) *Engine {
	return &Engine{registry: registry}
}

// Apply mutates results in place with every transaction, grouped by
// broker. Transactions against brokers with no statement result are an
// error: a fill cannot exist without the account it filled in.
//
// Application is all-or-nothing per transaction: validation happens before
// any mutation, so a failed transaction leaves holdings and cash exactly
// as they were.
func (e *Engine) Apply(results []*models.ProcessedResult, txns []*models.Transaction) error {
	byBroker := make(map[string]*models.ProcessedResult, len(results))
	for _, r := range results {
		byBroker[strings.ToUpper(r.BrokerName)] = r
	}

	for _, txn := range txns {
		broker := strings.ToUpper(txn.Broker)
		result, ok := byBroker[broker]
		if !ok {
			known := make([]string, 0, len(byBroker))
			for b := range byBroker {
				known = append(known, b)
			}
			sort.Strings(known)
			return fmt.Errorf("transaction %s %s at %s: no statement for broker (have %s)",
				txn.Direction, txn.StockCode, txn.Broker, strings.Join(known, ", "))
		}
		if err := e.applyOne(result, txn); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyOne(result *models.ProcessedResult, txn *models.Transaction) error {
	direction, err := txn.NormalizeDirection()
	if err != nil {
		return err
	}

	pos, err := e.findPosition(result, txn.StockCode)
	if err != nil {
		return err
	}

	switch direction {
	case models.DirectionBuy:
		return e.applyBuy(result, txn, pos)
	case models.DirectionSell:
		return e.applySell(result, txn, pos)
	}
	return nil
}

func (e *Engine) applyBuy(result *models.ProcessedResult, txn *models.Transaction, pos *models.Position) error {
	if pos == nil {
		created, err := e.newPosition(result, txn, txn.Quantity)
		if err != nil {
			return err
		}
		result.Positions = append(result.Positions, created)
		observability.Debug("opened position from trade confirmation",
			"broker", result.BrokerName, "stock_code", txn.StockCode, "quantity", txn.Quantity.String())
	} else {
		pos.Holding = pos.Holding.Add(txn.Quantity)
		if pos.Holding.IsZero() {
			e.removePosition(result, pos)
		}
	}
	result.AddCash("USD", txn.AmountUSD.Neg())
	result.USDTotal = result.USDTotal.Sub(txn.AmountUSD)
	return nil
}

func (e *Engine) applySell(result *models.ProcessedResult, txn *models.Transaction, pos *models.Position) error {
	// A negative sell quantity opens or extends a short.
	if txn.Quantity.IsNegative() {
		if pos == nil {
			created, err := e.newPosition(result, txn, txn.Quantity)
			if err != nil {
				return err
			}
			result.Positions = append(result.Positions, created)
			observability.Debug("opened short from trade confirmation",
				"broker", result.BrokerName, "stock_code", txn.StockCode, "quantity", txn.Quantity.String())
		} else {
			pos.Holding = pos.Holding.Add(txn.Quantity)
			if pos.Holding.IsZero() {
				e.removePosition(result, pos)
			}
		}
		result.AddCash("USD", txn.AmountUSD)
		result.USDTotal = result.USDTotal.Add(txn.AmountUSD)
		return nil
	}

	if pos == nil {
		return fmt.Errorf("sell %s of %s at %s: no matching position (holdings: %s)",
			txn.Quantity, txn.StockCode, result.BrokerName, holdingsList(result))
	}
	if pos.Holding.LessThan(txn.Quantity) {
		return fmt.Errorf("sell %s of %s at %s: exceeds holding %s",
			txn.Quantity, txn.StockCode, result.BrokerName, pos.Holding)
	}

	pos.Holding = pos.Holding.Sub(txn.Quantity)
	if pos.Holding.IsZero() {
		e.removePosition(result, pos)
	}
	result.AddCash("USD", txn.AmountUSD)
	result.USDTotal = result.USDTotal.Add(txn.AmountUSD)
	return nil
}

// findPosition locates the position a transaction targets: exact stock
// code first, then parsed-contract equivalence against each position's
// code and, as a last resort, its raw statement description. Descriptions
// are tried because some brokers report the tradable code only in the
// free-text column.
func (e *Engine) findPosition(result *models.ProcessedResult, stockCode string) (*models.Position, error) {
	for _, p := range result.Positions {
		if p.StockCode == stockCode {
			return p, nil
		}
	}

	parsed, err := e.registry.Parse(stockCode)
	if err != nil {
		return nil, err
	}
	if !parsed.IsOption() {
		return nil, nil
	}
	probe := models.NewPositionFromParsed(stockCode, decimal.Zero, result.BrokerName, models.ContextTC, parsed)

	for _, p := range result.Positions {
		if p.IsOption() && probe.MatchesOption(p) {
			return p, nil
		}
	}
	for _, p := range result.Positions {
		if p.RawDescription == "" || p.IsOption() {
			continue
		}
		descParsed, err := e.registry.Parse(p.RawDescription)
		if err != nil {
			return nil, err
		}
		if !descParsed.IsOption() {
			continue
		}
		cand := models.NewPositionFromParsed(p.RawDescription, decimal.Zero, result.BrokerName, models.ContextBase, descParsed)
		if probe.MatchesOption(cand) {
			return p, nil
		}
	}
	return nil, nil
}

func (e *Engine) newPosition(result *models.ProcessedResult, txn *models.Transaction, holding decimal.Decimal) (*models.Position, error) {
	pos, err := models.NewPosition(e.registry, txn.StockCode, holding, result.BrokerName, models.ContextTC)
	if err != nil {
		return nil, err
	}
	pos.BrokerPrice = txn.AvgPrice
	pos.PriceCurrency = txn.Currency
	if pos.PriceCurrency == "" {
		pos.PriceCurrency = "USD"
	}
	return pos, nil
}

func (e *Engine) removePosition(result *models.ProcessedResult, pos *models.Position) {
	for i, p := range result.Positions {
		if p == pos {
			result.RemovePosition(i)
			return
		}
	}
}

func holdingsList(result *models.ProcessedResult) string {
	if len(result.Positions) == 0 {
		return "none"
	}
	codes := make([]string, len(result.Positions))
	for i, p := range result.Positions {
		codes[i] = fmt.Sprintf("%s=%s", p.StockCode, p.Holding)
	}
	return strings.Join(codes, ", ")
}

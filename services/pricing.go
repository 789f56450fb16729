package services

import (
	"context"
	"fmt"
	"strings"

	"fundmate/observability"
	"fundmate/options"
	"fundmate/portfolio"
)

// PriceRouter routes price queries to the right market data service:
// HK instruments and all listed options go to the quote gateway, US
// equities go to Alpaca with the gateway as fallback. OTC contracts have
// no public market, so they are left on their broker-reported price.
type PriceRouter struct {
	registry *options.Registry
	hkQuote  *HKQuoteService
	alpaca   *AlpacaService // may be nil when not configured
}

func NewPriceRouter(registry *options.Registry, hkQuote *HKQuoteService, alpaca *AlpacaService) *PriceRouter {
	return &PriceRouter{registry: registry, hkQuote: hkQuote, alpaca: alpaca}
}

// GetPrice implements portfolio.PriceSource.
func (r *PriceRouter) GetPrice(ctx context.Context, stockCode, date, descriptionHint string) (portfolio.Quote, error) {
	parsed, err := r.registry.Parse(stockCode)
	if err != nil {
		return portfolio.Quote{}, err
	}
	// A code no grammar claims may still be an option under its raw
	// statement description. Re-parse the hint before treating the code
	// as an equity, so a garbled option never hits the stock route.
	if !parsed.IsOption() && descriptionHint != "" && descriptionHint != stockCode {
		hinted, herr := r.registry.Parse(descriptionHint)
		if herr != nil {
			return portfolio.Quote{}, herr
		}
		if hinted.IsOption() {
			parsed = hinted
		}
	}

	var quote portfolio.Quote
	if parsed.IsOption() {
		quote, err = r.optionPrice(ctx, parsed, descriptionHint, date)
	} else {
		quote, err = r.stockPrice(ctx, stockCode, date)
	}

	if quote.Source != "" {
		observability.GetMetrics().RecordPriceLookup(quote.Source)
	}
	if err != nil {
		observability.GetMetrics().RecordPriceFailure("hkquote")
	}
	return quote, err
}

func (r *PriceRouter) optionPrice(ctx context.Context, parsed options.ParsedOption, hint, date string) (portfolio.Quote, error) {
	switch parsed.Format {
	case options.FormatOTC:
		// OTC contracts are bespoke; the broker's own mark is the only
		// price there is.
		observability.Debug("no market quote for OTC contract", "code", parsed.OriginalCode)
		return portfolio.Quote{}, nil

	case options.FormatHKHKATS:
		if !parsed.HKATSResolved {
			// The underlying never resolved to an HKATS letter code, so
			// no gateway contract code can be built.
			observability.Warn("skipping price for unresolved HK option",
				"code", parsed.OriginalCode, "numeric", parsed.HKNumericCode)
			return portfolio.Quote{}, nil
		}
		code := hkOptionGatewayCode(parsed)
		price, err := r.hkQuote.GetOptionClose(ctx, code, date)
		if err != nil {
			return portfolio.Quote{}, err
		}
		return portfolio.Quote{Price: price, Currency: "HKD", Source: "hkquote"}, nil

	case options.FormatUSOCC:
		price, err := r.hkQuote.GetOptionClose(ctx, "US."+parsed.OCCCode(), date)
		if err != nil {
			return portfolio.Quote{}, err
		}
		return portfolio.Quote{Price: price, Currency: "USD", Source: "hkquote"}, nil
	}

	observability.Debug("no pricing route for option", "code", parsed.OriginalCode, "hint", hint)
	return portfolio.Quote{}, nil
}

func (r *PriceRouter) stockPrice(ctx context.Context, stockCode, date string) (portfolio.Quote, error) {
	symbol := GatewayStockSymbol(stockCode)

	if strings.HasPrefix(symbol, "HK.") {
		price, err := r.hkQuote.GetStockClose(ctx, symbol, date)
		if err != nil {
			return portfolio.Quote{}, err
		}
		return portfolio.Quote{Price: price, Currency: "HKD", Source: "hkquote"}, nil
	}

	ticker := strings.TrimPrefix(symbol, "US.")
	if r.alpaca != nil {
		price, err := r.alpaca.GetCloseOn(ctx, ticker, date)
		if err == nil && price.IsPositive() {
			return portfolio.Quote{Price: price, Currency: "USD", Source: "alpaca"}, nil
		}
		if err != nil {
			observability.Warn("alpaca close failed, falling back to quote gateway",
				"symbol", ticker, "error", err)
		}
	}

	price, err := r.hkQuote.GetStockClose(ctx, symbol, date)
	if err != nil {
		return portfolio.Quote{}, err
	}
	return portfolio.Quote{Price: price, Currency: "USD", Source: "hkquote"}, nil
}

// hkOptionGatewayCode builds the gateway contract code
// "HK.{HKATS}{YYMMDD}{C/P}{strike*1000 in 5 digits}", e.g.
// "HK.CLI260629C20000".
func hkOptionGatewayCode(parsed options.ParsedOption) string {
	cp := "C"
	if parsed.OptionType == options.Put {
		cp = "P"
	}
	return fmt.Sprintf("HK.%s%s%s%05d",
		parsed.Underlying, parsed.ExpiryDate.Format("060102"), cp,
		int(parsed.Strike*1000+0.5))
}

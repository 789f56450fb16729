package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fundmate/options"
)

// HKQuoteService talks to the quote gateway that fronts the Futu OpenD
// daemon. The gateway exposes option chains, daily stock closes, and
// option marks over plain HTTP JSON, for both HK.* and US.* symbols.
type HKQuoteService struct {
	httpClient *http.Client
	baseURL    string
}

// NewHKQuoteService creates a new HKQuoteService instance.
func NewHKQuoteService(baseURL string) *HKQuoteService {
	return &HKQuoteService{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type chainResponse struct {
	Code      string `json:"code"`
	Contracts []struct {
		Code string `json:"code"`
	} `json:"contracts"`
}

type priceResponse struct {
	Code  string          `json:"code"`
	Date  string          `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// GetOptionChain returns the first contract symbol of the option chain for
// an underlying (e.g. "HK.CLI260629C20000" for "HK.02628"). An empty chain
// maps to options.ErrNoOptionChain so the resolver can degrade instead of
// failing the run.
func (s *HKQuoteService) GetOptionChain(ctx context.Context, underlying string) (string, error) {
	var chain chainResponse

	err := WithRetry(ctx, DefaultRetryConfig, func() error {
		return s.getJSON(ctx, "/v1/option-chain", url.Values{"code": {underlying}}, &chain)
	})
	if err != nil {
		return "", err
	}

	if len(chain.Contracts) == 0 {
		return "", options.ErrNoOptionChain
	}
	return chain.Contracts[0].Code, nil
}

// GetStockClose returns the daily close for a gateway symbol ("HK.00700",
// "US.AAPL") on or before the given date. A zero price means the gateway
// had no bar for the symbol.
func (s *HKQuoteService) GetStockClose(ctx context.Context, symbol, date string) (decimal.Decimal, error) {
	price, err := WithCircuitBreaker(ctx, BreakerHKQuote, func() (decimal.Decimal, error) {
		var resp priceResponse
		err := WithRetry(ctx, DefaultRetryConfig, func() error {
			return s.getJSON(ctx, "/v1/stock-price", url.Values{
				"code": {symbol},
				"date": {date},
			}, &resp)
		})
		if err != nil {
			return decimal.Zero, err
		}
		return resp.Close, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("stock close for %s on %s: %w", symbol, date, err)
	}
	return price, nil
}

// GetOptionClose returns the daily settlement mark for a gateway option
// code ("HK.CLI260629C20000", "US.SBET260116P41000") on the given date.
func (s *HKQuoteService) GetOptionClose(ctx context.Context, optionCode, date string) (decimal.Decimal, error) {
	price, err := WithCircuitBreaker(ctx, BreakerHKQuote, func() (decimal.Decimal, error) {
		var resp priceResponse
		err := WithRetry(ctx, DefaultRetryConfig, func() error {
			return s.getJSON(ctx, "/v1/option-price", url.Values{
				"code": {optionCode},
				"date": {date},
			}, &resp)
		})
		if err != nil {
			return decimal.Zero, err
		}
		return resp.Close, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("option close for %s on %s: %w", optionCode, date, err)
	}
	return price, nil
}

func (s *HKQuoteService) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building quote gateway request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("quote gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quote gateway returned %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode quote gateway response: %w", err)
	}
	return nil
}

// GatewayStockSymbol formats a stock code for the quote gateway: numeric
// HK codes are zero-padded to five digits under HK., everything else is
// treated as a US ticker.
func GatewayStockSymbol(code string) string {
	code = strings.TrimSpace(strings.TrimSuffix(strings.ToUpper(code), " HK"))
	if isDigits(code) {
		for len(code) < 5 {
			code = "0" + code
		}
		return "HK." + code
	}
	return "US." + code
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

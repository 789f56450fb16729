package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/observability"
)

// ExchangeRateService fetches historical FX rates from exchangerate.host.
// Rates are quoted as currency units per USD; converting to USD divides
// by the rate. A day's rates never change after the fact, so responses
// are cached per date for the process lifetime.
type ExchangeRateService struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string

	mu    sync.Mutex
	cache map[string]models.ExchangeRates
}

// rateCurrencies are the currencies broker statements actually quote in.
var rateCurrencies = []string{"HKD", "CNY", "EUR", "GBP", "JPY", "SGD"}

// NewExchangeRateService creates a new ExchangeRateService instance.
func NewExchangeRateService(apiKey string) *ExchangeRateService {
	return &ExchangeRateService{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.exchangerate.host/historical",
		cache:      make(map[string]models.ExchangeRates),
	}
}

type historicalResponse struct {
	Success bool               `json:"success"`
	Date    string             `json:"date"`
	Quotes  map[string]float64 `json:"quotes"` // "USDHKD" -> 7.8
}

// GetRates returns units-per-USD rates for the given date (YYYY-MM-DD).
func (s *ExchangeRateService) GetRates(ctx context.Context, date string) (models.ExchangeRates, error) {
	s.mu.Lock()
	if rates, ok := s.cache[date]; ok {
		s.mu.Unlock()
		return rates, nil
	}
	s.mu.Unlock()

	rates, err := WithCircuitBreaker(ctx, BreakerExchangeRate, func() (models.ExchangeRates, error) {
		return s.fetchRates(ctx, date)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[date] = rates
	s.mu.Unlock()

	return rates, nil
}

func (s *ExchangeRateService) fetchRates(ctx context.Context, date string) (models.ExchangeRates, error) {
	var resp historicalResponse

	err := WithRetry(ctx, DefaultRetryConfig, func() error {
		params := url.Values{}
		params.Set("access_key", s.apiKey)
		params.Set("date", date)
		params.Set("source", "USD")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("building exchange rate request: %w", err)
		}

		httpResp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch exchange rates: %w", err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("exchange rate API returned %d", httpResp.StatusCode)
		}
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return fmt.Errorf("failed to decode exchange rates: %w", err)
		}
		if !resp.Success {
			return fmt.Errorf("exchange rate API reported failure for %s", date)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rates := models.ExchangeRates{"USD": decimal.NewFromInt(1)}
	for _, ccy := range rateCurrencies {
		quote, ok := resp.Quotes["USD"+ccy]
		if !ok {
			observability.Warn("exchange rate missing for currency", "currency", ccy, "date", date)
			continue
		}
		rates[ccy] = decimal.NewFromFloat(quote)
	}

	observability.Info("fetched exchange rates", "date", date, "currencies", len(rates))
	return rates, nil
}

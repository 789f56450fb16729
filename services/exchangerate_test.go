package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGetRatesParsesAndCaches(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.URL.Query().Get("date"); got != "2026-06-30" {
			t.Errorf("date = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"date":    "2026-06-30",
			"quotes":  map[string]float64{"USDHKD": 7.8, "USDCNY": 7.1, "USDJPY": 150.2},
		})
	}))
	defer server.Close()

	svc := NewExchangeRateService("key")
	svc.baseURL = server.URL
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

	rates, err := svc.GetRates(context.Background(), "2026-06-30")
	if err != nil {
		t.Fatalf("GetRates: %v", err)
	}
	if !rates["HKD"].Equal(decimal.NewFromFloat(7.8)) {
		t.Errorf("HKD = %s, want 7.8", rates["HKD"])
	}
	if !rates["USD"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("USD = %s, want 1", rates["USD"])
	}

	// 780 HKD is 100 USD under units-per-USD semantics.
	usd, ok := rates.ToUSD(decimal.NewFromInt(780), "HKD")
	if !ok || !usd.Equal(decimal.NewFromInt(100)) {
		t.Errorf("ToUSD(780 HKD) = (%s, %v), want 100", usd, ok)
	}

	// Historical rates are immutable, so the second lookup hits the cache.
	if _, err := svc.GetRates(context.Background(), "2026-06-30"); err != nil {
		t.Fatalf("GetRates: %v", err)
	}
	if calls != 1 {
		t.Errorf("API calls = %d, want 1", calls)
	}
}

func TestGetRatesFailureResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer server.Close()

	svc := NewExchangeRateService("key")
	svc.baseURL = server.URL
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

	if _, err := svc.GetRates(context.Background(), "2026-06-30"); err == nil {
		t.Fatal("expected error on API failure flag")
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"fundmate/options"
)

func newQuoteGateway(t *testing.T, handler http.HandlerFunc) *HKQuoteService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHKQuoteService(server.URL)
}

func TestGetOptionChainReturnsFirstContract(t *testing.T) {
	svc := newQuoteGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/option-chain" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("code"); got != "HK.02628" {
			t.Errorf("code = %q, want HK.02628", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": "HK.02628",
			"contracts": []map[string]string{
				{"code": "HK.CLI260629C20000"},
				{"code": "HK.CLI260629C22500"},
			},
		})
	})

	got, err := svc.GetOptionChain(context.Background(), "HK.02628")
	if err != nil {
		t.Fatalf("GetOptionChain: %v", err)
	}
	if got != "HK.CLI260629C20000" {
		t.Errorf("contract = %q, want HK.CLI260629C20000", got)
	}
}

func TestGetOptionChainEmptyMapsToNoChain(t *testing.T) {
	svc := newQuoteGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "HK.00001", "contracts": []any{}})
	})

	_, err := svc.GetOptionChain(context.Background(), "HK.00001")
	if !errors.Is(err, options.ErrNoOptionChain) {
		t.Fatalf("err = %v, want ErrNoOptionChain", err)
	}
}

func TestGetStockClose(t *testing.T) {
	svc := newQuoteGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stock-price" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": "HK.00700", "date": "2026-06-30", "close": 350.4,
		})
	})

	got, err := svc.GetStockClose(context.Background(), "HK.00700", "2026-06-30")
	if err != nil {
		t.Fatalf("GetStockClose: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(350.4)) {
		t.Errorf("close = %s, want 350.4", got)
	}
}

func TestGatewayErrorStatusIsAnError(t *testing.T) {
	svc := newQuoteGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	// Don't share breaker state with other tests.
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

	if _, err := svc.GetOptionClose(context.Background(), "HK.CLI260629C20000", "2026-06-30"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestGatewayStockSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"700", "HK.00700"},
		{"2628", "HK.02628"},
		{"9988 HK", "HK.09988"},
		{"AAPL", "US.AAPL"},
		{"brk.b", "US.BRK.B"},
	}
	for _, tt := range tests {
		if got := GatewayStockSymbol(tt.in); got != tt.want {
			t.Errorf("GatewayStockSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

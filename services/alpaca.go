package services

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaService provides US equity market data. Only the market data API
// is used; valuation needs daily closes, not order routing.
type AlpacaService struct {
	dataClient *marketdata.Client
}

// NewAlpacaService creates a new AlpacaService instance.
func NewAlpacaService(apiKey, apiSecret string) *AlpacaService {
	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return &AlpacaService{dataClient: dataClient}
}

// GetCloseOn returns the daily close for a US symbol on the given date
// (YYYY-MM-DD), falling back to the most recent close in the preceding
// week when the date is a holiday or weekend.
func (s *AlpacaService) GetCloseOn(ctx context.Context, symbol, date string) (decimal.Decimal, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid valuation date %q: %w", date, err)
	}

	bars, err := WithCircuitBreaker(ctx, BreakerAlpaca, func() ([]marketdata.Bar, error) {
		var got []marketdata.Bar
		err := WithRetry(ctx, DefaultRetryConfig, func() error {
			var reqErr error
			got, reqErr = s.dataClient.GetBars(symbol, marketdata.GetBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     day.AddDate(0, 0, -7),
				End:       day.Add(24 * time.Hour),
			})
			return reqErr
		})
		return got, err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
	}

	// Bars arrive oldest first; the last one is the close at or nearest
	// before the valuation date.
	if len(bars) == 0 {
		return decimal.Zero, nil
	}
	return decimal.NewFromFloat(bars[len(bars)-1].Close), nil
}

// GetLatestTradePrice returns the most recent trade price for a US symbol.
func (s *AlpacaService) GetLatestTradePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	trade, err := WithCircuitBreaker(ctx, BreakerAlpaca, func() (*marketdata.Trade, error) {
		return s.dataClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get trade for %s: %w", symbol, err)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

package services

import (
	"context"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/options"
	"fundmate/portfolio"
	"fundmate/statements"
)

// BedrockServiceInterface defines the interface for AI/LLM operations via AWS Bedrock
type BedrockServiceInterface interface {
	InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	InvokeWithImages(ctx context.Context, systemPrompt, userPrompt string, images [][]byte) (string, error)
	InvokeStructured(ctx context.Context, systemPrompt, userPrompt string, result interface{}) error
	Chat(ctx context.Context, systemPrompt string, messages []ClaudeMessage) (string, error)
}

// HKQuoteServiceInterface defines the interface for the quote gateway
type HKQuoteServiceInterface interface {
	GetOptionChain(ctx context.Context, underlying string) (string, error)
	GetStockClose(ctx context.Context, symbol, date string) (decimal.Decimal, error)
	GetOptionClose(ctx context.Context, optionCode, date string) (decimal.Decimal, error)
}

// ExchangeRateServiceInterface defines the interface for FX rate lookups
type ExchangeRateServiceInterface interface {
	GetRates(ctx context.Context, date string) (models.ExchangeRates, error)
}

// Compile-time interface verification
var _ BedrockServiceInterface = (*BedrockService)(nil)
var _ HKQuoteServiceInterface = (*HKQuoteService)(nil)
var _ ExchangeRateServiceInterface = (*ExchangeRateService)(nil)
var _ options.OptionChainSource = (*HKQuoteService)(nil)
var _ statements.DocumentExtractor = (*BedrockService)(nil)
var _ portfolio.PriceSource = (*PriceRouter)(nil)

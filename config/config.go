package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Bedrock configuration for statement extraction
	Bedrock BedrockConfig

	// External service configurations
	Alpaca       AlpacaConfig
	HKQuote      HKQuoteConfig
	ExchangeRate ExchangeRateConfig

	// Statement processing configuration
	Processing ProcessingConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Production toggles JSON logging
	Production bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// BedrockConfig holds AWS Bedrock configuration
type BedrockConfig struct {
	Region  string
	ModelID string
}

// AlpacaConfig holds Alpaca market data configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
}

// HKQuoteConfig holds quote gateway configuration
type HKQuoteConfig struct {
	BaseURL string
}

// ExchangeRateConfig holds exchange rate API configuration
type ExchangeRateConfig struct {
	APIKey string
}

// ProcessingConfig holds statement processing configuration
type ProcessingConfig struct {
	StatementDir  string // scanned statement images, one subdirectory per broker
	ExcelDir      string // broker position workbooks, one subdirectory per broker
	TradeConfDir  string // trade confirmation workbooks named TC-YYYY-MM-DD-*
	MaxExtractors int    // concurrent statement extractions
}

// SchedulerConfig holds scheduled processing configuration
type SchedulerConfig struct {
	Enabled  bool
	CronExpr string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Bedrock: BedrockConfig{
			Region:  getEnvString("BEDROCK_REGION", "us-east-1"),
			ModelID: getEnvString("BEDROCK_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
		},
		HKQuote: HKQuoteConfig{
			BaseURL: getEnvString("HKQUOTE_BASE_URL", "http://localhost:8080"),
		},
		ExchangeRate: ExchangeRateConfig{
			APIKey: os.Getenv("EXCHANGERATE_API_KEY"),
		},
		Processing: ProcessingConfig{
			StatementDir:  getEnvString("STATEMENT_DIR", "data/statements"),
			ExcelDir:      getEnvString("EXCEL_DIR", "data/excel"),
			TradeConfDir:  getEnvString("TRADE_CONF_DIR", "data/archives/TradeConfirmation"),
			MaxExtractors: getEnvInt("MAX_EXTRACTORS", 4),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvBool("SCHEDULER_ENABLED", false),
			CronExpr: getEnvString("SCHEDULER_CRON", "0 22 * * 1-5"),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8090"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
		Production: getEnvBool("PRODUCTION", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bedrock.Region == "" {
		return fmt.Errorf("BEDROCK_REGION must not be empty")
	}
	if c.Bedrock.ModelID == "" {
		return fmt.Errorf("BEDROCK_MODEL_ID must not be empty")
	}
	if c.Processing.MaxExtractors <= 0 {
		return fmt.Errorf("MAX_EXTRACTORS must be positive, got %d", c.Processing.MaxExtractors)
	}
	if c.Processing.StatementDir == "" {
		return fmt.Errorf("STATEMENT_DIR must not be empty")
	}
	if c.Processing.TradeConfDir == "" {
		return fmt.Errorf("TRADE_CONF_DIR must not be empty")
	}
	if c.Scheduler.Enabled && c.Scheduler.CronExpr == "" {
		return fmt.Errorf("SCHEDULER_CRON must not be empty when the scheduler is enabled")
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// HasExchangeRate returns true if exchange rate API configuration is available
func (c *Config) HasExchangeRate() bool {
	return c.ExchangeRate.APIKey != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "",
		},
		Bedrock: BedrockConfig{
			Region:  "us-east-1",
			ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
		},
		Alpaca: AlpacaConfig{
			APIKey:    "",
			APISecret: "",
		},
		HKQuote: HKQuoteConfig{
			BaseURL: "http://localhost:8080",
		},
		ExchangeRate: ExchangeRateConfig{
			APIKey: "",
		},
		Processing: ProcessingConfig{
			StatementDir:  "data/statements",
			ExcelDir:      "data/excel",
			TradeConfDir:  "data/archives/TradeConfirmation",
			MaxExtractors: 4,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			CronExpr: "0 22 * * 1-5",
		},
		HTTP: HTTPConfig{
			Addr:               ":8090",
			CORSAllowedOrigins: "*",
		},
		Production: false,
	}
}

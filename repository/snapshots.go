package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fundmate/models"
)

// ProcessingRun is one persisted reconciliation: the date it valued, how
// it was produced, and the rates used.
type ProcessingRun struct {
	ID        uuid.UUID       `json:"id"`
	RunDate   string          `json:"run_date"` // YYYY-MM-DD
	Mode      string          `json:"mode"`     // "statement" or "trade_confirmation"
	BaseDate  string          `json:"base_date,omitempty"`
	Rates     json.RawMessage `json:"rates"`
	CreatedAt time.Time       `json:"created_at"`
}

// SaveRun persists a reconciliation run with all broker results in one
// transaction. A re-run of the same date inserts a new run; readers take
// the latest.
func (r *Repository) SaveRun(ctx context.Context, runDate, mode, baseDate string, results []*models.ProcessedResult, rates models.ExchangeRates) (uuid.UUID, error) {
	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	runID := uuid.New()
	ratesJSON, err := json.Marshal(rates)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal exchange rates: %w", err)
	}

	_, err = txRepo.db.Exec(ctx, `
		INSERT INTO processing_runs (id, run_date, mode, base_date, rates, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NOW())
	`, runID, runDate, mode, baseDate, ratesJSON)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert processing run: %w", err)
	}

	for _, result := range results {
		if err := txRepo.insertBrokerResult(ctx, runID, result); err != nil {
			return uuid.Nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

func (r *Repository) insertBrokerResult(ctx context.Context, runID uuid.UUID, result *models.ProcessedResult) error {
	cashJSON, err := json.Marshal(result.Cash)
	if err != nil {
		return fmt.Errorf("failed to marshal cash for %s: %w", result.BrokerName, err)
	}
	positionsJSON, err := json.Marshal(result.Positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions for %s: %w", result.BrokerName, err)
	}
	valuationJSON, err := json.Marshal(result.Valuation)
	if err != nil {
		return fmt.Errorf("failed to marshal valuation for %s: %w", result.BrokerName, err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO broker_results
			(id, run_id, broker, account_id, cash, cash_total, cash_total_currency,
			 positions, usd_total, position_value_usd, valuation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.New(), runID, result.BrokerName, result.AccountID, cashJSON,
		result.CashTotal, result.CashTotalCurrency, positionsJSON,
		result.USDTotal, result.TotalPositionValueUSD, valuationJSON)
	if err != nil {
		return fmt.Errorf("failed to insert broker result for %s: %w", result.BrokerName, err)
	}
	return nil
}

// AvailableDates returns the distinct run dates with persisted results,
// newest first.
func (r *Repository) AvailableDates(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT to_char(run_date, 'YYYY-MM-DD') AS d FROM processing_runs ORDER BY d DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query run dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan run date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// LatestRun returns the most recent run for a date, or nil when the date
// has never been processed.
func (r *Repository) LatestRun(ctx context.Context, runDate string) (*ProcessingRun, error) {
	var run ProcessingRun
	var baseDate *string
	err := r.db.QueryRow(ctx, `
		SELECT id, to_char(run_date, 'YYYY-MM-DD'), mode,
		       to_char(base_date, 'YYYY-MM-DD'), rates, created_at
		FROM processing_runs
		WHERE run_date = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, runDate).Scan(&run.ID, &run.RunDate, &run.Mode, &baseDate, &run.Rates, &run.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run for %s: %w", runDate, err)
	}
	if baseDate != nil {
		run.BaseDate = *baseDate
	}
	return &run, nil
}

// LoadSnapshot returns the broker results of the latest run for a date.
// A date with no run returns (nil, nil, nil).
func (r *Repository) LoadSnapshot(ctx context.Context, runDate string) ([]*models.ProcessedResult, models.ExchangeRates, error) {
	run, err := r.LatestRun(ctx, runDate)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, nil
	}

	var rates models.ExchangeRates
	if len(run.Rates) > 0 {
		if err := json.Unmarshal(run.Rates, &rates); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal rates for %s: %w", runDate, err)
		}
	}

	rows, err := r.db.Query(ctx, `
		SELECT broker, account_id, cash, cash_total, cash_total_currency,
		       positions, usd_total, position_value_usd, valuation
		FROM broker_results
		WHERE run_id = $1
		ORDER BY broker
	`, run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query broker results: %w", err)
	}
	defer rows.Close()

	var results []*models.ProcessedResult
	for rows.Next() {
		var (
			result        models.ProcessedResult
			cashJSON      []byte
			positionsJSON []byte
			valuationJSON []byte
			cashCurrency  *string
			accountID     *string
		)
		err := rows.Scan(&result.BrokerName, &accountID, &cashJSON, &result.CashTotal,
			&cashCurrency, &positionsJSON, &result.USDTotal,
			&result.TotalPositionValueUSD, &valuationJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan broker result: %w", err)
		}

		if accountID != nil {
			result.AccountID = *accountID
		}
		if cashCurrency != nil {
			result.CashTotalCurrency = *cashCurrency
		}
		result.StatementDate = run.RunDate
		result.Cash = map[string]decimal.Decimal{}
		if err := json.Unmarshal(cashJSON, &result.Cash); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal cash for %s: %w", result.BrokerName, err)
		}
		if err := json.Unmarshal(positionsJSON, &result.Positions); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal positions for %s: %w", result.BrokerName, err)
		}
		if err := json.Unmarshal(valuationJSON, &result.Valuation); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal valuation for %s: %w", result.BrokerName, err)
		}
		results = append(results, &result)
	}
	return results, rates, nil
}

// Migrate creates the snapshot tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS processing_runs (
			id UUID PRIMARY KEY,
			run_date DATE NOT NULL,
			mode TEXT NOT NULL,
			base_date DATE,
			rates JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_processing_runs_date ON processing_runs (run_date, created_at DESC);

		CREATE TABLE IF NOT EXISTS broker_results (
			id UUID PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES processing_runs(id) ON DELETE CASCADE,
			broker TEXT NOT NULL,
			account_id TEXT,
			cash JSONB NOT NULL,
			cash_total NUMERIC,
			cash_total_currency TEXT,
			positions JSONB NOT NULL,
			usd_total NUMERIC NOT NULL,
			position_value_usd NUMERIC NOT NULL,
			valuation JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_broker_results_run ON broker_results (run_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

package repository

import (
	"context"

	"github.com/google/uuid"

	"fundmate/models"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error
	Migrate(ctx context.Context) error

	// Snapshot persistence
	SaveRun(ctx context.Context, runDate, mode, baseDate string, results []*models.ProcessedResult, rates models.ExchangeRates) (uuid.UUID, error)
	AvailableDates(ctx context.Context) ([]string, error)
	LatestRun(ctx context.Context, runDate string) (*ProcessingRun, error)
	LoadSnapshot(ctx context.Context, runDate string) ([]*models.ProcessedResult, models.ExchangeRates, error)
}

// Compile-time interface verification
var _ RepositoryInterface = (*Repository)(nil)

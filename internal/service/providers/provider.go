package providers

import (
	"context"
	"time"

	"ChainWatch/internal/domain/models"
)

// Provider fetches the full option chain for one symbol on one trading day.
// Implementations return *Failure for classified errors.
type Provider interface {
	Name() string
	FetchChain(ctx context.Context, symbol string, asOf time.Time) (*models.ChainSnapshot, error)
}

package collector

import (
	"context"

	"CryptoAnalysis/internal/model"
)

// Fetcher retrieves named metrics for one asset over a date window.
type Fetcher interface {
	Fetch(ctx context.Context, req model.TimeSeriesRequest) (*model.TimeSeriesTable, error)
	Name() string
}

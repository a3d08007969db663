// Package provider defines the market-data provider interface and its
// implementations.
package provider

import (
	"context"
	"time"

	"etf-tracker/internal/models"
)

// Provider is the external market-data collaborator. Implementations must
// tolerate arbitrary latency and transient failure; callers wrap every
// method in retry and rate-limit policy.
type Provider interface {
	// BulkSpot returns current price/volume for all tradeable funds in one
	// call. This is the expensive endpoint the fetcher amortizes.
	BulkSpot(ctx context.Context) ([]models.Instrument, error)

	// HistoricalBars returns dated OHLCV bars for one fund over a date
	// range, oldest first. Column names and types are normalized by the
	// implementation, not assumed stable on the wire.
	HistoricalBars(ctx context.Context, code string, start, end time.Time) ([]models.Bar, error)

	// FundInfo returns static descriptive metadata for one fund.
	FundInfo(ctx context.Context, code string) (models.InstrumentInfo, error)
}

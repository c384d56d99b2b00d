// Package warehouse is the storage collaborator for the ETL pipeline.
// It defines the Store contract the pipeline depends on and a Postgres
// implementation built on pgx. Each write method runs in its own
// transaction; nothing in this package spans a transaction across
// stages.
package warehouse

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"warehouse/internal/model"
)

// Keys carries the dimension key mappings fetched in bulk after the
// dimension load, so fact resolution never queries per row. Customer
// ids are their own surrogate key; products and dates map natural key
// to the storage-generated one.
type Keys struct {
	Customers map[int64]struct{}
	Products  map[string]int64
	Dates     map[time.Time]int64 // midnight UTC -> date_key
}

// Snapshot is the read-only post-load view used by validation.
type Snapshot struct {
	FactCount       int64
	CustomerCount   int64
	ProductCount    int64
	DateCount       int64
	NegativeAmounts int64
	TotalRevenue    decimal.Decimal
	FirstInvoice    *time.Time
	LastInvoice     *time.Time
}

// Store is the warehouse contract the pipeline runs against.
type Store interface {
	// Ping verifies the warehouse is reachable before any stage runs.
	Ping(ctx context.Context) error

	// UpsertDates is insert-if-absent keyed by calendar date; existing
	// rows are never touched. One transaction for the whole batch.
	UpsertDates(ctx context.Context, rows []model.DateRow) error

	// UpsertCustomers overwrites purchase window and aggregates on
	// conflict. The incoming aggregates were computed from the current
	// batch only, so a re-run replaces rather than accumulates them.
	UpsertCustomers(ctx context.Context, rows []model.CustomerRow) error

	// UpsertProducts overwrites description and mean price on conflict,
	// with the same current-batch caveat as UpsertCustomers.
	UpsertProducts(ctx context.Context, rows []model.ProductRow) error

	// DimensionKeys bulk-fetches the committed dimension key mappings.
	DimensionKeys(ctx context.Context) (*Keys, error)

	// InsertFacts bulk-appends one batch of fact rows in a single
	// transaction: the batch either commits whole or not at all.
	InsertFacts(ctx context.Context, rows []model.FactRow) (int64, error)

	// RefreshAggregates rebuilds the derived monthly metrics view.
	RefreshAggregates(ctx context.Context) error

	// ReadSnapshot collects the post-load counts used by validation.
	ReadSnapshot(ctx context.Context) (*Snapshot, error)

	Close()
}

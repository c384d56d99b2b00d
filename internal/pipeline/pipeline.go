// Package pipeline sequences the warehouse ETL run: connect, extract,
// transform, load dimensions, load facts, refresh aggregates, validate.
// Stages run strictly in order; the first fatal error short-circuits
// the rest and the run always ends in the Closed state with resources
// released. Dimension commits complete before fact resolution starts —
// that ordering is a correctness barrier, not a tuning choice.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warehouse/internal/config"
	"warehouse/internal/dimension"
	"warehouse/internal/extract"
	"warehouse/internal/facts"
	"warehouse/internal/metrics"
	"warehouse/internal/model"
	"warehouse/internal/transform"
	"warehouse/internal/validate"
	"warehouse/internal/warehouse"
)

// Pipeline executes one ETL run. It takes ownership of the store and
// closes it when the run reaches the Closed state.
type Pipeline struct {
	cfg   *config.Config
	store warehouse.Store
	log   *zap.Logger

	state State
	stats *model.RunStats

	// extractFn is a test seam; production points at extract.ReadFile.
	extractFn func(path string, opt extract.Options) (*extract.Result, error)
}

// New constructs a Pipeline. A nil logger disables logging.
func New(cfg *config.Config, store warehouse.Store, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		log:       log,
		state:     StateConnect,
		stats:     model.NewRunStats(),
		extractFn: extract.ReadFile,
	}
}

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() State { return p.state }

// Run executes the full pipeline and reports success plus the populated
// run statistics. A validation failure is recorded but does not flip
// the result: by then the data is already committed.
func (p *Pipeline) Run(ctx context.Context) (bool, *model.RunStats) {
	start := time.Now()
	defer func() {
		p.state = StateClosed
		p.store.Close()
		p.stats.Duration = time.Since(start)
	}()

	if err := p.run(ctx); err != nil {
		p.stats.RecordError(string(p.state), err)
		p.log.Error("pipeline failed", zap.String("stage", string(p.state)), zap.Error(err))
		return false, p.stats
	}

	p.stats.Duration = time.Since(start)
	p.log.Info("pipeline completed",
		zap.Duration("duration", p.stats.Duration.Truncate(time.Millisecond)),
		zap.Int("rows_extracted", p.stats.RowsExtracted),
		zap.Int("rows_after_cleaning", p.stats.RowsAfterCleaning),
		zap.Int64("transactions_loaded", p.stats.TransactionsLoaded),
		zap.Int("facts_skipped", p.stats.FactsSkipped),
		zap.Float64("retention_pct", p.stats.Retention()))
	return true, p.stats
}

func (p *Pipeline) run(ctx context.Context) error {
	stageStart := time.Now()
	observe := func(err error) {
		metrics.RecordStage(string(p.state), err, time.Since(stageStart))
		stageStart = time.Now()
	}
	fail := func(err error) error {
		observe(err)
		return err
	}

	// Connect.
	if err := p.store.Ping(ctx); err != nil {
		return fail(&ConnectionError{Err: err})
	}
	observe(nil)

	// Extract.
	p.advance(StateExtract)
	res, err := p.extractFn(p.cfg.Source.Path, extract.Options{
		Delimiter: firstRune(p.cfg.Source.Delimiter),
		Encoding:  p.cfg.Source.Encoding,
	})
	if err != nil {
		return fail(&ExtractionError{Path: p.cfg.Source.Path, Err: err})
	}
	p.stats.RowsExtracted = len(res.Records)
	metrics.RecordRows("extracted", int64(p.stats.RowsExtracted))
	p.log.Info("extracted source rows",
		zap.String("path", p.cfg.Source.Path),
		zap.Int("rows", p.stats.RowsExtracted),
		zap.Int("unparseable_lines", res.Skipped))

	observe(nil)

	// Transform.
	p.advance(StateTransform)
	cleaner := transform.New(p.cfg.Load.QuantityCeiling)
	clean, drops, err := cleaner.Apply(res.Records)
	if err != nil {
		return fail(&TransformError{Err: err})
	}
	p.stats.RowsAfterCleaning = len(clean)
	p.stats.Drops = drops
	metrics.RecordRows("cleaned", int64(len(clean)))
	metrics.RecordRows("dropped", int64(drops.Total()))
	p.log.Info("cleaning complete",
		zap.Int("rows_in", p.stats.RowsExtracted),
		zap.Int("rows_out", p.stats.RowsAfterCleaning),
		zap.Float64("retention_pct", p.stats.Retention()),
		zap.Int("duplicates", drops.Duplicates),
		zap.Int("missing_customer", drops.MissingCustomer),
		zap.Int("missing_description", drops.MissingDescription),
		zap.Int("bad_timestamp", drops.BadTimestamp),
		zap.Int("cancelled", drops.Cancelled),
		zap.Int("non_positive", drops.NonPositive),
		zap.Int("outliers", drops.Outlier))
	observe(nil)

	// Load dimensions. Projections are computed concurrently but each
	// dimension type commits on its own, in a fixed order, before fact
	// resolution may read them.
	p.advance(StateLoadDimensions)
	set, err := dimension.Build(ctx, clean)
	if err != nil {
		return fail(&DimensionLoadError{Dimension: "build", Err: err})
	}
	if err := p.store.UpsertDates(ctx, set.Dates); err != nil {
		return fail(&DimensionLoadError{Dimension: "dim_dates", Err: err})
	}
	p.stats.DatesLoaded = len(set.Dates)
	if err := p.store.UpsertCustomers(ctx, set.Customers); err != nil {
		return fail(&DimensionLoadError{Dimension: "dim_customers", Err: err})
	}
	p.stats.CustomersLoaded = len(set.Customers)
	if err := p.store.UpsertProducts(ctx, set.Products); err != nil {
		return fail(&DimensionLoadError{Dimension: "dim_products", Err: err})
	}
	p.stats.ProductsLoaded = len(set.Products)
	p.log.Info("dimensions loaded",
		zap.Int("dates", p.stats.DatesLoaded),
		zap.Int("customers", p.stats.CustomersLoaded),
		zap.Int("products", p.stats.ProductsLoaded))
	observe(nil)

	// Load facts.
	p.advance(StateLoadFacts)
	keys, err := p.store.DimensionKeys(ctx)
	if err != nil {
		return fail(&FactLoadError{Err: err})
	}
	rows, skipped := facts.Resolve(clean, keys)
	p.stats.FactsSkipped = skipped
	if skipped > 0 {
		p.log.Warn("records excluded by dimension resolution", zap.Int("skipped", skipped))
	}
	loaded, err := facts.Load(ctx, p.store, rows, p.cfg.Load.BatchSize, p.log)
	p.stats.TransactionsLoaded = loaded
	metrics.RecordRows("facts_loaded", loaded)
	metrics.RecordRows("facts_skipped", int64(skipped))
	if err != nil {
		return fail(&FactLoadError{Err: err})
	}
	p.log.Info("facts loaded", zap.Int64("rows", loaded))
	observe(nil)

	// Refresh derived aggregates.
	p.advance(StateRefresh)
	if err := p.store.RefreshAggregates(ctx); err != nil {
		return fail(fmt.Errorf("refresh aggregates: %w", err))
	}
	observe(nil)

	// Validate. Non-fatal: record and report, the load is committed.
	p.advance(StateValidate)
	results, err := validate.Run(ctx, p.store)
	if err != nil {
		verr := &ValidationError{Err: err}
		p.stats.RecordError(string(StateValidate), verr)
		p.log.Warn("post-load validation unavailable", zap.Error(verr))
		observe(verr)
		return nil
	}
	observe(nil)
	p.log.Info("post-load validation",
		zap.Int64("transaction_count", results.TransactionCount),
		zap.Int64("customer_count", results.CustomerCount),
		zap.Int64("product_count", results.ProductCount),
		zap.Int64("date_count", results.DateCount),
		zap.Int64("negative_amounts", results.NegativeAmounts),
		zap.String("total_revenue", results.TotalRevenue.StringFixed(2)),
		zap.String("date_range", results.DateRange))
	for _, f := range results.Findings {
		p.log.Warn("validation finding", zap.String("finding", f))
	}
	return nil
}

// advance moves the state machine forward. Transitions are driven by
// the linear run loop, so an invalid one is a programming error.
func (p *Pipeline) advance(to State) {
	if !CanTransition(p.state, to) {
		panic(fmt.Sprintf("invalid pipeline transition %s -> %s", p.state, to))
	}
	p.state = to
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

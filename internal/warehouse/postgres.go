package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"warehouse/internal/model"
)

// PG is the Postgres-backed Store.
type PG struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

var _ Store = (*PG)(nil)

// Open connects a pgx pool to the warehouse. The pool connects lazily;
// use Ping to verify reachability.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*PG, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PG{pool: pool, log: log}, nil
}

func (s *PG) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PG) Close() { s.pool.Close() }

const upsertDateSQL = `
	INSERT INTO dim_dates (full_date, year, quarter, month, month_name,
	                       week, day_of_month, day_of_week, day_name, is_weekend)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (full_date) DO NOTHING`

func (s *PG) UpsertDates(ctx context.Context, rows []model.DateRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertDateSQL,
			r.FullDate, r.Year, r.Quarter, r.Month, r.MonthName,
			r.Week, r.DayOfMonth, r.DayOfWeek, r.DayName, r.IsWeekend)
	}
	return s.sendBatch(ctx, "dim_dates", batch)
}

const upsertCustomerSQL = `
	INSERT INTO dim_customers (customer_id, country, first_purchase_date,
	                           last_purchase_date, total_orders, lifetime_value)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (customer_id) DO UPDATE SET
		last_purchase_date = EXCLUDED.last_purchase_date,
		total_orders = EXCLUDED.total_orders,
		lifetime_value = EXCLUDED.lifetime_value,
		updated_at = NOW()`

func (s *PG) UpsertCustomers(ctx context.Context, rows []model.CustomerRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertCustomerSQL,
			r.CustomerID, r.Country, r.FirstPurchaseDate,
			r.LastPurchaseDate, r.TotalOrders, r.LifetimeValue)
	}
	return s.sendBatch(ctx, "dim_customers", batch)
}

const upsertProductSQL = `
	INSERT INTO dim_products (stock_code, description, unit_price)
	VALUES ($1, $2, $3)
	ON CONFLICT (stock_code) DO UPDATE SET
		description = EXCLUDED.description,
		unit_price = EXCLUDED.unit_price`

func (s *PG) UpsertProducts(ctx context.Context, rows []model.ProductRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertProductSQL, r.StockCode, r.Description, r.UnitPrice)
	}
	return s.sendBatch(ctx, "dim_products", batch)
}

// sendBatch runs every queued statement inside one transaction so a
// dimension type commits as an atomic unit.
func (s *PG) sendBatch(ctx context.Context, table string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", table, err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%s: upsert row %d: %w", table, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%s: close batch: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", table, err)
	}
	s.log.Debug("dimension batch committed", zap.String("table", table), zap.Int("rows", batch.Len()))
	return nil
}

func (s *PG) DimensionKeys(ctx context.Context) (*Keys, error) {
	keys := &Keys{
		Customers: map[int64]struct{}{},
		Products:  map[string]int64{},
		Dates:     map[time.Time]int64{},
	}

	rows, err := s.pool.Query(ctx, `SELECT customer_id FROM dim_customers`)
	if err != nil {
		return nil, fmt.Errorf("fetch customer keys: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		keys.Customers[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch customer keys: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT stock_code, product_id FROM dim_products`)
	if err != nil {
		return nil, fmt.Errorf("fetch product keys: %w", err)
	}
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			rows.Close()
			return nil, err
		}
		keys.Products[code] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch product keys: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT full_date, date_key FROM dim_dates`)
	if err != nil {
		return nil, fmt.Errorf("fetch date keys: %w", err)
	}
	for rows.Next() {
		var d time.Time
		var id int64
		if err := rows.Scan(&d, &id); err != nil {
			rows.Close()
			return nil, err
		}
		keys.Dates[midnightUTC(d)] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch date keys: %w", err)
	}

	return keys, nil
}

var factColumns = []string{
	"invoice_no", "customer_id", "product_id", "date_id",
	"invoice_date", "quantity", "unit_price",
}

func (s *PG) InsertFacts(ctx context.Context, batch []model.FactRow) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	src := make([][]any, len(batch))
	for i, r := range batch {
		src[i] = []any{
			r.InvoiceNo, r.CustomerID, r.ProductID, r.DateID,
			r.InvoiceDate, r.Quantity, r.UnitPrice,
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("facts: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"fact_transactions"}, factColumns, pgx.CopyFromRows(src))
	if err != nil {
		return 0, fmt.Errorf("facts: copy: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("facts: commit: %w", err)
	}
	return n, nil
}

func (s *PG) RefreshAggregates(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW mv_monthly_metrics`); err != nil {
		return fmt.Errorf("refresh mv_monthly_metrics: %w", err)
	}
	return nil
}

func (s *PG) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM fact_transactions),
			(SELECT COUNT(*) FROM dim_customers),
			(SELECT COUNT(*) FROM dim_products),
			(SELECT COUNT(*) FROM dim_dates),
			(SELECT COUNT(*) FROM fact_transactions WHERE total_amount < 0),
			(SELECT COALESCE(SUM(total_amount), 0) FROM fact_transactions),
			(SELECT MIN(invoice_date) FROM fact_transactions),
			(SELECT MAX(invoice_date) FROM fact_transactions)`,
	).Scan(
		&snap.FactCount, &snap.CustomerCount, &snap.ProductCount, &snap.DateCount,
		&snap.NegativeAmounts, &snap.TotalRevenue, &snap.FirstInvoice, &snap.LastInvoice,
	)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

// midnightUTC normalizes a scanned DATE value so it matches the map key
// derived from clean records.
func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

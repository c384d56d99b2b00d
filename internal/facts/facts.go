// Package facts resolves clean records against the committed dimension
// keys and appends the resulting fact rows in batches. Resolution is a
// single in-memory join over prefetched key mappings; no per-row
// queries are issued.
package facts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"warehouse/internal/model"
	"warehouse/internal/warehouse"
)

// Inserter is the slice of the warehouse contract the loader needs.
type Inserter interface {
	InsertFacts(ctx context.Context, rows []model.FactRow) (int64, error)
}

// Resolve maps each clean record to its customer, product, and date
// surrogate keys. A record whose any lookup fails is excluded and
// counted; it never fails the run.
func Resolve(recs []model.CleanRecord, keys *warehouse.Keys) ([]model.FactRow, int) {
	out := make([]model.FactRow, 0, len(recs))
	skipped := 0
	for _, r := range recs {
		if _, ok := keys.Customers[r.CustomerID]; !ok {
			skipped++
			continue
		}
		productID, ok := keys.Products[r.StockCode]
		if !ok {
			skipped++
			continue
		}
		dateID, ok := keys.Dates[r.Date()]
		if !ok {
			skipped++
			continue
		}
		out = append(out, model.FactRow{
			InvoiceNo:   r.InvoiceNo,
			CustomerID:  r.CustomerID,
			ProductID:   productID,
			DateID:      dateID,
			InvoiceDate: r.InvoiceDate,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
		})
	}
	return out, skipped
}

// Load writes rows in fixed-size batches, each batch one transaction.
// On error the in-flight batch rolls back inside the store; the total
// reflects batches already committed. Progress is logged per flush.
func Load(ctx context.Context, ins Inserter, rows []model.FactRow, batchSize int, log *zap.Logger) (int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	var (
		total   int64
		batches int
		start   = time.Now()
	)
	for len(rows) > 0 {
		n := batchSize
		if n > len(rows) {
			n = len(rows)
		}
		inserted, err := ins.InsertFacts(ctx, rows[:n])
		total += inserted
		if err != nil {
			log.Error("fact batch failed",
				zap.Int("batch", batches+1),
				zap.Int64("total_inserted", total),
				zap.Error(err))
			return total, err
		}
		batches++
		rows = rows[n:]

		elapsed := time.Since(start)
		rps := float64(0)
		if elapsed > 0 {
			rps = float64(total) / elapsed.Seconds()
		}
		log.Debug("fact batch flushed",
			zap.Int("batch", batches),
			zap.Int64("inserted", inserted),
			zap.Int64("total_inserted", total),
			zap.Float64("rps", rps),
			zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)))
	}
	return total, nil
}

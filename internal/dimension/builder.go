// Package dimension aggregates clean records into the three dimension
// projections. The projections are independent, so they are computed
// concurrently; writing them to the warehouse stays strictly sequential
// and is the pipeline's job.
package dimension

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"warehouse/internal/model"
)

// Set holds the three dimension projections for one batch, each in a
// deterministic order (by natural key).
type Set struct {
	Dates     []model.DateRow
	Customers []model.CustomerRow
	Products  []model.ProductRow
}

// Build computes all three projections from the clean batch.
func Build(ctx context.Context, recs []model.CleanRecord) (*Set, error) {
	var set Set
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { set.Dates = buildDates(recs); return nil })
	g.Go(func() error { set.Customers = buildCustomers(recs); return nil })
	g.Go(func() error { set.Products = buildProducts(recs); return nil })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &set, nil
}

// buildDates emits one row per distinct calendar date in the batch.
func buildDates(recs []model.CleanRecord) []model.DateRow {
	seen := map[time.Time]struct{}{}
	var out []model.DateRow
	for _, r := range recs {
		d := r.Date()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, dateRow(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullDate.Before(out[j].FullDate) })
	return out
}

func dateRow(d time.Time) model.DateRow {
	_, week := d.ISOWeek()
	dow := model.MondayIndex(d.Weekday())
	return model.DateRow{
		FullDate:   d,
		Year:       d.Year(),
		Quarter:    model.Quarter(d.Month()),
		Month:      int(d.Month()),
		MonthName:  d.Month().String(),
		Week:       week,
		DayOfMonth: d.Day(),
		DayOfWeek:  dow,
		DayName:    d.Weekday().String(),
		IsWeekend:  dow >= 5,
	}
}

// buildCustomers aggregates purchase behavior per customer: first
// observed country, purchase window, distinct order count, and summed
// spend. Aggregates cover the current batch only; the warehouse upsert
// overwrites the stored values with them.
func buildCustomers(recs []model.CleanRecord) []model.CustomerRow {
	type agg struct {
		row      model.CustomerRow
		invoices map[string]struct{}
	}
	byID := map[int64]*agg{}
	for _, r := range recs {
		a, ok := byID[r.CustomerID]
		if !ok {
			a = &agg{
				row: model.CustomerRow{
					CustomerID:        r.CustomerID,
					Country:           r.Country,
					FirstPurchaseDate: r.InvoiceDate,
					LastPurchaseDate:  r.InvoiceDate,
				},
				invoices: map[string]struct{}{},
			}
			byID[r.CustomerID] = a
		}
		if r.InvoiceDate.Before(a.row.FirstPurchaseDate) {
			a.row.FirstPurchaseDate = r.InvoiceDate
		}
		if r.InvoiceDate.After(a.row.LastPurchaseDate) {
			a.row.LastPurchaseDate = r.InvoiceDate
		}
		a.invoices[r.InvoiceNo] = struct{}{}
		a.row.LifetimeValue = a.row.LifetimeValue.Add(r.Total)
	}

	out := make([]model.CustomerRow, 0, len(byID))
	for _, a := range byID {
		a.row.TotalOrders = int64(len(a.invoices))
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// buildProducts aggregates per stock code: the latest observed
// description and the mean unit price across the batch.
func buildProducts(recs []model.CleanRecord) []model.ProductRow {
	type agg struct {
		description string
		sum         decimal.Decimal
		n           int64
	}
	byCode := map[string]*agg{}
	for _, r := range recs {
		a, ok := byCode[r.StockCode]
		if !ok {
			a = &agg{}
			byCode[r.StockCode] = a
		}
		a.description = r.Description
		a.sum = a.sum.Add(r.UnitPrice)
		a.n++
	}

	out := make([]model.ProductRow, 0, len(byCode))
	for code, a := range byCode {
		out = append(out, model.ProductRow{
			StockCode:   code,
			Description: a.description,
			UnitPrice:   a.sum.Div(decimal.NewFromInt(a.n)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockCode < out[j].StockCode })
	return out
}

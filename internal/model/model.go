// Package model defines the typed record shapes flowing through the
// warehouse pipeline: raw rows as read from the source file, cleaned
// rows after validation, the dimension and fact rows written to
// storage, and the per-run statistics.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one source row with declared column types. String fields
// keep whatever the file contained; numeric fields are nil when the
// source value was absent or not parseable. No invariants hold.
type RawRecord struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    *int64
	InvoiceDate string
	UnitPrice   *decimal.Decimal
	CustomerID  string
	Country     string
}

// CleanRecord is a RawRecord that passed every cleaning rule. All
// fields are fully typed: quantity and price are positive, the invoice
// is not cancelled, and the customer id is numeric.
type CleanRecord struct {
	InvoiceNo   string
	StockCode   string
	Description string // trimmed, upper-cased
	Quantity    int64
	InvoiceDate time.Time
	UnitPrice   decimal.Decimal
	CustomerID  int64
	Country     string // trimmed

	// Derived fields.
	Total     decimal.Decimal // Quantity * UnitPrice
	Year      int
	Month     int
	Day       int
	DayOfWeek int // Monday=0 .. Sunday=6
	Hour      int
}

// Date returns the calendar date of the invoice, truncated to midnight UTC.
func (c CleanRecord) Date() time.Time {
	return time.Date(c.InvoiceDate.Year(), c.InvoiceDate.Month(), c.InvoiceDate.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRow is one dim_dates row. Rows are created once per calendar date
// and never mutated afterwards.
type DateRow struct {
	FullDate   time.Time
	Year       int
	Quarter    int
	Month      int
	MonthName  string
	Week       int // ISO week
	DayOfMonth int
	DayOfWeek  int // Monday=0 .. Sunday=6
	DayName    string
	IsWeekend  bool
}

// CustomerRow is one dim_customers row. Aggregates reflect the current
// batch only; the upsert overwrites them on conflict.
type CustomerRow struct {
	CustomerID        int64
	Country           string
	FirstPurchaseDate time.Time
	LastPurchaseDate  time.Time
	TotalOrders       int64
	LifetimeValue     decimal.Decimal
}

// ProductRow is one dim_products row, keyed by stock code.
type ProductRow struct {
	StockCode   string
	Description string // latest observed in the batch
	UnitPrice   decimal.Decimal // mean over the batch
}

// FactRow is one fact_transactions row with all three surrogate keys
// resolved. Facts are append-only.
type FactRow struct {
	InvoiceNo   string
	CustomerID  int64
	ProductID   int64
	DateID      int64
	InvoiceDate time.Time
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// DropCounts breaks down rows removed during cleaning, in rule order.
type DropCounts struct {
	Duplicates         int
	MissingCustomer    int
	MissingDescription int
	BadTimestamp       int
	Cancelled          int
	NonPositive        int
	Outlier            int
}

// Total is the number of rows the cleaning pass removed.
func (d DropCounts) Total() int {
	return d.Duplicates + d.MissingCustomer + d.MissingDescription +
		d.BadTimestamp + d.Cancelled + d.NonPositive + d.Outlier
}

// RunStats accumulates counters for a single pipeline run. It lives for
// the duration of the run and is reported once at the end.
type RunStats struct {
	RowsExtracted      int
	RowsAfterCleaning  int
	DatesLoaded        int
	CustomersLoaded    int
	ProductsLoaded     int
	TransactionsLoaded int64
	FactsSkipped       int // clean rows whose dimension lookup failed
	Drops              DropCounts
	Errors             map[string]string // stage name -> error message
	Duration           time.Duration
}

// NewRunStats returns an empty RunStats with a non-nil error map.
func NewRunStats() *RunStats {
	return &RunStats{Errors: map[string]string{}}
}

// Retention reports the fraction of extracted rows that survived
// cleaning, in percent. Zero extracted rows yields zero.
func (s *RunStats) Retention() float64 {
	if s.RowsExtracted == 0 {
		return 0
	}
	return float64(s.RowsAfterCleaning) / float64(s.RowsExtracted) * 100
}

// RecordError notes a stage failure. Later stages do not run, so at
// most one entry per stage is ever recorded.
func (s *RunStats) RecordError(stage string, err error) {
	if err == nil {
		return
	}
	s.Errors[stage] = err.Error()
}

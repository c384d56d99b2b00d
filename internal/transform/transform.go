// Package transform turns raw source rows into clean, fully typed
// records by applying the cleaning rules in a fixed order: duplicate
// removal, missing-value filters, type coercion, business filters
// (cancelled invoices, non-positive amounts, outlier quantities), then
// derived-field computation and text normalization.
//
// Rows are dropped, never repaired. Each rule accounts for its drops so
// the run report can explain where data went.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/xxh3"

	"warehouse/internal/model"
)

// CancelPrefix marks a cancelled invoice. The match is a case-sensitive
// prefix test on the invoice number.
const CancelPrefix = "C"

// Timestamp layouts tried in order when coercing the invoice date.
var defaultLayouts = []string{
	"1/2/2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// Cleaner applies the cleaning rules. The zero value is not usable;
// construct with New.
type Cleaner struct {
	quantityCeiling int64
	layouts         []string
}

// New returns a Cleaner with the given outlier ceiling. A ceiling <= 0
// falls back to 10000.
func New(quantityCeiling int64) *Cleaner {
	if quantityCeiling <= 0 {
		quantityCeiling = 10000
	}
	return &Cleaner{quantityCeiling: quantityCeiling, layouts: defaultLayouts}
}

// Apply runs the full cleaning pass. The returned slice is always a
// subset of the input; drops records the per-rule deltas. An error is
// returned only for systemic failure: rows survived the missing-value
// filters but not one of them carries a parseable timestamp.
func (c *Cleaner) Apply(in []model.RawRecord) ([]model.CleanRecord, model.DropCounts, error) {
	var drops model.DropCounts

	// 1. Exact-duplicate removal, keyed by the full row.
	deduped := make([]model.RawRecord, 0, len(in))
	seen := make(map[xxh3.Uint128]struct{}, len(in))
	for _, r := range in {
		h := rowHash(r)
		if _, dup := seen[h]; dup {
			drops.Duplicates++
			continue
		}
		seen[h] = struct{}{}
		deduped = append(deduped, r)
	}

	out := make([]model.CleanRecord, 0, len(deduped))
	coerceCandidates := 0
	for _, r := range deduped {
		// 2. Sales without a customer cannot be attributed.
		if strings.TrimSpace(r.CustomerID) == "" {
			drops.MissingCustomer++
			continue
		}
		// 3. A product line without a description is unusable.
		if strings.TrimSpace(r.Description) == "" {
			drops.MissingDescription++
			continue
		}

		// 4. Type coercion: timestamp, customer id. Quantity and price
		// were already coerced to nil-on-failure by the extractor.
		coerceCandidates++
		customerID, ok := parseCustomerID(r.CustomerID)
		if !ok {
			drops.MissingCustomer++
			continue
		}
		ts, ok := c.parseTimestamp(r.InvoiceDate)
		if !ok {
			drops.BadTimestamp++
			continue
		}

		// 5. Cancelled orders are excluded from fact data.
		if strings.HasPrefix(r.InvoiceNo, CancelPrefix) {
			drops.Cancelled++
			continue
		}
		// 6. Returns, giveaways, and unparseable amounts.
		if r.Quantity == nil || r.UnitPrice == nil || *r.Quantity <= 0 || !r.UnitPrice.IsPositive() {
			drops.NonPositive++
			continue
		}
		// 7. Outlier ceiling: quantities above it are data-entry errors.
		if *r.Quantity > c.quantityCeiling {
			drops.Outlier++
			continue
		}

		// 8-9. Derived fields and text normalization.
		out = append(out, build(r, customerID, ts))
	}

	if coerceCandidates > 0 && coerceCandidates == drops.BadTimestamp {
		return nil, drops, fmt.Errorf("transform: no row carries a parseable timestamp (checked %d)", coerceCandidates)
	}
	return out, drops, nil
}

func build(r model.RawRecord, customerID int64, ts time.Time) model.CleanRecord {
	qty := *r.Quantity
	price := *r.UnitPrice
	return model.CleanRecord{
		InvoiceNo:   r.InvoiceNo,
		StockCode:   r.StockCode,
		Description: strings.ToUpper(strings.TrimSpace(r.Description)),
		Quantity:    qty,
		InvoiceDate: ts,
		UnitPrice:   price,
		CustomerID:  customerID,
		Country:     strings.TrimSpace(r.Country),
		Total:       price.Mul(decimal.NewFromInt(qty)),
		Year:        ts.Year(),
		Month:       int(ts.Month()),
		Day:         ts.Day(),
		DayOfWeek:   model.MondayIndex(ts.Weekday()),
		Hour:        ts.Hour(),
	}
}

func (c *Cleaner) parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range c.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseCustomerID accepts plain integers and integral floats
// ("17850.0"), which some exports emit for the customer column.
func parseCustomerID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return int64(f), true
	}
	return 0, false
}

// rowHash fingerprints a full raw row for duplicate detection. Fields
// join on an unlikely separator; nil numerics hash as NUL so that an
// absent value never collides with a literal one.
func rowHash(r model.RawRecord) xxh3.Uint128 {
	var b strings.Builder
	for i, f := range []string{
		r.InvoiceNo, r.StockCode, r.Description, formatInt(r.Quantity),
		r.InvoiceDate, formatDecimal(r.UnitPrice), r.CustomerID, r.Country,
	} {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(f)
	}
	return xxh3.HashString128(b.String())
}

func formatInt(n *int64) string {
	if n == nil {
		return "\x00"
	}
	return strconv.FormatInt(*n, 10)
}

func formatDecimal(d *decimal.Decimal) string {
	if d == nil {
		return "\x00"
	}
	return d.String()
}

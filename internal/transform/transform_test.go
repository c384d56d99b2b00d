package transform

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"warehouse/internal/model"
)

func ptrInt(n int64) *int64 { return &n }

func ptrDec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func mkraw(invoice, customer string, qty int64, price string) model.RawRecord {
	return model.RawRecord{
		InvoiceNo:   invoice,
		StockCode:   "85123A",
		Description: " White Hanging Heart ",
		Quantity:    ptrInt(qty),
		InvoiceDate: "12/1/2010 8:26",
		UnitPrice:   ptrDec(price),
		CustomerID:  customer,
		Country:     " United Kingdom ",
	}
}

func TestApplyDropsInRuleOrder(t *testing.T) {
	missingDesc := mkraw("536370", "104", 1, "1.00")
	missingDesc.Description = "   "
	badDate := mkraw("536371", "105", 1, "1.00")
	badDate.InvoiceDate = "not a date"
	nilQty := mkraw("536372", "106", 1, "1.00")
	nilQty.Quantity = nil

	in := []model.RawRecord{
		mkraw("536365", "101", 3, "2.50"),  // kept
		mkraw("536365", "101", 3, "2.50"),  // exact duplicate
		mkraw("536366", "", 2, "1.00"),     // missing customer
		missingDesc,                        // missing description
		badDate,                            // unparseable timestamp
		mkraw("C536367", "102", 1, "1.00"), // cancelled
		mkraw("536368", "103", -4, "1.00"), // negative quantity
		mkraw("536369", "103", 1, "0"),     // zero price
		nilQty,                             // coercion failed upstream
		mkraw("536373", "107", 50000, "1.00"), // outlier
	}

	out, drops, err := New(10000).Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("want 1 clean record, got %d", len(out))
	}

	want := model.DropCounts{
		Duplicates:         1,
		MissingCustomer:    1,
		MissingDescription: 1,
		BadTimestamp:       1,
		Cancelled:          1,
		NonPositive:        3,
		Outlier:            1,
	}
	if drops != want {
		t.Fatalf("drops = %+v, want %+v", drops, want)
	}
	if got := len(in) - drops.Total(); got != len(out) {
		t.Fatalf("accounting mismatch: in=%d drops=%d out=%d", len(in), drops.Total(), len(out))
	}
}

func TestCleanRecordInvariants(t *testing.T) {
	in := []model.RawRecord{
		mkraw("536365", "101", 3, "2.50"),
		mkraw("C536367", "102", 1, "1.00"),
		mkraw("536368", "", 2, "1.00"),
		mkraw("536369", "103", -1, "1.00"),
		mkraw("536370", "104", 12000, "1.00"),
		mkraw("536371", "105", 5, "0.42"),
	}
	out, _, err := New(10000).Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected survivors")
	}
	for _, r := range out {
		if r.Quantity <= 0 {
			t.Errorf("%s: quantity %d not positive", r.InvoiceNo, r.Quantity)
		}
		if !r.UnitPrice.IsPositive() {
			t.Errorf("%s: price %s not positive", r.InvoiceNo, r.UnitPrice)
		}
		if strings.HasPrefix(r.InvoiceNo, CancelPrefix) {
			t.Errorf("cancelled invoice %s survived", r.InvoiceNo)
		}
		if r.CustomerID == 0 {
			t.Errorf("%s: missing customer id", r.InvoiceNo)
		}
	}
}

func TestDerivedFields(t *testing.T) {
	out, _, err := New(10000).Apply([]model.RawRecord{mkraw("536365", "101", 3, "2.50")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("want 1 record, got %d", len(out))
	}
	r := out[0]
	if !r.Total.Equal(decimal.RequireFromString("7.50")) {
		t.Errorf("total = %s, want 7.50", r.Total)
	}
	if r.Description != "WHITE HANGING HEART" {
		t.Errorf("description = %q", r.Description)
	}
	if r.Country != "United Kingdom" {
		t.Errorf("country = %q", r.Country)
	}
	// 2010-12-01 was a Wednesday.
	if r.Year != 2010 || r.Month != 12 || r.Day != 1 || r.Hour != 8 {
		t.Errorf("calendar parts = %d-%d-%d %d", r.Year, r.Month, r.Day, r.Hour)
	}
	if r.DayOfWeek != 2 {
		t.Errorf("day of week = %d, want 2 (Wednesday, Monday=0)", r.DayOfWeek)
	}
	if r.CustomerID != 101 {
		t.Errorf("customer id = %d", r.CustomerID)
	}
}

func TestCancelPrefixIsCaseSensitive(t *testing.T) {
	out, drops, err := New(10000).Apply([]model.RawRecord{mkraw("c536367", "101", 1, "1.00")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if drops.Cancelled != 0 || len(out) != 1 {
		t.Fatalf("lowercase prefix must not match: out=%d cancelled=%d", len(out), drops.Cancelled)
	}
}

func TestOutlierCeilingInclusive(t *testing.T) {
	at := mkraw("536365", "101", 10000, "1.00")
	above := mkraw("536366", "101", 10001, "1.00")
	out, drops, err := New(10000).Apply([]model.RawRecord{at, above})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 || out[0].Quantity != 10000 {
		t.Fatalf("ceiling must be inclusive: out=%v", out)
	}
	if drops.Outlier != 1 {
		t.Fatalf("outlier drops = %d, want 1", drops.Outlier)
	}
}

func TestCustomerIDFloatForm(t *testing.T) {
	out, _, err := New(10000).Apply([]model.RawRecord{mkraw("536365", "17850.0", 1, "1.00")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 || out[0].CustomerID != 17850 {
		t.Fatalf("float-form customer id: %+v", out)
	}
}

func TestAllTimestampsUnparseable(t *testing.T) {
	a := mkraw("536365", "101", 1, "1.00")
	a.InvoiceDate = "garbage"
	b := mkraw("536366", "102", 1, "1.00")
	b.InvoiceDate = "also garbage"
	if _, _, err := New(10000).Apply([]model.RawRecord{a, b}); err == nil {
		t.Fatal("expected systemic transform error")
	}
}

func TestRetentionMonotonic(t *testing.T) {
	clean := []model.RawRecord{
		mkraw("536365", "101", 3, "2.50"),
		mkraw("536366", "102", 1, "4.00"),
	}
	out, drops, err := New(10000).Apply(clean)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != len(clean) || drops.Total() != 0 {
		t.Fatalf("violation-free input must be fully retained: out=%d drops=%d", len(out), drops.Total())
	}
}

func TestEmptyInput(t *testing.T) {
	out, drops, err := New(10000).Apply(nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 0 || drops.Total() != 0 {
		t.Fatalf("empty input: out=%d drops=%d", len(out), drops.Total())
	}
}

// Package validate runs the post-load consistency checks. It only
// reads; quality findings are reported, never fatal. The run fails here
// only when the warehouse itself is unreachable.
package validate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"warehouse/internal/warehouse"
)

// Reader is the slice of the warehouse contract validation needs.
type Reader interface {
	ReadSnapshot(ctx context.Context) (*warehouse.Snapshot, error)
}

// Results summarizes the post-load state of the warehouse.
type Results struct {
	TransactionCount int64
	CustomerCount    int64
	ProductCount     int64
	DateCount        int64
	NegativeAmounts  int64
	TotalRevenue     decimal.Decimal
	DateRange        string

	// Findings lists quality anomalies. Upstream filters guarantee no
	// negative amounts, so any entry here points at a logic defect.
	Findings []string
}

// Run recomputes the warehouse-side counts and quality checks.
func Run(ctx context.Context, r Reader) (*Results, error) {
	snap, err := r.ReadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	res := &Results{
		TransactionCount: snap.FactCount,
		CustomerCount:    snap.CustomerCount,
		ProductCount:     snap.ProductCount,
		DateCount:        snap.DateCount,
		NegativeAmounts:  snap.NegativeAmounts,
		TotalRevenue:     snap.TotalRevenue,
	}
	if snap.FirstInvoice != nil && snap.LastInvoice != nil {
		res.DateRange = fmt.Sprintf("%s to %s",
			snap.FirstInvoice.Format("2006-01-02"), snap.LastInvoice.Format("2006-01-02"))
	}
	if snap.NegativeAmounts > 0 {
		res.Findings = append(res.Findings,
			fmt.Sprintf("%d fact rows carry a negative amount; upstream filters should have excluded them", snap.NegativeAmounts))
	}
	return res, nil
}

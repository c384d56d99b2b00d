// Package extract reads the delimited source file into typed raw
// records. It streams the file through encoding/csv, checks that all
// required columns are present, and coerces numeric fields; a numeric
// value that does not parse becomes nil rather than an error. Rows the
// CSV reader cannot parse are skipped and counted (fail-soft), matching
// the rest of the pipeline's drop-don't-repair policy.
package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"warehouse/internal/model"
)

// Required source columns. Header matching is case-insensitive.
const (
	colInvoiceNo   = "invoiceno"
	colStockCode   = "stockcode"
	colDescription = "description"
	colQuantity    = "quantity"
	colInvoiceDate = "invoicedate"
	colUnitPrice   = "unitprice"
	colCustomerID  = "customerid"
	colCountry     = "country"
)

var requiredColumns = []string{
	colInvoiceNo, colStockCode, colDescription, colQuantity,
	colInvoiceDate, colUnitPrice, colCustomerID, colCountry,
}

const utf8BOM = "\xef\xbb\xbf"

// Options configures the extractor. Zero values fall back to comma
// delimited UTF-8.
type Options struct {
	// Delimiter is the field separator. Zero means ','.
	Delimiter rune

	// Encoding is the source character set: "utf-8" (default) or
	// "windows-1252" for legacy exports.
	Encoding string
}

// Result carries the extracted rows plus the count of source lines the
// CSV reader had to skip.
type Result struct {
	Records []model.RawRecord
	Skipped int
}

// ReadFile opens path and extracts all rows from it.
func ReadFile(path string, opt Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, opt)
}

// Read extracts all rows from r. It returns an error when the header
// cannot be read or a required column is missing; individual bad rows
// are skipped and counted instead.
func Read(r io.Reader, opt Options) (*Result, error) {
	switch strings.ToLower(opt.Encoding) {
	case "", "utf-8", "utf8":
		// already UTF-8
	case "windows-1252", "cp1252", "latin-1", "latin1":
		r = transform.NewReader(r, charmap.Windows1252.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported source encoding %q", opt.Encoding)
	}

	cr := csv.NewReader(r)
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Skipped++
			continue
		}
		if len(row) != len(header) {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, toRaw(row, idx))
	}
	return res, nil
}

// headerIndex maps each required column to its position, failing when
// any is absent (schema mismatch is fatal to the run).
func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("source schema mismatch: missing columns %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func toRaw(row []string, idx map[string]int) model.RawRecord {
	field := func(col string) string { return row[idx[col]] }
	return model.RawRecord{
		InvoiceNo:   strings.TrimSpace(field(colInvoiceNo)),
		StockCode:   strings.TrimSpace(field(colStockCode)),
		Description: field(colDescription),
		Quantity:    parseInt(field(colQuantity)),
		InvoiceDate: strings.TrimSpace(field(colInvoiceDate)),
		UnitPrice:   parsePrice(field(colUnitPrice)),
		CustomerID:  strings.TrimSpace(field(colCustomerID)),
		Country:     field(colCountry),
	}
}

// parseInt coerces a numeric string, treating anything unparseable as
// absent. Integral floats ("3.0") are accepted since some exports write
// quantities that way.
func parseInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		n := int64(f)
		return &n
	}
	return nil
}

func parsePrice(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

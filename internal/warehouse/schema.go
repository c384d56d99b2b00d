package warehouse

import (
	"context"
	"fmt"
)

// Star schema DDL. Fact rows deliberately carry no uniqueness
// constraint on invoice_no: duplicate prevention across re-runs is a
// policy decision left to the warehouse owner (add a UNIQUE index here
// to make re-runs idempotent at the fact level).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dim_dates (
		date_key     SERIAL PRIMARY KEY,
		full_date    DATE NOT NULL UNIQUE,
		year         INT NOT NULL,
		quarter      INT NOT NULL,
		month        INT NOT NULL,
		month_name   TEXT NOT NULL,
		week         INT NOT NULL,
		day_of_month INT NOT NULL,
		day_of_week  INT NOT NULL,
		day_name     TEXT NOT NULL,
		is_weekend   BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dim_customers (
		customer_id         BIGINT PRIMARY KEY,
		country             TEXT,
		first_purchase_date TIMESTAMP,
		last_purchase_date  TIMESTAMP,
		total_orders        INT,
		lifetime_value      NUMERIC(14,2),
		updated_at          TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS dim_products (
		product_id  SERIAL PRIMARY KEY,
		stock_code  TEXT NOT NULL UNIQUE,
		description TEXT,
		unit_price  NUMERIC(12,4)
	)`,
	`CREATE TABLE IF NOT EXISTS fact_transactions (
		transaction_id BIGSERIAL PRIMARY KEY,
		invoice_no     TEXT NOT NULL,
		customer_id    BIGINT NOT NULL REFERENCES dim_customers(customer_id),
		product_id     INT NOT NULL REFERENCES dim_products(product_id),
		date_id        INT NOT NULL REFERENCES dim_dates(date_key),
		invoice_date   TIMESTAMP NOT NULL,
		quantity       INT NOT NULL,
		unit_price     NUMERIC(12,4) NOT NULL,
		total_amount   NUMERIC(14,2) GENERATED ALWAYS AS (quantity * unit_price) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_customer ON fact_transactions (customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_product ON fact_transactions (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_date ON fact_transactions (date_id)`,
	`CREATE MATERIALIZED VIEW IF NOT EXISTS mv_monthly_metrics AS
		SELECT d.year,
		       d.month,
		       COUNT(DISTINCT f.invoice_no)  AS orders,
		       COUNT(DISTINCT f.customer_id) AS customers,
		       SUM(f.quantity)               AS units_sold,
		       SUM(f.total_amount)           AS revenue
		FROM fact_transactions f
		JOIN dim_dates d ON d.date_key = f.date_id
		GROUP BY d.year, d.month`,
}

// EnsureSchema applies the warehouse DDL. Statements are idempotent so
// the call is safe against an already-initialized database.
func (s *PG) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

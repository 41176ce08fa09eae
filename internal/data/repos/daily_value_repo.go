package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
)

// Schema creates the daily values table
const Schema = `
	CREATE SCHEMA IF NOT EXISTS data;
	CREATE TABLE IF NOT EXISTS data.daily_values (
		value_date DATE PRIMARY KEY,
		value      DOUBLE PRECISION NOT NULL CHECK (value >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

// DailyValueRepository implements contracts.DailyValueRepository
// ⭐ SSOT: 일별 값 저장/조회는 여기서만
type DailyValueRepository struct {
	pool *pgxpool.Pool
}

var _ contracts.DailyValueRepository = (*DailyValueRepository)(nil)

// NewDailyValueRepository creates a new daily value repository
func NewDailyValueRepository(pool *pgxpool.Pool) *DailyValueRepository {
	return &DailyValueRepository{pool: pool}
}

// EnsureSchema creates the table if missing
func (r *DailyValueRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// UpsertBatch writes all records in one transaction; later duplicates win.
// A failing row rolls the whole batch back.
func (r *DailyValueRepository) UpsertBatch(ctx context.Context, records []contracts.DailyRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.daily_values (value_date, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (value_date) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
	`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(query, rec.Date.Time(), rec.Value)
		}

		results := tx.SendBatch(ctx, batch)
		for i := range records {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to upsert %s: %w", records[i].Date, err)
			}
		}
		return results.Close()
	})
}

// Delete removes one date; false when it was absent
func (r *DailyValueRepository) Delete(ctx context.Context, date datekey.Date) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM data.daily_values WHERE value_date = $1`, date.Time())
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", date, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Clear removes every stored value
func (r *DailyValueRepository) Clear(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM data.daily_values`); err != nil {
		return fmt.Errorf("failed to clear daily values: %w", err)
	}
	return nil
}

// LoadAll returns every stored value in ascending date order
func (r *DailyValueRepository) LoadAll(ctx context.Context) ([]contracts.DailyRecord, error) {
	query := `
		SELECT value_date, value
		FROM data.daily_values
		ORDER BY value_date
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily values: %w", err)
	}
	defer rows.Close()

	var records []contracts.DailyRecord
	for rows.Next() {
		var d time.Time
		var v float64
		if err := rows.Scan(&d, &v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, contracts.DailyRecord{Date: datekey.FromTime(d), Value: v})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// Count returns the number of stored values
func (r *DailyValueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM data.daily_values`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count daily values: %w", err)
	}
	return n, nil
}

// Span returns the first and last stored dates; ok is false when the table is empty
func (r *DailyValueRepository) Span(ctx context.Context) (first, last datekey.Date, ok bool, err error) {
	var minDate, maxDate *time.Time
	query := `SELECT MIN(value_date), MAX(value_date) FROM data.daily_values`
	if err := r.pool.QueryRow(ctx, query).Scan(&minDate, &maxDate); err != nil {
		return datekey.Date{}, datekey.Date{}, false, fmt.Errorf("failed to query span: %w", err)
	}
	if minDate == nil || maxDate == nil {
		return datekey.Date{}, datekey.Date{}, false, nil
	}
	return datekey.FromTime(*minDate), datekey.FromTime(*maxDate), true, nil
}

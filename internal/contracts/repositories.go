package contracts

import (
	"context"

	"github.com/wonny/rollup/internal/datekey"
)

// DailyValueRepository persists the series outside the process
type DailyValueRepository interface {
	UpsertBatch(ctx context.Context, records []DailyRecord) error
	Delete(ctx context.Context, date datekey.Date) (bool, error)
	Clear(ctx context.Context) error
	LoadAll(ctx context.Context) ([]DailyRecord, error)
}

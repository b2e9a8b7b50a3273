package dao

import (
	"context"

	"bracketflow/internal/model"
)

type ExecutionDao interface {
	Save(ctx context.Context, record *model.ExecutionRecord) error
	// 最近的执行记录，symbol 为空时不过滤
	List(ctx context.Context, symbol string, limit int) ([]model.ExecutionRecord, error)
	ListBySignal(ctx context.Context, signalID int64) ([]model.ExecutionRecord, error)
}

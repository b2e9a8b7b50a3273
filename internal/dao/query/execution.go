package query

import (
	"context"
	"fmt"

	"bracketflow/internal/dao"
	"bracketflow/internal/model"

	"gorm.io/gorm"
)

type executionDao struct {
	db *gorm.DB
}

func NewExecutionDao(db *gorm.DB) dao.ExecutionDao {
	return &executionDao{db: db}
}

func (d *executionDao) Save(ctx context.Context, record *model.ExecutionRecord) error {
	result := d.db.WithContext(ctx).Create(record)
	if result.Error != nil {
		return fmt.Errorf("failed to save execution %d for signal %d: %w", record.ID, record.SignalID, result.Error)
	}
	return nil
}

func (d *executionDao) List(ctx context.Context, symbol string, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []model.ExecutionRecord
	q := d.db.WithContext(ctx).Model(&model.ExecutionRecord{})
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if err := q.Order("started_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return records, nil
}

func (d *executionDao) ListBySignal(ctx context.Context, signalID int64) ([]model.ExecutionRecord, error) {
	var records []model.ExecutionRecord
	err := d.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("started_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for signal %d: %w", signalID, err)
	}
	return records, nil
}

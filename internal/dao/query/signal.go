package query

import (
	"context"
	"errors"
	"fmt"

	"bracketflow/internal/dao"
	"bracketflow/internal/model"

	"gorm.io/gorm"
)

type signalDao struct {
	db *gorm.DB
}

func NewSignalDao(db *gorm.DB) dao.SignalDao {
	return &signalDao{
		db: db,
	}
}

// Latest 最新的一条信号，轮询每个周期只看这一条
func (r *signalDao) Latest(ctx context.Context) (*model.Signal, error) {
	var signal model.Signal
	result := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(1).
		Find(&signal)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest signal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &signal, nil
}

func (r *signalDao) Save(ctx context.Context, signal *model.Signal) error {
	if result := r.db.WithContext(ctx).Create(signal); result.Error != nil {
		return fmt.Errorf("failed to create signal: %w", result.Error)
	}
	return nil
}

func (r *signalDao) GetByID(ctx context.Context, id int64) (*model.Signal, error) {
	var signal model.Signal
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&signal)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil // 记录未找到，返回 nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get signal %d: %w", id, result.Error)
	}
	return &signal, nil
}

func (r *signalDao) List(ctx context.Context, limit int) ([]model.Signal, error) {
	var signals []model.Signal
	if limit <= 0 {
		limit = 20
	}
	result := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&signals)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list signals: %w", result.Error)
	}
	return signals, nil
}

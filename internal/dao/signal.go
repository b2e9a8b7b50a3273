package dao

import (
	"context"

	"bracketflow/internal/model"
)

type SignalDao interface {
	// 最新一条信号（按 timestamp 倒序），没有数据时返回 nil, nil
	Latest(ctx context.Context) (*model.Signal, error)
	// 采集端写入信号
	Save(ctx context.Context, signal *model.Signal) error
	GetByID(ctx context.Context, id int64) (*model.Signal, error)
	// 最近的信号列表
	List(ctx context.Context, limit int) ([]model.Signal, error)
}

package report

import (
	"context"
	"errors"

	"bracketflow/internal/model"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisClient RedisSink 用到的命令，*redis.Client 满足
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink 最近 N 条报告放在 list 里，同时 publish 给实时订阅方
type RedisSink struct {
	client  RedisClient
	list    string
	channel string
	keep    int64
}

func NewRedisSink(client RedisClient, list, channel string, keep int64) *RedisSink {
	if keep <= 0 {
		keep = 500
	}
	return &RedisSink{client: client, list: list, channel: channel, keep: keep}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Report(ctx context.Context, rep *model.ExecutionReport) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	var errs []error
	if s.list != "" {
		if err := s.client.LPush(ctx, s.list, data).Err(); err != nil {
			errs = append(errs, err)
		} else if err := s.client.LTrim(ctx, s.list, 0, s.keep-1).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bracketflow/internal/dao"
	"bracketflow/internal/model"
	"bracketflow/pkg/kafka"
	"bracketflow/pkg/logger"

	"github.com/goccy/go-json"
)

// Envelope 采集端写入 kafka 的原始消息
type Envelope struct {
	Text string `json:"text"`
	// unix 秒
	Date int64 `json:"date"`
	// 来源频道，只用于日志
	Chat string `json:"chat,omitempty"`
}

// Consumer 消费原始频道消息，解析后写入 signal_messages
type Consumer struct {
	consumer kafka.ConsumerService
	signals  dao.SignalDao
	topic    string
	groupID  string
	now      func() time.Time
}

func NewConsumer(consumer kafka.ConsumerService, signals dao.SignalDao, topic, groupID string) *Consumer {
	return &Consumer{
		consumer: consumer,
		signals:  signals,
		topic:    topic,
		groupID:  groupID,
		now:      time.Now,
	}
}

// Run 阻塞到 ctx 结束，单条消息失败只记日志
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.consumer.Consume(ctx, c.topic, c.groupID)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topic, err)
	}
	logger.Infof("[Ingest] consuming topic=%s group=%s", c.topic, c.groupID)
	for msg := range ch {
		sig, err := c.Handle(ctx, msg.Value)
		if err != nil {
			if errors.Is(err, ErrNotSignal) {
				logger.Debugf("[Ingest] skip non-signal message offset=%d: %v", msg.Offset, err)
				continue
			}
			logger.Errorf("[Ingest] offset=%d: %v", msg.Offset, err)
			continue
		}
		logger.Info("[Ingest] signal stored",
			logger.Pair("signal_id", sig.ID),
			logger.Pair("pair", sig.Pair),
			logger.Pair("setup_type", sig.SetupType),
			logger.Pair("partition", msg.Partition),
			logger.Pair("offset", msg.Offset))
	}
	return nil
}

// Handle 解析一条消息并保存
func (c *Consumer) Handle(ctx context.Context, value []byte) (*model.Signal, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(env.Text) == "" {
		return nil, ErrNoPair
	}
	ts := c.now()
	if env.Date > 0 {
		ts = time.Unix(env.Date, 0)
	}
	sig, err := ParseMessage(env.Text, ts)
	if err != nil {
		return nil, err
	}
	if err := c.signals.Save(ctx, sig); err != nil {
		return nil, fmt.Errorf("save signal %s: %w", sig.Pair, err)
	}
	return sig, nil
}

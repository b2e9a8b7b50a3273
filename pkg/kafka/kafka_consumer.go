package kafka

import (
	"context"
	"time"

	"bracketflow/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerService 定义了消费 Kafka 消息的通用接口
type ConsumerService interface {
	// Consume 启动一个协程消费指定主题，将消息发送到返回的通道
	Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error)
	Close()
}

type kafkaConsumer struct {
	brokerURL string
}

func NewKafkaConsumer(brokerURL string) ConsumerService {
	return &kafkaConsumer{
		brokerURL: brokerURL,
	}
}

// Consume 信号消息不能丢，通道满时阻塞读取而不是丢弃
func (c *kafkaConsumer) Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{c.brokerURL},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second, // 自动提交
		MaxAttempts:    3,
	})
	outputCh := make(chan kafka.Message, 100)

	go func() {
		defer close(outputCh)
		defer func() {
			_ = r.Close()
			logger.Infof("Kafka Consumer for topic %s finished.", topic)
		}()
		for {
			m, err := r.ReadMessage(ctx) // 带 GroupID 时读取即按 CommitInterval 提交
			if err != nil {
				// Context 被取消（服务关闭），正常退出
				if ctx.Err() != nil {
					return
				}
				logger.Errorf("Kafka read error on topic %s: %v", topic, err)
				time.Sleep(time.Second)
				continue
			}

			select {
			case outputCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	return outputCh, nil
}

func (c *kafkaConsumer) Close() {
	logger.Info("Kafka Consumer Service closing...")
}

package kafka

import (
	"context"
	"errors"
	"sync"

	"bracketflow/pkg/logger"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
)

// Kafka 生产者服务
// 定义接口，方便测试和替换
type ProducerService interface {
	Produce(ctx context.Context, topic string, key []byte, msg proto.Message) error
	Close()
}

type kafkaProducer struct {
	brokerURL string
	mu        sync.Mutex
	// 每个 topic 一个 Writer
	writers map[string]*kafka.Writer
	closed  bool
}

func NewKafkaProducer(brokerURL string) ProducerService {
	return &kafkaProducer{
		brokerURL: brokerURL,
		writers:   make(map[string]*kafka.Writer),
	}
}

func (p *kafkaProducer) writer(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("kafka producer closed")
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokerURL),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // 相同 key 进入同一分区
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w, nil
}

// Produce 通用方法：序列化 Protobuf 消息并写入 Kafka
func (p *kafkaProducer) Produce(ctx context.Context, topic string, key []byte, msg proto.Message) error {
	if topic == "" {
		return errors.New("invalid kafka topic")
	}
	protoBytes, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	w, err := p.writer(topic)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: protoBytes,
	})
}

func (p *kafkaProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			logger.Errorf("Error closing kafka writer %s: %v", topic, err)
		}
	}
}

package report

import (
	"context"
	"strconv"

	"bracketflow/internal/model"
	"bracketflow/pkg/kafka"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/types/known/structpb"
)

// KafkaSink 报告以 protobuf Struct 写入 topic，key 为交易对
type KafkaSink struct {
	producer kafka.ProducerService
	topic    string
}

func NewKafkaSink(producer kafka.ProducerService, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Report(ctx context.Context, rep *model.ExecutionReport) error {
	msg, err := ToStruct(rep)
	if err != nil {
		return err
	}
	key := rep.Symbol
	if key == "" {
		key = strconv.FormatInt(rep.SignalID, 10)
	}
	return s.producer.Produce(ctx, s.topic, []byte(key), msg)
}

// ToStruct 报告转换为 structpb.Struct，字段名与 JSON 一致
func ToStruct(rep *model.ExecutionReport) (*structpb.Struct, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	// snowflake id 超出 float64 精度
	fields["execution_id"] = strconv.FormatInt(rep.ExecutionID, 10)
	return structpb.NewStruct(fields)
}

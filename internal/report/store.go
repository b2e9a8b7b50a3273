package report

import (
	"context"

	"bracketflow/internal/dao"
	"bracketflow/internal/model"
	"bracketflow/pkg/recorder"
)

// FileSink 追加写 JSON lines
type FileSink struct {
	rec *recorder.JSONFileRecorder
}

func NewFileSink(path string) *FileSink {
	return &FileSink{rec: recorder.NewJSONFileRecorder(path)}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Report(_ context.Context, rep *model.ExecutionReport) error {
	return s.rec.Record(rep)
}

// DaoSink 写入 execution_records
type DaoSink struct {
	dao dao.ExecutionDao
}

func NewDaoSink(d dao.ExecutionDao) *DaoSink {
	return &DaoSink{dao: d}
}

func (s *DaoSink) Name() string { return "db" }

func (s *DaoSink) Report(ctx context.Context, rep *model.ExecutionReport) error {
	record, err := model.NewExecutionRecord(rep)
	if err != nil {
		return err
	}
	return s.dao.Save(ctx, record)
}

package batch

import (
	"time"

	"go.uber.org/zap"
)

type runStat struct {
	StartTime  time.Time
	EndTime    time.Time
	Total      int
	Resumed    int
	CapSkipped int
	Processed  int
	Succeeded  int
}

func (s *runStat) LogFields() []zap.Field {
	return []zap.Field{
		zap.Duration("run_duration", s.EndTime.Sub(s.StartTime)),
		zap.Int("run.total", s.Total),
		zap.Int("run.resumed", s.Resumed),
		zap.Int("run.cap_skipped", s.CapSkipped),
		zap.Int("run.processed", s.Processed),
		zap.Int("run.succeeded", s.Succeeded),
	}
}

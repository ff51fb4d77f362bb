package database

import (
	"context"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// Sink persists each report's combined rows.
type Sink struct {
	db  *DB
	log logger.Logger
}

func NewSink(db *DB, log logger.Logger) *Sink {
	if log == nil {
		log = logger.Discard()
	}
	return &Sink{db: db, log: log.WithField("component", "sqlite_sink")}
}

func (s *Sink) Name() string { return "sqlite" }

func (s *Sink) Handle(ctx context.Context, report *airquality.Report) error {
	n, err := s.db.SaveReport(ctx, *report)
	if err != nil {
		return err
	}
	s.log.Infof("stored %d new readings from analysis %s", n, report.ID)
	return nil
}

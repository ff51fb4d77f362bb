package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// Analyzer runs one analysis plan.
type Analyzer interface {
	RunAnalysis(ctx context.Context, plan airquality.AnalysisPlan) (airquality.Report, error)
}

// Scheduler periodically runs the configured analysis plans.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Analyzer
	plans     []airquality.AnalysisPlan
	interval  time.Duration
	timeout   time.Duration
	log       logger.Logger
}

// New creates a new Scheduler.
func New(plans []airquality.AnalysisPlan, interval time.Duration, service Analyzer, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		plans:     plans,
		interval:  interval,
		timeout:   5 * time.Minute,
		log:       log.WithField("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.plans) == 0 {
		s.log.Info("no analysis plans configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 24 * 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().SingletonMode().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce runs every plan concurrently and waits for them to finish.
func (s *Scheduler) RunOnce() {
	s.log.Info("running analysis job")

	var wg sync.WaitGroup
	for _, plan := range s.plans {
		plan := plan
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			report, err := s.service.RunAnalysis(ctx, plan)
			switch {
			case errors.Is(err, airquality.ErrNoSensorData):
				s.log.Warnf("analysis %s produced no data (%d sensors failed)", plan.Key(), len(report.Failed()))
			case err != nil:
				s.log.Errorf("analysis failed for %s: %v", plan.Key(), err)
			default:
				s.log.WithField("report_id", report.ID).Infof("analysis stored for %s", plan.Key())
			}
		}()
	}
	wg.Wait()
	s.log.Info("completed analysis job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

package airquality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// ErrNoSensorData is returned when no sensor in a plan produced rows.
var ErrNoSensorData = errors.New("no sensor returned data")

// DefaultWorkers bounds concurrent upstream requests during an analysis.
const DefaultWorkers = 4

// Providers bundles the upstream clients a Service talks to.
type Providers struct {
	History HistoryFetcher
	Catalog CatalogSearcher
	Keys    KeyChecker
}

// Service orchestrates upstream fetches, aggregation, sinks and the report store.
type Service struct {
	store     Store
	providers Providers
	sinks     []ReportSink
	workers   int
	log       logger.Logger
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithSinks registers report sinks, run in order after each analysis.
func WithSinks(sinks ...ReportSink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithWorkers sets the fan-out width. Values below 1 mean sequential.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a new Service.
func NewService(store Store, providers Providers, opts ...Option) *Service {
	s := &Service{
		store:     store,
		providers: providers,
		workers:   DefaultWorkers,
		log:       logger.Discard(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	s.log = s.log.WithField("component", "airquality_service")
	return s
}

// History fetches one sensor's history.
func (s *Service) History(ctx context.Context, req HistoryRequest) (HistoryResult, error) {
	if s.providers.History == nil {
		return HistoryResult{}, errors.New("no history provider configured")
	}
	return s.providers.History.History(ctx, req)
}

// SearchCatalog runs a catalog search.
func (s *Service) SearchCatalog(ctx context.Context, q CatalogQuery) (CatalogResult, error) {
	if s.providers.Catalog == nil {
		return CatalogResult{}, errors.New("no catalog provider configured")
	}
	return s.providers.Catalog.Search(ctx, q)
}

// CheckKey validates an API key against the sensor API.
func (s *Service) CheckKey(ctx context.Context, key string) (KeyCheckResult, error) {
	if s.providers.Keys == nil {
		return KeyCheckResult{}, errors.New("no key checker configured")
	}
	res, err := s.providers.Keys.CheckKey(ctx, key)
	if err != nil {
		return res, err
	}
	if res.OK {
		s.log.Infof("api key accepted (type %q)", res.KeyType)
	} else {
		s.log.Warnf("api key rejected: status %d: %s", res.StatusCode, res.Message)
	}
	return res, nil
}

// SensorFetch is one sensor's contribution to an analysis.
type SensorFetch struct {
	SensorID int
	Result   HistoryResult
	Table    Table
	Err      error
}

// Outcome summarizes the fetch for reporting.
func (f SensorFetch) Outcome() SensorOutcome {
	out := SensorOutcome{SensorID: f.SensorID, Outcome: f.Result.Outcome, Rows: f.Table.Len()}
	if f.Err != nil {
		out.OK = false
		out.Error = f.Err.Error()
	}
	return out
}

// FetchSensors fetches every sensor in the plan through a bounded worker
// pool. One sensor failing never stops the others; results keep plan order.
func (s *Service) FetchSensors(ctx context.Context, plan AnalysisPlan) []SensorFetch {
	results := make([]SensorFetch, len(plan.SensorIDs))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, id := range plan.SensorIDs {
		i, id := i, id
		g.Go(func() error {
			results[i] = s.fetchSensor(ctx, plan, id)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) fetchSensor(ctx context.Context, plan AnalysisPlan, sensorID int) SensorFetch {
	out := SensorFetch{SensorID: sensorID}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	res, err := s.History(ctx, HistoryRequest{
		SensorID: sensorID,
		Fields:   plan.Fields,
		Start:    plan.Start,
		End:      plan.End,
	})
	out.Result = res
	out.Result.SensorID = sensorID
	if err != nil {
		s.log.Warnf("sensor %d fetch failed: %v", sensorID, err)
		out.Err = err
		return out
	}
	if !res.OK {
		s.log.Warnf("sensor %d returned status %d: %s", sensorID, res.StatusCode, res.Message)
		return out
	}

	table, err := res.Table()
	if err != nil {
		s.log.Warnf("sensor %d payload unusable: %v", sensorID, err)
		out.Err = err
		return out
	}
	out.Table = table.WithSensorID(sensorID)
	s.log.Debugf("sensor %d returned %d rows", sensorID, table.Len())
	return out
}

// RunAnalysis fetches every sensor in the plan, tags and unions their rows,
// averages them per timestamp, runs the sinks and stores the report.
// Sensors that fail are listed in the report; if none succeed the report
// is returned with ErrNoSensorData and not stored.
func (s *Service) RunAnalysis(ctx context.Context, plan AnalysisPlan) (Report, error) {
	if len(plan.SensorIDs) == 0 {
		return Report{}, errors.New("analysis plan has no sensors")
	}
	if _, err := ParseDateRange(plan.Start, plan.End); err != nil {
		return Report{}, err
	}
	if plan.Fields == "" {
		plan.Fields = DefaultHistoryFields
	}

	s.log.Infof("running analysis for %d sensors (%s to %s)", len(plan.SensorIDs), plan.Start, plan.End)

	report := Report{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Plan:      plan,
	}

	fetches := s.FetchSensors(ctx, plan)
	tables := make([]Table, 0, len(fetches))
	for _, f := range fetches {
		report.Sensors = append(report.Sensors, f.Outcome())
		if f.Err == nil && f.Result.OK {
			tables = append(tables, f.Table)
		}
	}

	if len(tables) == 0 {
		s.log.Errorf("no successful sensor readings for plan %s", plan.Key())
		return report, ErrNoSensorData
	}

	report.Combined = Concat(tables...)
	report.Average = MeanByTimestamp(report.Combined)
	report.Summary = Summarize(report.Average)

	for _, sink := range s.sinks {
		if err := sink.Handle(ctx, &report); err != nil {
			// Sinks are best effort; the report itself is still valid.
			s.log.Errorf("sink %s failed: %v", sink.Name(), err)
		}
	}

	if s.store != nil {
		s.store.SaveReport(plan.Key(), report)
	}

	s.log.Infof("analysis %s: %d/%d sensors, %d averaged rows",
		report.ID, len(tables), len(plan.SensorIDs), report.Average.Len())
	return report, nil
}

// GetLatest returns the newest stored report for a plan.
func (s *Service) GetLatest(plan AnalysisPlan) (Report, error) {
	if s.store == nil {
		return Report{}, fmt.Errorf("no report store configured")
	}
	return s.store.GetLatest(plan.Key())
}

// GetRange returns stored reports for a plan created within [from, to].
func (s *Service) GetRange(plan AnalysisPlan, from, to time.Time) ([]Report, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no report store configured")
	}
	return s.store.GetRange(plan.Key(), from, to)
}

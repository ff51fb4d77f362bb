package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
)

type recordingAnalyzer struct {
	mu    sync.Mutex
	plans []airquality.AnalysisPlan
	err   error
}

func (r *recordingAnalyzer) RunAnalysis(_ context.Context, plan airquality.AnalysisPlan) (airquality.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, plan)
	return airquality.Report{ID: "r"}, r.err
}

func (r *recordingAnalyzer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

func TestRunOnceRunsEveryPlan(t *testing.T) {
	a := &recordingAnalyzer{err: airquality.ErrNoSensorData}
	plans := []airquality.AnalysisPlan{
		{SensorIDs: []int{1}, Start: "2022/06/01", End: "2022/06/02"},
		{SensorIDs: []int{2}, Start: "2022/06/01", End: "2022/06/02"},
	}

	New(plans, time.Hour, a, nil).RunOnce()
	assert.Equal(t, 2, a.count())
}

func TestStartRunsImmediately(t *testing.T) {
	a := &recordingAnalyzer{}
	s := New([]airquality.AnalysisPlan{{SensorIDs: []int{1}}}, time.Hour, a, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return a.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartWithoutPlans(t *testing.T) {
	s := New(nil, time.Hour, &recordingAnalyzer{}, nil)
	assert.NoError(t, s.Start())
	s.Stop()
}

package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/transcription-orchestrator/internal/transport"
)

type fakeChecker struct {
	mu      sync.Mutex
	results []*transport.HealthStatus
	err     error
	calls   atomic.Int64
	delay   time.Duration
}

func (f *fakeChecker) Health(ctx context.Context) (*transport.HealthStatus, error) {
	n := int(f.calls.Add(1)) - 1
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if n >= len(f.results) {
		n = len(f.results) - 1
	}
	return f.results[n], nil
}

type fakeScheduler struct {
	spec string
	cmd  func()
}

func (f *fakeScheduler) AddFunc(spec string, cmd func()) (cron.EntryID, error) {
	f.spec = spec
	f.cmd = cmd
	return 1, nil
}

func TestNewMonitor_ValidatesExpression(t *testing.T) {
	_, err := NewMonitor(&fakeChecker{}, "nonsense", time.Second)
	require.Error(t, err)

	m, err := NewMonitor(&fakeChecker{}, "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, DefaultCronExpr, m.cronExpr)

	last := m.Last()
	assert.False(t, last.Ready())
	assert.Equal(t, ErrNotChecked.Error(), last.Error)
	require.NotNil(t, last.Schedule)
	assert.Equal(t, DefaultCronExpr, last.Schedule.Expression)
}

func TestMonitor_CheckCachesReport(t *testing.T) {
	checker := &fakeChecker{results: []*transport.HealthStatus{{Status: "healthy", ModelLoaded: true}}}
	m, err := NewMonitor(checker, "@every 1m", time.Second)
	require.NoError(t, err)

	report := m.Check(context.Background())
	assert.True(t, report.Ready())
	assert.Equal(t, "healthy", report.Status)
	assert.False(t, report.CheckedAt.IsZero())

	assert.Equal(t, report.CheckedAt, m.Last().CheckedAt)
	assert.EqualValues(t, 1, checker.calls.Load())
}

func TestMonitor_CheckRecordsFailure(t *testing.T) {
	checker := &fakeChecker{err: errors.New("connection refused")}
	m, err := NewMonitor(checker, "", time.Second)
	require.NoError(t, err)

	report := m.Check(context.Background())
	assert.False(t, report.Ready())
	assert.Equal(t, "unreachable", report.Status)
	assert.Contains(t, report.Error, "connection refused")
}

func TestMonitor_ConcurrentChecksShareProbe(t *testing.T) {
	checker := &fakeChecker{
		results: []*transport.HealthStatus{{Status: "healthy", ModelLoaded: true}},
		delay:   50 * time.Millisecond,
	}
	m, err := NewMonitor(checker, "", time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Check(context.Background())
		}()
	}
	wg.Wait()
	assert.Less(t, checker.calls.Load(), int64(5))
}

func TestMonitor_WaitReady(t *testing.T) {
	checker := &fakeChecker{results: []*transport.HealthStatus{
		{Status: "loading", ModelLoaded: false},
		{Status: "loading", ModelLoaded: false},
		{Status: "healthy", ModelLoaded: true},
	}}
	m, err := NewMonitor(checker, "", time.Second)
	require.NoError(t, err)

	report, err := m.WaitReady(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, report.ModelLoaded)
	assert.EqualValues(t, 3, checker.calls.Load())
}

func TestMonitor_WaitReadyHonoursContext(t *testing.T) {
	checker := &fakeChecker{results: []*transport.HealthStatus{{Status: "loading"}}}
	m, err := NewMonitor(checker, "", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	report, err := m.WaitReady(ctx, 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, report.Ready())
}

func TestMonitor_ScheduleRegistersProbe(t *testing.T) {
	checker := &fakeChecker{results: []*transport.HealthStatus{{Status: "healthy", ModelLoaded: true}}}
	m, err := NewMonitor(checker, "*/5 * * * *", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sched := &fakeScheduler{}
	require.NoError(t, m.Schedule(ctx, sched))
	assert.Equal(t, "*/5 * * * *", sched.spec)

	sched.cmd()
	assert.EqualValues(t, 1, checker.calls.Load())
	assert.True(t, m.Last().Ready())

	cancel()
	sched.cmd()
	assert.EqualValues(t, 1, checker.calls.Load())
}

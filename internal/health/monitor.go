// Package health tracks whether the transcription service is reachable and
// has its model loaded.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/transcription-orchestrator/internal/transport"
	"github.com/MimeLyc/transcription-orchestrator/pkg/icron"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

const DefaultCronExpr = "@every 30s"

var ErrNotChecked = errors.New("health not checked yet")

type Checker interface {
	Health(ctx context.Context) (*transport.HealthStatus, error)
}

// Scheduler registers recurring work. *cron.Cron satisfies it.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
}

type Report struct {
	Status      string             `json:"status"`
	ModelLoaded bool               `json:"model_loaded"`
	CheckedAt   time.Time          `json:"checked_at"`
	Error       string             `json:"error,omitempty"`
	Schedule    *icron.TriggerInfo `json:"schedule,omitempty"`
}

// Ready reports whether uploads can be served.
func (r Report) Ready() bool {
	return r.Error == "" && r.ModelLoaded
}

type Monitor struct {
	checker  Checker
	cronExpr string
	timeout  time.Duration

	group singleflight.Group

	mu   sync.RWMutex
	last Report
}

// NewMonitor validates cronExpr and returns a monitor that has not probed
// yet. Each probe is bounded by timeout when it is positive.
func NewMonitor(checker Checker, cronExpr string, timeout time.Duration) (*Monitor, error) {
	if cronExpr == "" {
		cronExpr = DefaultCronExpr
	}
	if _, err := icron.Parse(cronExpr); err != nil {
		return nil, err
	}
	return &Monitor{
		checker:  checker,
		cronExpr: cronExpr,
		timeout:  timeout,
		last:     Report{Status: "unknown", Error: ErrNotChecked.Error()},
	}, nil
}

// Schedule registers the periodic probe. Probes stop running once ctx is done.
func (m *Monitor) Schedule(ctx context.Context, s Scheduler) error {
	_, err := s.AddFunc(m.cronExpr, func() {
		if ctx.Err() != nil {
			return
		}
		m.Check(ctx)
	})
	return err
}

// Check probes the service now. Concurrent callers share one request.
func (m *Monitor) Check(ctx context.Context) Report {
	v, _, _ := m.group.Do("health", func() (any, error) {
		probeCtx := ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			probeCtx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}

		report := Report{CheckedAt: time.Now()}
		status, err := m.checker.Health(probeCtx)
		if err != nil {
			report.Status = "unreachable"
			report.Error = err.Error()
			log.Warn("Health check failed: %v", err)
		} else {
			report.Status = status.Status
			report.ModelLoaded = status.ModelLoaded
			log.Debug("Health check: status=%s model_loaded=%t", status.Status, status.ModelLoaded)
		}

		m.mu.Lock()
		m.last = report
		m.mu.Unlock()
		return report, nil
	})
	return m.withSchedule(v.(Report))
}

// Last returns the cached report with the next scheduled probe filled in.
func (m *Monitor) Last() Report {
	m.mu.RLock()
	report := m.last
	m.mu.RUnlock()
	return m.withSchedule(report)
}

// WaitReady probes every interval until the model is loaded or ctx ends.
func (m *Monitor) WaitReady(ctx context.Context, interval time.Duration) (Report, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report := m.Check(ctx)
		if report.Ready() {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) withSchedule(r Report) Report {
	info, err := icron.GetTriggerInfo(m.cronExpr, time.Now())
	if err == nil {
		r.Schedule = info
	}
	return r
}

package poll

import (
	"context"
	"time"

	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

const DefaultInterval = time.Second

// Fetcher reads one job descriptor from the service.
type Fetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*transcript.Job, error)
}

// UpdateFunc receives every observation of a watched job, terminal or not.
type UpdateFunc func(job *transcript.Job)

// Scheduler polls one job id at a time until it reaches a terminal state.
type Scheduler struct {
	fetcher  Fetcher
	interval time.Duration
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func NewScheduler(fetcher Fetcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:  fetcher,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Watch fetches jobID immediately and then once per interval, passing each
// observation to onUpdate. Fetches never overlap.
//
// It returns the job once it is completed, a TranscriptionFailed error once
// it is in error, or the fetch error on the first failed fetch. Cancelling
// ctx stops the loop: no fetch is started and onUpdate is not called after
// ctx is done, and Watch returns ctx.Err().
func (s *Scheduler) Watch(ctx context.Context, jobID string, onUpdate UpdateFunc) (*transcript.Job, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		// select picks at random when both are ready.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		job, err := s.fetcher.FetchStatus(ctx, jobID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			log.Warn("Poll %d for job %s failed: %v", polls, jobID, err)
			return nil, err
		}
		log.Debug("Poll %d for job %s: %s", polls, jobID, job.Status)

		if onUpdate != nil {
			onUpdate(transcript.CloneJob(job))
		}

		switch job.Status {
		case transcript.StatusCompleted:
			return job, nil
		case transcript.StatusError:
			return job, transcript.NewTranscriptionFailed(job)
		}

		timer.Reset(s.interval)
	}
}

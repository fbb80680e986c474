package jobs

import (
	"context"
	"errors"

	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

// watch is the store's handle on one poll loop. gen identifies the loop so
// that callbacks from a cancelled or replaced loop are discarded.
type watch struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	job    *transcript.Job
	err    error
}

// Await blocks until the watch for jobID finishes and returns its outcome.
// Without an active watch it returns the stored job together with the error
// that ended its last watch, or ErrUnknownJob.
func (s *Store) Await(ctx context.Context, jobID string) (*transcript.Job, error) {
	s.mu.Lock()
	w, ok := s.watches[jobID]
	if !ok {
		defer s.mu.Unlock()
		i := s.indexLocked(jobID)
		if i < 0 {
			return nil, ErrUnknownJob
		}
		job := transcript.CloneJob(s.jobs[i])
		if err, failed := s.failed[jobID]; failed {
			return job, err
		}
		switch job.Status {
		case transcript.StatusError:
			return job, transcript.NewTranscriptionFailed(job)
		case transcript.StatusCompleted:
			return job, nil
		}
		return job, transcript.NewTransportError("await job", ErrWatchCancelled)
	}
	s.mu.Unlock()

	select {
	case <-w.done:
		return transcript.CloneJob(w.job), w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startWatchLocked begins polling jobID, replacing any loop already
// following it.
func (s *Store) startWatchLocked(jobID string) {
	s.dropWatchLocked(jobID, ErrWatchCancelled)
	delete(s.failed, jobID)

	s.nextGen++
	ctx, cancel := context.WithCancel(s.ctx)
	w := &watch{
		gen:    s.nextGen,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.watches[jobID] = w

	s.wg.Add(1)
	go s.runWatch(ctx, jobID, w.gen)
}

func (s *Store) runWatch(ctx context.Context, jobID string, gen uint64) {
	defer s.wg.Done()

	job, err := s.watcher.Watch(ctx, jobID, func(update *transcript.Job) {
		s.applyUpdate(jobID, gen, update)
	})
	s.finishWatch(jobID, gen, job, err)
}

// applyUpdate replaces the stored descriptor with an observation, provided
// the loop that produced it is still the live one and the job still exists.
func (s *Store) applyUpdate(jobID string, gen uint64, update *transcript.Job) {
	if update == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.watches[jobID]
	if !ok || w.gen != gen {
		return
	}
	job := transcript.CloneJob(update)
	job.ID = jobID
	if !s.replaceLocked(job) {
		log.Debug("Dropping update for removed job %s", jobID)
	}
}

func (s *Store) finishWatch(jobID string, gen uint64, job *transcript.Job, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.watches[jobID]
	if !ok || w.gen != gen {
		return
	}
	delete(s.watches, jobID)
	w.cancel()
	w.job = transcript.CloneJob(job)
	w.err = err
	close(w.done)

	switch {
	case err == nil:
		log.Info("Job %s completed", jobID)
	case errors.Is(err, context.Canceled):
	case transcript.IsErrorType(err, transcript.ErrTranscriptionFailed):
		log.Error("Job %s failed: %v", jobID, err)
		s.lastError = err.Error()
		s.commitLocked()
	default:
		log.Error("Watch for job %s ended: %v", jobID, err)
		s.failed[jobID] = err
		s.lastError = err.Error()
		s.commitLocked()
	}
}

// dropWatchLocked cancels the loop for jobID. Waiters receive err.
func (s *Store) dropWatchLocked(jobID string, err error) {
	delete(s.failed, jobID)
	w, ok := s.watches[jobID]
	if !ok {
		return
	}
	delete(s.watches, jobID)
	w.cancel()
	w.err = err
	close(w.done)
}

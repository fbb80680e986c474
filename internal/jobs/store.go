package jobs

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

// Store is the single in-memory source of truth for transcription jobs.
//
// All fields below mu are mutated only by the store's own commands. Every
// mutation produces a new State that is delivered, in commit order, to all
// subscribers by one dispatcher goroutine.
type Store struct {
	transport Transport
	watcher   Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	jobs      []*transcript.Job
	currentID string
	lastError string
	uploads   []*PendingUpload
	watches   map[string]*watch
	failed    map[string]error
	nextGen   uint64
	version   uint64
	closed    bool

	subs     map[uint64]*subscriber
	nextSub  uint64
	pending  []State
	wake     chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type subscriber struct {
	since  uint64
	fn     func(State)
	active atomic.Bool
}

func NewStore(transport Transport, watcher Watcher) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		transport: transport,
		watcher:   watcher,
		ctx:       ctx,
		cancel:    cancel,
		watches:   make(map[string]*watch),
		failed:    make(map[string]error),
		subs:      make(map[uint64]*subscriber),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive every state committed after the
// returned snapshot. fn runs on the dispatcher goroutine and may call store
// commands. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) (State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	sub := &subscriber{since: s.version, fn: fn}
	sub.active.Store(true)
	s.subs[id] = sub

	return s.snapshotLocked(), func() {
		sub.active.Store(false)
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetCurrentJob focuses jobID, or clears focus when jobID is empty.
func (s *Store) SetCurrentJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if jobID != "" && s.indexLocked(jobID) < 0 {
		return ErrUnknownJob
	}
	if s.currentID == jobID {
		return nil
	}
	s.currentID = jobID
	s.commitLocked()
	return nil
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.lastError == "" {
		return
	}
	s.lastError = ""
	s.commitLocked()
}

// DeleteJob removes jobID from the service and then from the store,
// cancelling its watch. On failure the store keeps the job and records the
// error.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStoreClosed
	}

	if err := s.transport.Remove(ctx, jobID); err != nil {
		log.Error("Failed to delete job %s: %v", jobID, err)
		s.setError(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if i := s.indexLocked(jobID); i >= 0 {
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	}
	if s.currentID == jobID {
		s.currentID = ""
	}
	s.dropWatchLocked(jobID, ErrWatchCancelled)
	s.commitLocked()
	log.Info("Deleted job %s", jobID)
	return nil
}

// Reset empties the store and cancels every watch and in-flight upload.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.resetLocked()
	s.commitLocked()
}

// Close cancels all work, waits for it to stop and delivers the last
// pending states to subscribers. Commands issued after Close return
// ErrStoreClosed or do nothing.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.closed = true
	s.resetLocked()
	s.commitLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.stopped
}

func (s *Store) resetLocked() {
	for id := range s.watches {
		s.dropWatchLocked(id, ErrWatchCancelled)
	}
	for _, p := range s.uploads {
		p.cancel()
	}
	s.uploads = nil
	s.failed = make(map[string]error)
	s.jobs = nil
	s.currentID = ""
	s.lastError = ""
}

func (s *Store) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.lastError = err.Error()
	s.commitLocked()
}

// replaceLocked swaps the entry for job.ID in place. It reports false when
// the job is no longer in the store.
func (s *Store) replaceLocked(job *transcript.Job) bool {
	i := s.indexLocked(job.ID)
	if i < 0 {
		return false
	}
	if reflect.DeepEqual(s.jobs[i], job) {
		return true
	}
	s.jobs[i] = job
	s.commitLocked()
	return true
}

func (s *Store) indexLocked(jobID string) int {
	for i, job := range s.jobs {
		if job.ID == jobID {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() State {
	st := State{
		Jobs:         make([]*transcript.Job, 0, len(s.jobs)),
		CurrentJobID: s.currentID,
		LastError:    s.lastError,
		Uploads:      make([]UploadState, 0, len(s.uploads)),
		Version:      s.version,
	}
	for _, job := range s.jobs {
		st.Jobs = append(st.Jobs, transcript.CloneJob(job))
	}
	for _, p := range s.uploads {
		st.Uploads = append(st.Uploads, UploadState{
			ID:       p.ID,
			Filename: p.Filename,
			Progress: p.progress,
		})
	}
	return st
}

func (s *Store) commitLocked() {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	s.pending = append(s.pending, s.snapshotLocked())
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) dispatch() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.deliver()
		case <-s.stop:
			s.deliver()
			return
		}
	}
}

func (s *Store) deliver() {
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		subs := make([]*subscriber, 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
		s.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, st := range batch {
			for _, sub := range subs {
				if st.Version <= sub.since || !sub.active.Load() {
					continue
				}
				sub.fn(st)
			}
		}
	}
}

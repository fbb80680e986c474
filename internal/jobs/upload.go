package jobs

import (
	"context"

	"github.com/google/uuid"

	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

// PendingUpload is the caller's handle on one submission. It exists before
// the request settles so the upload can be cancelled while in flight.
type PendingUpload struct {
	ID       string
	Filename string

	store    *Store
	cancel   context.CancelFunc
	done     chan struct{}
	job      *transcript.Job
	err      error
	progress int // guarded by store.mu
}

// Cancel aborts the upload. No job is registered for a cancelled upload,
// even if the service already accepted it.
func (p *PendingUpload) Cancel() {
	p.store.cancelUpload(p)
}

func (p *PendingUpload) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the upload settles. If ctx ends first the upload is
// cancelled.
func (p *PendingUpload) Wait(ctx context.Context) (*transcript.Job, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.Cancel()
		<-p.done
	}
	return transcript.CloneJob(p.job), p.err
}

func (p *PendingUpload) finish(job *transcript.Job, err error) {
	p.job = job
	p.err = err
	close(p.done)
}

// UploadFile submits upload and registers the resulting job. Cancelling
// ctx cancels the upload.
func (s *Store) UploadFile(ctx context.Context, upload transcript.Upload, language string) (*transcript.Job, error) {
	return s.BeginUpload(upload, language).Wait(ctx)
}

// BeginUpload starts submitting upload and returns immediately.
//
// On success the job is prepended to the store, focused, and watched until
// it is terminal. On failure the error is recorded as the last error,
// except for cancellations.
func (s *Store) BeginUpload(upload transcript.Upload, language string) *PendingUpload {
	p := &PendingUpload{
		ID:       uuid.NewString(),
		Filename: upload.Name,
		store:    s,
		cancel:   func() {},
		done:     make(chan struct{}),
	}

	lang, err := validateUpload(upload, language)
	if err != nil {
		s.setError(err)
		p.finish(nil, err)
		return p
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.finish(nil, ErrStoreClosed)
		return p
	}
	ctx, cancel := context.WithCancel(s.ctx)
	p.cancel = cancel
	s.lastError = ""
	s.uploads = append(s.uploads, p)
	s.commitLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	log.Info("Uploading %s as %s", upload.Name, p.ID)
	go s.runUpload(ctx, p, upload, lang)
	return p
}

// CancelUpload cancels the in-flight upload with the given id.
func (s *Store) CancelUpload(uploadID string) error {
	s.mu.Lock()
	var target *PendingUpload
	for _, p := range s.uploads {
		if p.ID == uploadID {
			target = p
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return ErrUnknownUpload
	}
	s.cancelUpload(target)
	return nil
}

func validateUpload(upload transcript.Upload, language string) (string, error) {
	if err := transcript.ValidateFilename(upload.Name); err != nil {
		return "", err
	}
	if upload.Body == nil {
		return "", transcript.NewValidationError("upload body is required")
	}
	return transcript.NormalizeLanguage(language)
}

func (s *Store) runUpload(ctx context.Context, p *PendingUpload, upload transcript.Upload, language string) {
	defer s.wg.Done()
	defer p.cancel()

	job, err := s.transport.Submit(ctx, upload, language, func(percent int) {
		s.setProgress(p, percent)
	})
	if err == nil && ctx.Err() != nil {
		job, err = nil, transcript.NewUploadCauseError(transcript.CauseCancelled, ctx.Err())
	}
	s.finishUpload(p, job, err)
}

func (s *Store) finishUpload(p *PendingUpload, job *transcript.Job, err error) {
	s.mu.Lock()

	if !s.removeUploadLocked(p) {
		// Cancelled or reset while in flight: the transient entry is gone
		// and no job may be registered.
		s.mu.Unlock()
		if err == nil || !transcript.IsCancelled(err) {
			err = transcript.NewUploadCauseError(transcript.CauseCancelled, context.Canceled)
		}
		log.Info("Upload %s cancelled", p.ID)
		p.finish(nil, err)
		return
	}

	if err != nil {
		if !transcript.IsCancelled(err) {
			s.lastError = err.Error()
			log.Error("Upload %s failed: %v", p.ID, err)
		}
		s.commitLocked()
		s.mu.Unlock()
		p.finish(nil, err)
		return
	}

	stored := transcript.CloneJob(job)
	if i := s.indexLocked(stored.ID); i >= 0 {
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	}
	s.jobs = append([]*transcript.Job{stored}, s.jobs...)
	s.currentID = stored.ID
	s.startWatchLocked(stored.ID)
	s.commitLocked()
	s.mu.Unlock()

	log.Info("Registered job %s for %s (%s)", stored.ID, p.Filename, stored.Status)
	p.finish(transcript.CloneJob(stored), nil)
}

func (s *Store) setProgress(p *PendingUpload, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if percent <= p.progress {
		return
	}
	for _, cur := range s.uploads {
		if cur == p {
			p.progress = percent
			s.commitLocked()
			return
		}
	}
}

// cancelUpload drops the transient entry at once and aborts the request.
func (s *Store) cancelUpload(p *PendingUpload) {
	s.mu.Lock()
	if s.removeUploadLocked(p) {
		s.commitLocked()
	}
	s.mu.Unlock()
	p.cancel()
}

func (s *Store) removeUploadLocked(p *PendingUpload) bool {
	for i, cur := range s.uploads {
		if cur == p {
			s.uploads = append(s.uploads[:i], s.uploads[i+1:]...)
			return true
		}
	}
	return false
}

package jobs

import (
	"context"
	"errors"

	"github.com/MimeLyc/transcription-orchestrator/internal/poll"
	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/internal/transport"
)

var (
	ErrUnknownJob     = errors.New("unknown job")
	ErrUnknownUpload  = errors.New("unknown upload")
	ErrWatchCancelled = errors.New("watch cancelled")
	ErrStoreClosed    = errors.New("store closed")
)

// Transport is the subset of the service client the store needs.
type Transport interface {
	Submit(ctx context.Context, upload transcript.Upload, language string, progress transport.ProgressFunc) (*transcript.Job, error)
	Remove(ctx context.Context, jobID string) error
}

// Watcher follows one job until it is terminal. See poll.Scheduler.
type Watcher interface {
	Watch(ctx context.Context, jobID string, onUpdate poll.UpdateFunc) (*transcript.Job, error)
}

// UploadState is an upload that has not settled yet.
type UploadState struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Progress int    `json:"progress"`
}

// State is an immutable snapshot of the store. Jobs are newest first and
// CurrentJobID, when set, always names an entry of Jobs.
type State struct {
	Jobs         []*transcript.Job `json:"jobs"`
	CurrentJobID string            `json:"current_job_id,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	Uploads      []UploadState     `json:"uploads"`
	Version      uint64            `json:"version"`
}

func (s State) Job(id string) (*transcript.Job, bool) {
	for _, job := range s.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

func (s State) CurrentJob() *transcript.Job {
	if s.CurrentJobID == "" {
		return nil
	}
	job, _ := s.Job(s.CurrentJobID)
	return job
}

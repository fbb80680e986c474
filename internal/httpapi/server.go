package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/transcription-orchestrator/internal/config"
	"github.com/MimeLyc/transcription-orchestrator/internal/health"
	"github.com/MimeLyc/transcription-orchestrator/internal/jobs"
	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
)

// maxUploadMemory is the part of a multipart upload kept in memory; the
// rest spills to temporary files.
const maxUploadMemory = 32 << 20

type jobStore interface {
	Snapshot() jobs.State
	Subscribe(fn func(jobs.State)) (jobs.State, func())
	BeginUpload(upload transcript.Upload, language string) *jobs.PendingUpload
	CancelUpload(uploadID string) error
	DeleteJob(ctx context.Context, jobID string) error
	SetCurrentJob(jobID string) error
	ClearError()
	Reset()
}

type healthReporter interface {
	Last() health.Report
	Check(ctx context.Context) health.Report
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type Server struct {
	store    jobStore
	health   healthReporter
	settings runtimeSettingsStore

	langMu          sync.RWMutex
	defaultLanguage string

	uiStaticDir string
	keepAlive   time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
	}
}

func WithHealth(h healthReporter) Option {
	return func(s *Server) {
		s.health = h
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

// WithDefaultLanguage sets the hint used for uploads that carry none.
func WithDefaultLanguage(lang string) Option {
	return func(s *Server) {
		s.defaultLanguage = lang
	}
}

// WithKeepAlive sets how often idle event streams send a comment line.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func NewServer(store jobStore, opts ...Option) *Server {
	s := &Server{
		store:     store,
		keepAlive: 15 * time.Second,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) DefaultLanguage() string {
	s.langMu.RLock()
	defer s.langMu.RUnlock()
	return s.defaultLanguage
}

func (s *Server) setDefaultLanguage(lang string) {
	s.langMu.Lock()
	s.defaultLanguage = lang
	s.langMu.Unlock()
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobRoutes)
	s.mux.HandleFunc("/api/current", s.handleCurrent)
	s.mux.HandleFunc("/api/error", s.handleError)
	s.mux.HandleFunc("/api/reset", s.handleReset)
	s.mux.HandleFunc("/api/uploads/", s.handleUploadRoutes)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}

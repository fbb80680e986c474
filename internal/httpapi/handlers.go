package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/transcription-orchestrator/internal/config"
	"github.com/MimeLyc/transcription-orchestrator/internal/jobs"
	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

type jobResponse struct {
	*transcript.Job
	DetectedLanguage string `json:"detected_language,omitempty"`
}

type stateResponse struct {
	Jobs         []jobResponse      `json:"jobs"`
	CurrentJobID string             `json:"current_job_id,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	Uploads      []jobs.UploadState `json:"uploads"`
	Version      uint64             `json:"version"`
}

func newJobResponse(job *transcript.Job) jobResponse {
	ret := jobResponse{Job: job}
	if job.Language == "" {
		ret.DetectedLanguage = transcript.EffectiveLanguage(job)
	}
	return ret
}

func newStateResponse(st jobs.State) stateResponse {
	ret := stateResponse{
		Jobs:         make([]jobResponse, 0, len(st.Jobs)),
		CurrentJobID: st.CurrentJobID,
		LastError:    st.LastError,
		Uploads:      st.Uploads,
		Version:      st.Version,
	}
	if ret.Uploads == nil {
		ret.Uploads = []jobs.UploadState{}
	}
	for _, job := range st.Jobs {
		ret.Jobs = append(ret.Jobs, newJobResponse(job))
	}
	return ret
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(s.store.Snapshot()))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newStateResponse(s.store.Snapshot()).Jobs)
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUpload accepts a multipart form with a "file" part and an optional
// "language" field. It responds once the service has accepted the file; a
// client disconnect cancels the upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	lang := strings.TrimSpace(r.FormValue("language"))
	if lang == "" {
		lang = s.DefaultLanguage()
	}

	pending := s.store.BeginUpload(transcript.Upload{
		Name: header.Filename,
		Size: header.Size,
		Body: file,
	}, lang)
	w.Header().Set("X-Upload-Id", pending.ID)

	job, err := pending.Wait(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newJobResponse(job))
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseIDRoute(r.URL.EscapedPath(), "/api/jobs/", "")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, found := s.store.Snapshot().Job(jobID)
		if !found {
			writeError(w, http.StatusNotFound, jobs.ErrUnknownJob.Error())
			return
		}
		writeJSON(w, http.StatusOK, newJobResponse(job))
	case http.MethodDelete:
		if err := s.store.DeleteJob(r.Context(), jobID); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type setCurrentRequest struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		var req setCurrentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := s.store.SetCurrentJob(req.JobID); err != nil {
			writeStoreError(w, err)
			return
		}
	case http.MethodDelete:
		_ = s.store.SetCurrentJob("")
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(s.store.Snapshot()))
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.store.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.store.Reset()
	log.Info("Store reset via API")
	writeJSON(w, http.StatusOK, newStateResponse(s.store.Snapshot()))
}

// handleUploadRoutes serves POST /api/uploads/{id}/cancel.
func (s *Server) handleUploadRoutes(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := parseIDRoute(r.URL.EscapedPath(), "/api/uploads/", "cancel")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.CancelUpload(uploadID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeError(w, http.StatusNotImplemented, "health monitor is not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report := s.health.Last()
	if r.URL.Query().Get("refresh") != "" {
		report = s.health.Check(r.Context())
	}
	code := http.StatusOK
	if !report.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

type settingsResponse struct {
	config.RuntimeSettings
	RestartRequired bool `json:"restart_required"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settingsResponse{RuntimeSettings: settings})
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// The default language applies at once; the rest on restart.
		s.setDefaultLanguage(saved.DefaultLanguage)
		writeJSON(w, http.StatusOK, settingsResponse{RuntimeSettings: saved, RestartRequired: true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// parseIDRoute extracts {id} from prefix+"{id}" or, when action is set,
// prefix+"{id}/"+action.
func parseIDRoute(p, prefix, action string) (string, bool) {
	trimmed := strings.Trim(strings.TrimPrefix(p, prefix), "/")
	if trimmed == "" {
		return "", false
	}
	parts := strings.Split(trimmed, "/")
	switch {
	case action == "" && len(parts) != 1:
		return "", false
	case action != "" && (len(parts) != 2 || parts[1] != action):
		return "", false
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrUnknownJob), errors.Is(err, jobs.ErrUnknownUpload):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrStoreClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case transcript.IsCancelled(err):
		writeError(w, http.StatusConflict, err.Error())
	case transcript.IsErrorType(err, transcript.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

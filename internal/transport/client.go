package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

const maxResponseBytes = 64 << 20

// Config holds the settings for a transcription service client.
//
// BaseURL is the service root, e.g. http://127.0.0.1:8000.
// Timeout bounds status, delete and health calls. Uploads are bounded only
// by their context since large files can take arbitrarily long.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the transcription service. It holds no per-job state and
// is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("service base url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid service base url %q", cfg.BaseURL)
	}

	uploadClient := cfg.HTTPClient
	if uploadClient == nil {
		uploadClient = &http.Client{}
	}
	httpClient := &http.Client{
		Transport:     uploadClient.Transport,
		CheckRedirect: uploadClient.CheckRedirect,
		Jar:           uploadClient.Jar,
		Timeout:       cfg.Timeout,
	}

	return &Client{
		baseURL:      base,
		httpClient:   httpClient,
		uploadClient: uploadClient,
	}, nil
}

// Submit streams upload to POST /transcribe as a single multipart body.
//
// progress is called with 0 before the first byte and then as bytes are
// written, reaching 100 once the whole body has been sent. When the size of
// the upload is unknown only 0 and 100 are reported. Cancelling ctx aborts
// the request and yields an UploadFailed error with cause "cancelled".
func (c *Client) Submit(ctx context.Context, upload transcript.Upload, language string, progress ProgressFunc) (*transcript.Job, error) {
	if upload.Body == nil {
		return nil, transcript.NewValidationError("upload body is required")
	}

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if _, err := mw.CreateFormFile("file", upload.Name); err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	prefix := append([]byte(nil), head.Bytes()...)
	head.Reset()
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	suffix := append([]byte(nil), head.Bytes()...)

	total := int64(-1)
	if upload.Size >= 0 {
		total = int64(len(prefix)) + upload.Size + int64(len(suffix))
	}
	tracker := newProgressTracker(total, progress)
	body := &progressReader{
		r:       io.MultiReader(bytes.NewReader(prefix), upload.Body, bytes.NewReader(suffix)),
		tracker: tracker,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if total >= 0 {
		req.ContentLength = total
	}

	log.Debug("Uploading %s (%d bytes) to %s", upload.Name, upload.Size, req.URL)
	tracker.report(0)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, uploadCauseError(ctx, err)
	}
	defer resp.Body.Close()
	tracker.report(100)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, uploadCauseError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transcript.NewUploadHTTPError(resp.StatusCode, errorBody(data))
	}

	job, err := decodeJob(data, "")
	if err != nil {
		return nil, err
	}
	if job.Filename == "" {
		job.Filename = upload.Name
	}
	return job, nil
}

// FetchStatus reads the current descriptor of jobID once.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*transcript.Job, error) {
	resp, data, err := c.do(ctx, http.MethodGet, jobPath(jobID))
	if err != nil {
		return nil, transcript.NewTransportError("fetch status", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, transcript.NewNotFoundError(jobID)
	case resp.StatusCode != http.StatusOK:
		return nil, statusError("fetch status", resp.StatusCode, data)
	}

	job, err := decodeJob(data, jobID)
	if err != nil {
		return nil, err
	}
	if job.ID != jobID {
		return nil, transcript.NewMalformedResponseError(
			fmt.Sprintf("job id %q does not match requested %q", job.ID, jobID), nil)
	}
	return job, nil
}

// Remove deletes jobID on the service. A job the service does not know is
// already gone and counts as success.
func (c *Client) Remove(ctx context.Context, jobID string) error {
	resp, data, err := c.do(ctx, http.MethodDelete, jobPath(jobID))
	if err != nil {
		return transcript.NewTransportError("delete job", err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted, http.StatusNotFound:
		return nil
	default:
		return statusError("delete job", resp.StatusCode, data)
	}
}

// Health reads GET /health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	resp, data, err := c.do(ctx, http.MethodGet, "/health")
	if err != nil {
		return nil, transcript.NewTransportError("health check", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("health check", resp.StatusCode, data)
	}
	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, transcript.NewMalformedResponseError("invalid health body", err)
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, data, nil
}

func jobPath(jobID string) string {
	return "/transcribe/" + url.PathEscape(jobID)
}

// decodeJob parses a descriptor body. Status bodies may omit job_id, in
// which case fallbackID is used.
func decodeJob(data []byte, fallbackID string) (*transcript.Job, error) {
	var job transcript.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, transcript.NewMalformedResponseError("invalid job descriptor", err)
	}
	if !job.Status.Valid() {
		return nil, transcript.NewMalformedResponseError(fmt.Sprintf("unknown status %q", job.Status), nil)
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = fallbackID
	}
	if job.ID == "" {
		return nil, transcript.NewMalformedResponseError("missing job_id", nil)
	}
	return &job, nil
}

// errorBody extracts FastAPI style {"detail": "..."} bodies and otherwise
// returns the raw text.
func errorBody(data []byte) string {
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	return strings.TrimSpace(string(data))
}

func statusError(op string, code int, data []byte) *transcript.Error {
	err := transcript.NewTransportError(op, nil)
	err.StatusCode = code
	err.Body = errorBody(data)
	return err
}

func uploadCauseError(ctx context.Context, err error) *transcript.Error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return transcript.NewUploadCauseError(transcript.CauseCancelled, err)
	}
	return transcript.NewUploadCauseError(transcript.CauseNetwork, err)
}

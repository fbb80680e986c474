package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService mimics the transcription service: jobs are queued on
// submit and complete after two status polls.
type fakeService struct {
	mu        sync.Mutex
	polls     map[string]int
	languages []string
	deleted   []string
	modelUp   bool
	failIDs   map[string]bool
	n         int
}

func newFakeService(t *testing.T) (*fakeService, string) {
	t.Helper()
	f := &fakeService{polls: map[string]int{}, failIDs: map[string]bool{}, modelUp: true}
	srv := httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeService) serveHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/health":
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "model_loaded": f.modelUp})
	case r.URL.Path == "/transcribe" && r.Method == http.MethodPost:
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_, _ = io.Copy(io.Discard, file)
		f.n++
		id := fmt.Sprintf("job-%d", f.n)
		f.languages = append(f.languages, r.FormValue("language"))
		if strings.HasPrefix(header.Filename, "bad") {
			f.failIDs[id] = true
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": id, "status": "queued", "filename": header.Filename})
	case strings.HasPrefix(r.URL.Path, "/transcribe/"):
		id := strings.TrimPrefix(r.URL.Path, "/transcribe/")
		if r.Method == http.MethodDelete {
			f.deleted = append(f.deleted, id)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if id == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Job not found"})
			return
		}
		f.polls[id]++
		body := map[string]any{"job_id": id, "status": "processing"}
		if f.polls[id] >= 2 {
			if f.failIDs[id] {
				body = map[string]any{"job_id": id, "status": "error", "error": "unsupported codec"}
			} else {
				body = map[string]any{"job_id": id, "status": "completed", "language": "en", "text": "hello from " + id}
			}
		}
		_ = json.NewEncoder(w).Encode(body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeService) snapshot() (languages, deleted []string, submitted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.languages...), append([]string(nil), f.deleted...), f.n
}

func setupEnv(t *testing.T, serviceURL string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TRANSCRIBE_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("TRANSCRIBE_SETTINGS_FILE", filepath.Join(dir, "settings.json"))
	t.Setenv("TRANSCRIBE_SERVICE_URL", serviceURL)
	t.Setenv("TRANSCRIBE_POLL_INTERVAL_MS", "5")
	t.Setenv("TRANSCRIBE_LANGUAGE", "")
	t.Setenv("HEALTH_CRON_EXPR", "")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func writeAudio(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("ID3 fake audio"), 0o644))
	return p
}

func TestSubmit_WaitsAndSavesTranscripts(t *testing.T) {
	svc, url := newFakeService(t)
	setupEnv(t, url)
	dir := t.TempDir()
	a := writeAudio(t, dir, "a.mp3")
	b := writeAudio(t, dir, "b.wav")

	out, err := execute(t, NewCmdSubmit(), a, b, "--language", "en-GB", "--save")
	require.NoError(t, err, out)

	for _, p := range []string{a, b} {
		data, err := os.ReadFile(strings.TrimSuffix(p, filepath.Ext(p)) + ".txt")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "hello from job-"))
	}
	assert.Contains(t, out, "completed [en]")
	assert.Contains(t, out, "transcript written to")
	languages, _, _ := svc.snapshot()
	assert.Equal(t, []string{"en", "en"}, languages)
}

func TestSubmit_ReportsFailedTranscription(t *testing.T) {
	_, url := newFakeService(t)
	setupEnv(t, url)
	dir := t.TempDir()
	good := writeAudio(t, dir, "good.mp3")
	bad := writeAudio(t, dir, "bad.mp3")

	out, err := execute(t, NewCmdSubmit(), good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, out, bad+": unsupported codec")
	assert.Contains(t, out, good+": job-")
}

func TestSubmit_CollectsFromDir(t *testing.T) {
	svc, url := newFakeService(t)
	setupEnv(t, url)
	dir := t.TempDir()
	writeAudio(t, dir, "one.m4a")
	writeAudio(t, dir, "notes.txt")
	old := writeAudio(t, dir, "old.mp3")
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	out, err := execute(t, NewCmdSubmit(), "--dir", dir, "--since", "1h", "--no-wait")
	require.NoError(t, err, out)
	assert.Contains(t, out, "one.m4a: accepted as job-1")
	_, _, submitted := svc.snapshot()
	assert.Equal(t, 1, submitted)
}

func TestSubmit_Validation(t *testing.T) {
	_, url := newFakeService(t)
	setupEnv(t, url)
	dir := t.TempDir()

	_, err := execute(t, NewCmdSubmit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files to submit")

	_, err = execute(t, NewCmdSubmit(), writeAudio(t, dir, "doc.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".pdf")

	_, err = execute(t, NewCmdSubmit(), writeAudio(t, dir, "x.mp3"), "--save", "--no-wait")
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	_, url := newFakeService(t)
	setupEnv(t, url)

	out, err := execute(t, NewCmdStatus(), "job-9")
	require.NoError(t, err)
	assert.Equal(t, "job-9 processing\n", out)

	out, err = execute(t, NewCmdStatus(), "job-9", "--watch")
	require.NoError(t, err)
	assert.Contains(t, out, "job-9 completed [en]\nhello from job-9\n")

	out, err = execute(t, NewCmdStatus(), "job-9", "-o", "json")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "completed", got["status"])

	_, err = execute(t, NewCmdStatus(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = execute(t, NewCmdStatus(), "job-9", "-o", "yaml")
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	svc, url := newFakeService(t)
	setupEnv(t, url)

	out, err := execute(t, NewCmdDelete(), "job-1", "job-2")
	require.NoError(t, err)
	assert.Equal(t, "deleted job-1\ndeleted job-2\n", out)
	_, deleted, _ := svc.snapshot()
	assert.Equal(t, []string{"job-1", "job-2"}, deleted)
}

func TestHealth(t *testing.T) {
	svc, url := newFakeService(t)
	setupEnv(t, url)

	out, err := execute(t, NewCmdHealth())
	require.NoError(t, err)
	assert.Contains(t, out, `"model_loaded": true`)

	svc.mu.Lock()
	svc.modelUp = false
	svc.mu.Unlock()
	_, err = execute(t, NewCmdHealth(), "--wait", "30ms", "--interval", "5ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestGlobalOptions_FlagOverridesServiceURL(t *testing.T) {
	_, url := newFakeService(t)
	setupEnv(t, "http://unused.invalid:1")

	out, err := execute(t, NewCmdDelete(), "job-1", "--service-url", url)
	require.NoError(t, err)
	assert.Equal(t, "deleted job-1\n", out)
}

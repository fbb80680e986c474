package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusError} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("paused").Valid())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestError_Messages(t *testing.T) {
	assert.Equal(t, "upload failed: HTTP 500: out of memory", NewUploadHTTPError(500, "out of memory").Error())
	assert.Equal(t, "upload failed: HTTP 502", NewUploadHTTPError(502, "  ").Error())
	assert.Equal(t, "upload failed: network: dial tcp: refused",
		NewUploadCauseError(CauseNetwork, errors.New("dial tcp: refused")).Error())
	assert.Equal(t, "upload failed: cancelled", NewUploadCauseError(CauseCancelled, context.Canceled).Error())
	assert.Equal(t, "job j1 not found", NewNotFoundError("j1").Error())
	assert.Equal(t, "unsupported codec", NewTranscriptionFailed(&Job{ID: "j1", Error: "unsupported codec"}).Error())
	assert.Equal(t, "transcription failed", NewTranscriptionFailed(&Job{ID: "j1"}).Error())
	assert.Equal(t, "transcription failed", NewTranscriptionFailed(nil).Error())
}

func TestError_Classification(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("polling: %w", NewTransportError("fetch status", cause))

	assert.True(t, IsErrorType(err, ErrTransport))
	assert.False(t, IsErrorType(err, ErrNotFound))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsErrorType(cause, ErrTransport))

	cancelled := NewUploadCauseError(CauseCancelled, context.Canceled)
	assert.True(t, IsCancelled(cancelled))
	assert.ErrorIs(t, cancelled, context.Canceled)
	assert.False(t, IsCancelled(NewUploadCauseError(CauseNetwork, cause)))
	assert.False(t, IsCancelled(nil))

	assert.Equal(t, "TransportError", ErrTransport.String())
	assert.Equal(t, "Unknown", ErrorType(99).String())
}

func TestValidateFilename(t *testing.T) {
	for _, name := range []string{"a.mp3", "B.WAV", "dir/c.m4a", "talk.final.ogg"} {
		assert.NoError(t, ValidateFilename(name), name)
	}

	err := ValidateFilename("notes.pdf")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
	assert.Contains(t, err.Error(), ".pdf")

	assert.Error(t, ValidateFilename(""))
	assert.Error(t, ValidateFilename("noext"))
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"en":      "en",
		"EN":      "en",
		"en-US":   "en",
		" pt-BR":  "pt",
		"zh-Hant": "zh",
	}
	for in, want := range cases {
		got, err := NormalizeLanguage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeLanguage("??")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
}

func TestEffectiveLanguage(t *testing.T) {
	text := "The committee met on Tuesday morning to discuss the budget for the next year. " +
		"Everyone agreed that the proposal needed more work before it could be approved by the board."

	assert.Equal(t, "de", EffectiveLanguage(&Job{Status: StatusCompleted, Language: "de", Text: text}))
	assert.Equal(t, "en", EffectiveLanguage(&Job{Status: StatusCompleted, Text: text}))
	assert.Empty(t, EffectiveLanguage(&Job{Status: StatusProcessing, Text: text}))
	assert.Empty(t, EffectiveLanguage(&Job{Status: StatusCompleted}))
	assert.Empty(t, EffectiveLanguage(nil))
}

func TestCloneJob_DeepCopies(t *testing.T) {
	orig := &Job{
		ID:     "j1",
		Status: StatusCompleted,
		Segments: []Segment{{
			ID:     0,
			Text:   "hi",
			Tokens: []int{1, 2},
			Words:  []Word{{Word: "hi", Start: 0, End: 0.4}},
		}},
	}
	cp := CloneJob(orig)
	require.Equal(t, orig, cp)

	cp.Segments[0].Text = "changed"
	cp.Segments[0].Tokens[0] = 99
	cp.Segments[0].Words[0].Word = "changed"
	assert.Equal(t, "hi", orig.Segments[0].Text)
	assert.Equal(t, 1, orig.Segments[0].Tokens[0])
	assert.Equal(t, "hi", orig.Segments[0].Words[0].Word)

	assert.Nil(t, CloneJob(nil))
}

func TestOpenUpload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(p, []byte("12345"), 0o644))

	upload, f, err := OpenUpload(p)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "clip.wav", upload.Name)
	assert.EqualValues(t, 5, upload.Size)

	_, _, err = OpenUpload(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

package transcript

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// SupportedExtensions lists the file types the service accepts.
var SupportedExtensions = []string{
	".mp3", ".wav", ".m4a", ".mp4", ".avi",
	".mov", ".flv", ".wmv", ".aac", ".ogg",
}

func IsSupportedFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext != "" && slices.Contains(SupportedExtensions, ext)
}

func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return NewValidationError("filename is required")
	}
	if !IsSupportedFile(filename) {
		return NewValidationError(fmt.Sprintf(
			"unsupported file type %q, supported: %s",
			filepath.Ext(filename), strings.Join(SupportedExtensions, ", ")))
	}
	return nil
}

// NormalizeLanguage turns a hint such as "en-US" or "EN" into the short base
// code the engine expects. An empty hint stays empty.
func NormalizeLanguage(hint string) (string, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "", nil
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return "", NewValidationError(fmt.Sprintf("invalid language %q", hint))
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// DetectLanguage guesses the ISO 639-1 code of text. It returns "" when the
// text is empty or the guess is unreliable.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// EffectiveLanguage prefers the language the service reported and falls
// back to detection on completed transcripts.
func EffectiveLanguage(job *Job) string {
	if job == nil {
		return ""
	}
	if job.Language != "" {
		return job.Language
	}
	if job.Status != StatusCompleted {
		return ""
	}
	return DetectLanguage(job.Text)
}

package transcript

import (
	"io"
	"os"
	"path/filepath"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the four states the service reports.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job is the descriptor exchanged with the transcription service.
type Job struct {
	ID       string    `json:"job_id"`
	Status   Status    `json:"status"`
	Filename string    `json:"filename,omitempty"`
	Language string    `json:"language,omitempty"`
	Text     string    `json:"text,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Segment is one timed span of a transcript. Start and End are seconds.
// The remaining fields are engine confidence metadata.
type Segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek,omitempty"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	AvgLogprob       float64 `json:"avg_logprob,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	NoSpeechProb     float64 `json:"no_speech_prob,omitempty"`
	Words            []Word  `json:"words,omitempty"`
}

type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// Upload is a file handed to the transport. Size is the byte count of Body,
// or a negative value when unknown.
type Upload struct {
	Name string
	Size int64
	Body io.Reader
}

// OpenUpload opens path for submission. The caller closes the returned file.
func OpenUpload(path string) (Upload, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return Upload{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Upload{}, nil, err
	}
	return Upload{
		Name: filepath.Base(path),
		Size: info.Size(),
		Body: f,
	}, f, nil
}

// CloneJob returns a deep copy so snapshots never alias store-owned slices.
func CloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	if job.Segments != nil {
		tmp.Segments = make([]Segment, len(job.Segments))
		for i, seg := range job.Segments {
			tmp.Segments[i] = seg
			if seg.Tokens != nil {
				tmp.Segments[i].Tokens = append([]int(nil), seg.Tokens...)
			}
			if seg.Words != nil {
				tmp.Segments[i].Words = append([]Word(nil), seg.Words...)
			}
		}
	}
	return &tmp
}

// Package catalog owns the agent's persistent state: registered exercise
// videos, the job queue that drives analysis, and the stored results.
package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Video is one registered exercise recording.
type Video struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Exercise  string    `json:"exercise"`
	SizeBytes int64     `json:"size_bytes"`
	DurationS float64   `json:"duration_s"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	VideoStatusPending   = "pending"
	VideoStatusAnalyzing = "analyzing"
	VideoStatusDone      = "done"
	VideoStatusFailed    = "failed"
)

const (
	JobTypeAnalyze = "analyze"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one unit of queued work.
type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	VideoID   string    `json:"video_id,omitempty"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResultRecord is one stored analysis outcome. Details and Suspicion are
// stored as JSON text; the API returns them verbatim.
type ResultRecord struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"video_id"`
	Exercise   string    `json:"exercise"`
	Success    bool      `json:"success"`
	AIScore    float64   `json:"ai_score"`
	Band       string    `json:"band"`
	Feedback   string    `json:"feedback"`
	Details    string    `json:"details"`
	Error      string    `json:"error,omitempty"`
	Suspicion  string    `json:"suspicion,omitempty"`
	ReportPath string    `json:"report_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// NewID returns a fresh identifier for any catalog entity.
func NewID() string {
	return uuid.NewString()
}

// IsVideoFile reports whether the filename carries a supported extension.
func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

package api

import (
	"encoding/json"
	"time"

	"github.com/kinescore/kinescore-agent/internal/catalog"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State       string                  `json:"state"`
	LastError   string                  `json:"last_error,omitempty"`
	VideosCount int                     `json:"videos_count"`
	JobsRunning int                     `json:"jobs_running"`
	ActiveJob   *JobResponse            `json:"active_job,omitempty"`
	Detector    *DetectorStatusResponse `json:"detector,omitempty"`
}

type DetectorStatusResponse struct {
	HasPose     bool   `json:"has_pose"`
	HasProbe    bool   `json:"has_probe"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
	DepsAvail   int    `json:"deps_available"`
	DepsTotal   int    `json:"deps_total"`
}

type RegisterVideoRequest struct {
	Path     string `json:"path"`
	Exercise string `json:"exercise"`
}

type RegisterVideoResponse struct {
	VideoID string `json:"video_id"`
	JobID   string `json:"job_id"`
}

type ScanFolderRequest struct {
	Path     string `json:"path"`
	Exercise string `json:"exercise"`
}

type ScanFolderResponse struct {
	Registered int      `json:"registered"`
	VideoIDs   []string `json:"video_ids"`
}

type VideoResponse struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	Exercise  string  `json:"exercise"`
	SizeBytes int64   `json:"size_bytes"`
	DurationS float64 `json:"duration_s"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	VideoID   string `json:"video_id,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ResultResponse struct {
	ID        string          `json:"id"`
	VideoID   string          `json:"video_id"`
	Exercise  string          `json:"exercise"`
	Success   bool            `json:"success"`
	AIScore   float64         `json:"ai_score"`
	Band      string          `json:"band,omitempty"`
	Feedback  string          `json:"feedback,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	Error     string          `json:"error,omitempty"`
	Suspicion json.RawMessage `json:"suspicion,omitempty"`
	CreatedAt string          `json:"created_at"`
}

type ResultsResponse struct {
	Results []ResultResponse `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func VideoToResponse(v *catalog.Video) VideoResponse {
	return VideoResponse{
		ID:        v.ID,
		Path:      v.Path,
		Exercise:  v.Exercise,
		SizeBytes: v.SizeBytes,
		DurationS: v.DurationS,
		Width:     v.Width,
		Height:    v.Height,
		Status:    v.Status,
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		VideoID:   j.VideoID,
		Progress:  j.Progress,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

func ResultToResponse(r *catalog.ResultRecord) ResultResponse {
	resp := ResultResponse{
		ID:        r.ID,
		VideoID:   r.VideoID,
		Exercise:  r.Exercise,
		Success:   r.Success,
		AIScore:   r.AIScore,
		Band:      r.Band,
		Feedback:  r.Feedback,
		Error:     r.Error,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
	if r.Details != "" {
		resp.Details = json.RawMessage(r.Details)
	}
	if r.Suspicion != "" {
		resp.Suspicion = json.RawMessage(r.Suspicion)
	}
	return resp
}

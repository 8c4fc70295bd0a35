package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/kinescore/kinescore-agent/internal/analysis"
	"github.com/kinescore/kinescore-agent/internal/detector"
	"github.com/kinescore/kinescore-agent/internal/media"
	"github.com/kinescore/kinescore-agent/internal/report"
)

// Runner polls the job queue and drives one analysis at a time through
// probe, pose extraction and scoring.
type Runner struct {
	repo         Repository
	det          detector.Runner
	doctor       *detector.CachedDoctor
	prober       media.Prober
	limits       media.Limits
	analyzer     *analysis.Analyzer
	reports      *report.Writer
	courseM      float64
	sampleFPS    float64
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

// RunnerDeps bundles the collaborators the runner needs.
type RunnerDeps struct {
	Repo            Repository
	Detector        detector.Runner
	Doctor          *detector.CachedDoctor
	Prober          media.Prober
	Limits          media.Limits
	Analyzer        *analysis.Analyzer
	Reports         *report.Writer
	CourseDistanceM float64
	SampleFPS       float64
	Logger          *slog.Logger
}

func NewRunner(deps RunnerDeps) *Runner {
	return &Runner{
		repo:         deps.Repo,
		det:          deps.Detector,
		doctor:       deps.Doctor,
		prober:       deps.Prober,
		limits:       deps.Limits,
		analyzer:     deps.Analyzer,
		reports:      deps.Reports,
		courseM:      deps.CourseDistanceM,
		sampleFPS:    deps.SampleFPS,
		logger:       deps.Logger,
		pollInterval: 5 * time.Second,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	r.logger.Info("processing job", "job_id", job.ID, "type", job.Type)

	switch job.Type {
	case JobTypeAnalyze:
		r.processAnalyzeJob(ctx, job)

	default:
		r.logger.Warn("unknown job type", "type", job.Type)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "unknown job type")
	}
}

func (r *Runner) processAnalyzeJob(ctx context.Context, job *Job) {
	if r.det == nil || r.doctor == nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "detector runner not configured")
		return
	}

	video, err := r.repo.GetVideo(ctx, job.VideoID)
	if err != nil || video == nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "video not found")
		return
	}

	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")
	r.repo.UpdateVideoStatus(ctx, video.ID, VideoStatusAnalyzing)

	if r.prober != nil {
		probe, err := r.prober.Probe(ctx, video.Path)
		if err != nil {
			r.failAnalysis(ctx, job, video, fmt.Sprintf("probe failed: %v", err))
			return
		}
		if err := media.Validate(video.Path, probe, r.limits); err != nil {
			r.failAnalysis(ctx, job, video, err.Error())
			return
		}
		r.repo.UpdateVideoProbe(ctx, video.ID, probe.Duration, probe.Width, probe.Height, video.SizeBytes)
	}
	r.repo.UpdateJobProgress(ctx, job.ID, 20)

	caps, err := r.doctor.Get(ctx)
	if err != nil {
		r.failAnalysis(ctx, job, video, fmt.Sprintf("doctor probe failed: %v", err))
		return
	}
	if !caps.HasPose {
		r.failAnalysis(ctx, job, video, "pose detection not available in detector environment")
		return
	}

	outPath := filepath.Join(r.det.ArtifactsDir(), video.ID, "pose", "result.json")
	r.logger.Info("running pose extraction", "job_id", job.ID, "video_id", video.ID)

	result, err := r.det.RunPose(ctx, video.Path, outPath, r.sampleFPS)
	if err != nil {
		r.failAnalysis(ctx, job, video, fmt.Sprintf("pose extraction error: %v", err))
		return
	}
	if !result.IsSuccess() {
		r.failAnalysis(ctx, job, video,
			fmt.Sprintf("pose extraction exited %d: %s", result.ExitCode, truncateStr(result.StderrTail, 512)))
		return
	}

	out, err := r.det.ValidateOutput(outPath)
	if err != nil {
		r.failAnalysis(ctx, job, video, fmt.Sprintf("pose output invalid: %v", err))
		return
	}
	r.repo.UpdateJobProgress(ctx, job.ID, 70)

	res := r.analyzer.Analyze(out.Sequence(), analysis.Request{
		Exercise:        analysis.Exercise(video.Exercise),
		CourseDistanceM: r.courseM,
	})

	record := &ResultRecord{
		ID:        NewID(),
		VideoID:   video.ID,
		Exercise:  video.Exercise,
		Success:   res.Success,
		AIScore:   res.AIScore,
		Band:      res.Band,
		Feedback:  res.Feedback,
		Details:   marshalJSON(res.Details),
		Error:     res.Error,
		CreatedAt: time.Now(),
	}
	if res.Suspicion != nil {
		record.Suspicion = marshalJSON(res.Suspicion)
	}

	if r.reports != nil && res.Success {
		path, err := r.reports.Render(video.ID, res)
		if err != nil {
			r.logger.Warn("report rendering failed", "video_id", video.ID, "error", err)
		} else {
			record.ReportPath = path
		}
	}

	if err := r.repo.CreateResult(ctx, record); err != nil {
		r.failAnalysis(ctx, job, video, fmt.Sprintf("cannot store result: %v", err))
		return
	}

	if res.Success {
		r.repo.UpdateVideoStatus(ctx, video.ID, VideoStatusDone)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
	} else {
		r.repo.UpdateVideoStatus(ctx, video.ID, VideoStatusFailed)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, res.Error)
	}
	r.repo.UpdateJobProgress(ctx, job.ID, 100)

	r.logger.Info("analyze job finished",
		"job_id", job.ID,
		"video_id", video.ID,
		"success", res.Success,
		"score", res.AIScore,
		"duration", result.Duration,
	)
}

func (r *Runner) failAnalysis(ctx context.Context, job *Job, video *Video, msg string) {
	r.repo.UpdateVideoStatus(ctx, video.ID, VideoStatusFailed)
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, msg)
	r.logger.Warn("analyze job failed", "job_id", job.ID, "video_id", video.ID, "error", msg)
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning {
			count++
		}
	}
	return count
}

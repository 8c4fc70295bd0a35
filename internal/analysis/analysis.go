// Package analysis is the per-video boundary around the metric engines:
// it picks the engine for the requested exercise, applies the error
// taxonomy (input / detection / plausibility), attaches anomaly
// annotations, and converts every internal failure into the structured
// result contract. Nothing below this package panics across it.
package analysis

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kinescore/kinescore-agent/internal/fusion"
	"github.com/kinescore/kinescore-agent/internal/pose"
	"github.com/kinescore/kinescore-agent/internal/reps"
	"github.com/kinescore/kinescore-agent/internal/scoring"
	"github.com/kinescore/kinescore-agent/internal/trajectory"
)

// Exercise discriminates which engine runs.
type Exercise string

const (
	ExerciseSquat        Exercise = "squat"
	ExerciseVerticalJump Exercise = "vertical_jump"
	ExerciseShuttleRun   Exercise = "shuttle_run"
	ExerciseHeight       Exercise = "height_estimation"
)

// Valid reports whether the discriminator is a known exercise.
func (e Exercise) Valid() bool {
	switch e {
	case ExerciseSquat, ExerciseVerticalJump, ExerciseShuttleRun, ExerciseHeight:
		return true
	}
	return false
}

// Request is the input contract for one analysis.
type Request struct {
	Exercise Exercise `json:"exercise"`

	// CourseDistanceM overrides the configured shuttle course length.
	CourseDistanceM float64 `json:"course_distance_m,omitempty"`

	// ReferenceHeightCM rescales the monocular pixel-to-cm assumption when
	// the subject's real height is known.
	ReferenceHeightCM float64 `json:"reference_height_cm,omitempty"`
}

// Result is the output contract. On Success=false AIScore is 0, never
// absent, so callers can always read it.
type Result struct {
	Success   bool           `json:"success"`
	AIScore   float64        `json:"ai_score"`
	Band      string         `json:"band,omitempty"`
	Feedback  string         `json:"feedback"`
	Details   map[string]any `json:"details"`
	Error     string         `json:"error,omitempty"`
	Suspicion *Suspicion     `json:"suspicion,omitempty"`
}

// Suspicion is the anomaly side-channel: heuristic, advisory, never a
// hard failure.
type Suspicion struct {
	Level   string   `json:"level"` // none | low | high
	Reasons []string `json:"reasons,omitempty"`
}

// Config bundles the engine configurations so one analysis run has one
// immutable parameter set.
type Config struct {
	Reps    reps.Config
	Jump    trajectory.JumpConfig
	Shuttle trajectory.ShuttleConfig
	Fusion  fusion.Config

	// MinFrames is the input-error floor: sequences shorter than this fail
	// fast before any engine runs.
	MinFrames int

	// MinVideoSeconds is the shortest plausible recording of any test.
	MinVideoSeconds float64

	// MaxPlausibleSpeedMS flags shuttle mean speeds beyond human sprinting.
	MaxPlausibleSpeedMS float64

	// AssumedHeightCM anchors the monocular scale assumption; reference
	// height calibration rescales against it.
	AssumedHeightCM float64
}

// DefaultConfig returns the documented defaults for all engines.
func DefaultConfig() Config {
	return Config{
		Reps:                reps.DefaultConfig(),
		Jump:                trajectory.DefaultJumpConfig(),
		Shuttle:             trajectory.DefaultShuttleConfig(),
		Fusion:              fusion.DefaultConfig(),
		MinFrames:           10,
		MinVideoSeconds:     3.0,
		MaxPlausibleSpeedMS: 11.0,
		AssumedHeightCM:     170,
	}
}

// Analyzer runs one video's landmark sequence through the pipeline. It is
// stateless across calls; concurrent use on different sequences is safe.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Analyzer. A nil logger disables logging.
func New(cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

// Analyze is the single entry point. Every panic or engine error becomes
// a structured Result; the error return is reserved for invalid requests.
func (a *Analyzer) Analyze(seq *pose.Sequence, req Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("analysis panic recovered", "exercise", req.Exercise, "panic", r)
			result = failure(fmt.Sprintf("internal analysis error: %v", r))
		}
	}()

	if !req.Exercise.Valid() {
		return failure(fmt.Sprintf("unknown exercise type %q", req.Exercise))
	}
	if seq == nil || len(seq.Frames) == 0 {
		return failure("video produced no frames")
	}
	if len(seq.Frames) < a.cfg.MinFrames {
		return failure(fmt.Sprintf("video too short: %d frames, need at least %d", len(seq.Frames), a.cfg.MinFrames))
	}
	if req.Exercise != ExerciseHeight && seq.Duration() < a.cfg.MinVideoSeconds {
		return failure(fmt.Sprintf("video too short: %.1fs, need at least %.1fs", seq.Duration(), a.cfg.MinVideoSeconds))
	}

	if seq.DetectedCount() == 0 {
		return noActivity()
	}

	switch req.Exercise {
	case ExerciseSquat:
		return a.analyzeSquat(seq)
	case ExerciseVerticalJump:
		return a.analyzeJump(seq, req)
	case ExerciseShuttleRun:
		return a.analyzeShuttle(seq, req)
	default:
		return a.analyzeHeight(seq, req)
	}
}

func (a *Analyzer) analyzeSquat(seq *pose.Sequence) Result {
	res := reps.Analyze(seq, a.cfg.Reps)
	if !res.PoseDetected {
		return noActivity()
	}

	score := scoring.ScoreSquat(scoring.SquatInput{
		Reps:         res.Count,
		PartialReps:  res.PartialCount,
		Consistency:  res.ConsistencyScore,
		PoseDetected: res.PoseDetected,
	})

	susp := a.suspicion(seq, res.FramesUsed, nil)
	a.logger.Info("squat analysis complete",
		"count", res.Count, "partials", res.PartialCount, "score", score.Value)

	return Result{
		Success:  true,
		AIScore:  score.Value,
		Band:     string(score.Band),
		Feedback: strings.Join(score.Feedback, " "),
		Details: map[string]any{
			"count":             res.Count,
			"partial_squats":    res.PartialCount,
			"consistency_score": res.ConsistencyScore,
			"frames_used":       res.FramesUsed,
			"reps":              res.Reps,
		},
		Suspicion: susp,
	}
}

func (a *Analyzer) analyzeJump(seq *pose.Sequence, req Request) Result {
	cfg := a.cfg.Jump
	if req.ReferenceHeightCM > 0 {
		cfg.PixelScaleCM *= req.ReferenceHeightCM / a.cfg.AssumedHeightCM
	}

	m, err := trajectory.AnalyzeJump(seq, cfg)
	if err != nil {
		return noActivity()
	}

	score := scoring.ScoreJump(scoring.JumpInput{
		HeightCM:       m.HeightCM,
		HangTimeS:      m.HangTimeS,
		TechniqueScore: m.TechniqueScore,
	})

	susp := a.suspicion(seq, m.SamplesUsed, nil)
	a.logger.Info("jump analysis complete",
		"height_cm", m.HeightCM, "hang_s", m.HangTimeS, "score", score.Value)

	return Result{
		Success:  true,
		AIScore:  score.Value,
		Band:     string(score.Band),
		Feedback: strings.Join(score.Feedback, " "),
		Details: map[string]any{
			"jump_height_cm":      m.HeightCM,
			"hang_time_s":         m.HangTimeS,
			"takeoff_velocity_ms": m.TakeoffVelocity,
			"technique_score":     m.TechniqueScore,
			"samples_used":        m.SamplesUsed,
		},
		Suspicion: susp,
	}
}

func (a *Analyzer) analyzeShuttle(seq *pose.Sequence, req Request) Result {
	cfg := a.cfg.Shuttle
	if req.CourseDistanceM > 0 {
		cfg.CourseDistanceM = req.CourseDistanceM
	}

	m, err := trajectory.AnalyzeShuttle(seq, cfg)
	if err != nil {
		return noActivity()
	}

	score := scoring.ScoreShuttle(scoring.ShuttleInput{
		TotalTimeS:   m.TotalTimeS,
		TurnCount:    m.TurnCount,
		SplitStdDevS: m.SplitStdDev(),
		MeanSpeedMS:  m.MeanSpeedMS,
	})

	var extra []string
	if m.TurnCount == 0 {
		extra = append(extra, "no turns detected on an agility course")
	}
	if m.MeanSpeedMS > a.cfg.MaxPlausibleSpeedMS {
		extra = append(extra, fmt.Sprintf("mean speed %.1fm/s exceeds plausible sprinting", m.MeanSpeedMS))
	}
	susp := a.suspicion(seq, m.SamplesUsed, extra)

	a.logger.Info("shuttle analysis complete",
		"time_s", m.TotalTimeS, "turns", m.TurnCount, "score", score.Value)

	return Result{
		Success:  true,
		AIScore:  score.Value,
		Band:     string(score.Band),
		Feedback: strings.Join(score.Feedback, " "),
		Details: map[string]any{
			"total_time_s":  m.TotalTimeS,
			"turn_count":    m.TurnCount,
			"split_times_s": m.SplitTimesS,
			"mean_speed_ms": m.MeanSpeedMS,
			"samples_used":  m.SamplesUsed,
		},
		Suspicion: susp,
	}
}

func (a *Analyzer) analyzeHeight(seq *pose.Sequence, req Request) Result {
	cfg := a.cfg.Fusion
	if req.ReferenceHeightCM > 0 {
		cfg.FrameHeightCM *= req.ReferenceHeightCM / a.cfg.AssumedHeightCM
	}

	frame := bestFrame(seq, cfg.MinVisibility)
	if frame == nil {
		return noActivity()
	}

	res := fusion.EstimateHeight(frame, cfg)
	score := scoring.ScoreHeight(scoring.HeightInput{
		HeightCM:   res.HeightCM,
		Confidence: res.Confidence,
		Validation: res.ValidationScore,
		Valid:      res.Valid,
	})

	a.logger.Info("height analysis complete",
		"height_cm", res.HeightCM, "confidence", res.Confidence, "valid", res.Valid)

	return Result{
		Success:  true,
		AIScore:  score.Value,
		Band:     string(score.Band),
		Feedback: strings.Join(score.Feedback, " "),
		Details: map[string]any{
			"height_cm":        res.HeightCM,
			"confidence":       res.Confidence,
			"validation_score": res.ValidationScore,
			"accuracy_range":   res.AccuracyRange,
			"valid":            res.Valid,
			"methods":          res.SortedMethods(),
		},
	}
}

// bestFrame picks the detected frame with the highest mean visibility over
// the joints the fusion estimators care about.
func bestFrame(seq *pose.Sequence, minVis float64) *pose.Frame {
	keyJoints := []pose.Joint{
		pose.Nose, pose.LeftShoulder, pose.RightShoulder,
		pose.LeftHip, pose.RightHip, pose.LeftAnkle, pose.RightAnkle,
	}
	var best *pose.Frame
	bestVis := -1.0
	for i := range seq.Frames {
		f := &seq.Frames[i]
		if !f.Detected {
			continue
		}
		sum := 0.0
		for _, j := range keyJoints {
			if lm, ok := f.Landmark(j); ok {
				sum += lm.Visibility
			}
		}
		vis := sum / float64(len(keyJoints))
		if vis > bestVis {
			best, bestVis = f, vis
		}
	}
	if best != nil && bestVis < minVis {
		return best // fusion will gate per-estimator; still worth trying
	}
	return best
}

// suspicion applies the cheap heuristics: suspiciously short footage, very
// few usable detections, plus any engine-specific reasons passed in.
func (a *Analyzer) suspicion(seq *pose.Sequence, samplesUsed int, extra []string) *Suspicion {
	var reasons []string
	reasons = append(reasons, extra...)

	if seq.Duration() < 1.5*a.cfg.MinVideoSeconds {
		reasons = append(reasons, "video barely meets the minimum duration")
	}
	if detected := seq.DetectedCount(); detected > 0 && samplesUsed < detected/3 {
		reasons = append(reasons, "most detected frames were unusable for tracking")
	}

	if len(reasons) == 0 {
		return nil
	}
	level := "low"
	if len(reasons) >= 2 {
		level = "high"
	}
	return &Suspicion{Level: level, Reasons: reasons}
}

// failure is a fail-fast input error: no score, explicit diagnostic.
func failure(msg string) Result {
	return Result{
		Success:  false,
		AIScore:  0,
		Feedback: "",
		Details:  map[string]any{},
		Error:    msg,
	}
}

// noActivity is the detection-failure result: structurally successful (the
// pipeline ran) but with a zero score and an explicit message, never a
// fabricated number.
func noActivity() Result {
	return Result{
		Success:  true,
		AIScore:  0,
		Band:     string(scoring.BandNeedsImprovement),
		Feedback: "no activity detected",
		Details:  map[string]any{"message": "no activity detected"},
	}
}

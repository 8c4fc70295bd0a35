// Package trajectory extracts ballistic and timed-course metrics from a
// single tracked anatomical point over a landmark sequence: vertical jump
// height and hang time from the hip centroid, shuttle-run splits from the
// ankle centroid.
package trajectory

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kinescore/kinescore-agent/internal/pose"
)

// ErrTooFewDetections is returned when a sequence has too few usable frames
// for the requested metric. Callers report it as a detection failure, never
// a fabricated number.
var ErrTooFewDetections = errors.New("too few pose detections for trajectory analysis")

const gravity = 9.81 // m/s²

// Sample is one usable point of the tracked-landmark series.
type Sample struct {
	Timestamp float64 `json:"timestamp"`
	Y         float64 `json:"y"`
}

// JumpConfig controls the vertical-jump path.
type JumpConfig struct {
	MinVisibility float64

	// BaselineFraction is the leading share of frames assumed to be quiet
	// standing before takeoff; their median becomes the baseline.
	BaselineFraction float64

	// MinDetections below which the analysis refuses to produce a result.
	MinDetections int

	// PixelScaleCM converts a full normalized-frame vertical unit into
	// centimeters. There is no calibration object in frame, so this rests
	// on the documented assumption that a ~170cm subject fills a fixed
	// fraction of the frame. Accuracy-limiting and deliberate.
	PixelScaleCM float64

	// FloorCM is the minimum reported jump height; degenerate series clamp
	// here instead of going negative.
	FloorCM float64

	// AirborneEpsilon is the normalized displacement past baseline that
	// marks a frame as airborne.
	AirborneEpsilon float64

	// Hang-time plausibility band in seconds.
	MinHangTime float64
	MaxHangTime float64

	// CrouchDepth is the normalized pre-takeoff dip that counts as a
	// proper loading crouch for the technique sub-score.
	CrouchDepth float64
}

// DefaultJumpConfig returns the documented defaults.
func DefaultJumpConfig() JumpConfig {
	return JumpConfig{
		MinVisibility:    0.5,
		BaselineFraction: 0.30,
		MinDetections:    10,
		PixelScaleCM:     200,
		FloorCM:          1.0,
		AirborneEpsilon:  0.01,
		MinHangTime:      0.1,
		MaxHangTime:      1.0,
		CrouchDepth:      0.03,
	}
}

// JumpMetrics is the result of the vertical-jump path.
type JumpMetrics struct {
	HeightCM        float64  `json:"height_cm"`
	HangTimeS       float64  `json:"hang_time_s"`
	TakeoffVelocity float64  `json:"takeoff_velocity_ms"`
	TechniqueScore  float64  `json:"technique_score"`
	Baseline        float64  `json:"baseline"`
	PeakY           float64  `json:"peak_y"`
	SamplesUsed     int      `json:"samples_used"`
	HipSeries       []Sample `json:"-"`
}

// hipSeries collects the usable hip-centroid samples.
func hipSeries(seq *pose.Sequence, minVis float64) []Sample {
	var out []Sample
	for i := range seq.Frames {
		hip, ok := seq.Frames[i].HipCenter(minVis)
		if !ok {
			continue
		}
		out = append(out, Sample{Timestamp: seq.Frames[i].Timestamp, Y: hip.Y})
	}
	return out
}

// AnalyzeJump computes vertical-jump metrics from the hip centroid series.
func AnalyzeJump(seq *pose.Sequence, cfg JumpConfig) (*JumpMetrics, error) {
	series := hipSeries(seq, cfg.MinVisibility)
	if len(series) <= cfg.MinDetections {
		return nil, ErrTooFewDetections
	}

	baseline := baselineY(series, cfg.BaselineFraction)

	// Image Y grows downward: the jump apex is the global minimum.
	peak := series[0].Y
	for _, s := range series {
		peak = math.Min(peak, s.Y)
	}

	displacement := baseline - peak
	heightCM := displacement * cfg.PixelScaleCM
	if heightCM < cfg.FloorCM {
		heightCM = cfg.FloorCM
	}

	hang := hangTime(series, baseline, cfg)
	takeoff := math.Sqrt(2 * gravity * heightCM / 100)

	return &JumpMetrics{
		HeightCM:        heightCM,
		HangTimeS:       hang,
		TakeoffVelocity: takeoff,
		TechniqueScore:  techniqueScore(series, baseline, cfg),
		Baseline:        baseline,
		PeakY:           peak,
		SamplesUsed:     len(series),
		HipSeries:       series,
	}, nil
}

// baselineY is the median Y of the leading fraction of samples, assumed to
// be the quiet stance before takeoff.
func baselineY(series []Sample, fraction float64) float64 {
	n := int(float64(len(series)) * fraction)
	if n < 3 {
		n = int(math.Min(3, float64(len(series))))
	}
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		ys[i] = series[i].Y
	}
	return median(ys)
}

// hangTime spans the first to the last airborne sample. Windows shorter
// than MinHangTime are detection noise and report zero; longer windows
// clamp to MaxHangTime.
func hangTime(series []Sample, baseline float64, cfg JumpConfig) float64 {
	first, last := -1.0, -1.0
	for _, s := range series {
		if baseline-s.Y > cfg.AirborneEpsilon {
			if first < 0 {
				first = s.Timestamp
			}
			last = s.Timestamp
		}
	}
	if first < 0 || last <= first {
		return 0
	}
	h := last - first
	if h < cfg.MinHangTime {
		return 0
	}
	return math.Min(cfg.MaxHangTime, h)
}

// techniqueScore blends motion smoothness (low variance of the discrete
// second derivative) with the presence of a loading crouch before takeoff.
func techniqueScore(series []Sample, baseline float64, cfg JumpConfig) float64 {
	smooth := smoothness(series)

	crouch := 0.0
	takeoffIdx := len(series)
	for i, s := range series {
		if baseline-s.Y > cfg.AirborneEpsilon {
			takeoffIdx = i
			break
		}
	}
	for _, s := range series[:takeoffIdx] {
		crouch = math.Max(crouch, s.Y-baseline)
	}
	crouchScore := 100 * math.Min(1, crouch/cfg.CrouchDepth)

	return math.Max(0, math.Min(100, 0.6*smooth+0.4*crouchScore))
}

// smoothness maps second-derivative variance to [0,100].
func smoothness(series []Sample) float64 {
	if len(series) < 4 {
		return 0
	}
	var accels []float64
	for i := 2; i < len(series); i++ {
		d2 := series[i].Y - 2*series[i-1].Y + series[i-2].Y
		accels = append(accels, d2)
	}
	variance := stat.Variance(accels, nil)
	// Hand-tuned scale: a clean jump at 30fps sits well below 1e-5.
	score := 100 * (1 - math.Min(1, variance/1e-4))
	return math.Max(0, score)
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

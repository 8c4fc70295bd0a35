package trajectory

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kinescore/kinescore-agent/internal/pose"
)

// ShuttleConfig controls the shuttle-run / agility path.
type ShuttleConfig struct {
	MinVisibility float64
	MinDetections int

	// CourseDistanceM is the externally supplied course length; there is
	// no way to recover it from a monocular video.
	CourseDistanceM float64

	// PeakThreshold is the minimum acceleration magnitude, in normalized
	// frame units per second squared, for a local maximum to count as a
	// turn.
	PeakThreshold float64

	// MinTurnGap is the minimum seconds between two turn events.
	MinTurnGap float64
}

// DefaultShuttleConfig returns defaults for a standard 10m shuttle course.
func DefaultShuttleConfig() ShuttleConfig {
	return ShuttleConfig{
		MinVisibility:   0.5,
		MinDetections:   10,
		CourseDistanceM: 10,
		PeakThreshold:   0.3,
		MinTurnGap:      0.8,
	}
}

// ShuttleMetrics is the result of the agility path.
type ShuttleMetrics struct {
	TotalTimeS  float64   `json:"total_time_s"`
	TurnCount   int       `json:"turn_count"`
	TurnTimes   []float64 `json:"turn_times"`
	SplitTimesS []float64 `json:"split_times_s"`
	MeanSpeedMS float64   `json:"mean_speed_ms"`
	SamplesUsed int       `json:"samples_used"`
}

// point2 is a usable 2D track sample.
type point2 struct {
	ts   float64
	x, y float64
}

// AnalyzeShuttle computes course timing from the ankle-centroid track.
// Zero detected turns is not an error here; the caller surfaces it through
// anomaly detection.
func AnalyzeShuttle(seq *pose.Sequence, cfg ShuttleConfig) (*ShuttleMetrics, error) {
	var track []point2
	for i := range seq.Frames {
		ankle, ok := seq.Frames[i].AnkleCenter(cfg.MinVisibility)
		if !ok {
			continue
		}
		track = append(track, point2{ts: seq.Frames[i].Timestamp, x: ankle.X, y: ankle.Y})
	}
	if len(track) <= cfg.MinDetections {
		return nil, ErrTooFewDetections
	}

	total := track[len(track)-1].ts - track[0].ts
	turns := detectTurns(track, cfg)

	m := &ShuttleMetrics{
		TotalTimeS:  total,
		TurnCount:   len(turns),
		TurnTimes:   turns,
		SamplesUsed: len(track),
	}
	for i := 1; i < len(turns); i++ {
		m.SplitTimesS = append(m.SplitTimesS, turns[i]-turns[i-1])
	}
	if total > 0 {
		m.MeanSpeedMS = cfg.CourseDistanceM / total
	}
	return m, nil
}

// detectTurns finds local peaks in acceleration magnitude, debounced by
// MinTurnGap. Direction reversals at course ends show up as exactly these
// spikes.
func detectTurns(track []point2, cfg ShuttleConfig) []float64 {
	accel := accelMagnitude(track)
	var turns []float64
	lastTurn := math.Inf(-1)
	for i := 1; i < len(accel)-1; i++ {
		a := accel[i]
		if a.mag < cfg.PeakThreshold {
			continue
		}
		if a.mag <= accel[i-1].mag || a.mag < accel[i+1].mag {
			continue
		}
		if a.ts-lastTurn < cfg.MinTurnGap {
			continue
		}
		turns = append(turns, a.ts)
		lastTurn = a.ts
	}
	return turns
}

type accelSample struct {
	ts  float64
	mag float64
}

// accelMagnitude builds the discrete second-difference magnitude series of
// the track, normalised by the local frame spacing.
func accelMagnitude(track []point2) []accelSample {
	var out []accelSample
	for i := 2; i < len(track); i++ {
		dt1 := track[i-1].ts - track[i-2].ts
		dt2 := track[i].ts - track[i-1].ts
		if dt1 <= 0 || dt2 <= 0 {
			continue
		}
		ax := track[i].x - 2*track[i-1].x + track[i-2].x
		ay := track[i].y - 2*track[i-1].y + track[i-2].y
		out = append(out, accelSample{
			ts:  track[i-1].ts,
			mag: math.Hypot(ax, ay) / (dt1 * dt2),
		})
	}
	return out
}

// SplitStdDev returns the standard deviation of split times, a pacing
// consistency signal.
func (m *ShuttleMetrics) SplitStdDev() float64 {
	if len(m.SplitTimesS) < 2 {
		return 0
	}
	return stat.StdDev(m.SplitTimesS, nil)
}

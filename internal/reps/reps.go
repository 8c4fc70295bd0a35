// Package reps counts repetitions of lower-body exercises from a landmark
// sequence using a four-state machine driven by combined hip-depth and
// knee-angle thresholds. Depth alone false-triggers on camera bounce and
// angle alone false-triggers on partial bends; requiring both is what keeps
// the count honest on noisy detections.
package reps

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kinescore/kinescore-agent/internal/pose"
)

// State is the phase of the current repetition cycle.
type State int

const (
	Standing State = iota
	Descending
	AtBottom
	Ascending
)

func (s State) String() string {
	switch s {
	case Standing:
		return "standing"
	case Descending:
		return "descending"
	case AtBottom:
		return "at_bottom"
	case Ascending:
		return "ascending"
	}
	return "unknown"
}

// Config holds the thresholds driving the state machine. Different
// exercises and calibration footage need different values, so nothing here
// is a buried literal.
type Config struct {
	// MinVisibility gates which frames contribute at all.
	MinVisibility float64

	// DownDepth / UpDepth are relative hip-depth fractions in [0,1] of the
	// observed hip range; 1 is the lowest position seen.
	DownDepth float64
	UpDepth   float64

	// DownAngle / UpAngle are knee-angle thresholds in degrees.
	DownAngle float64
	UpAngle   float64

	// MinBottomDepth is the depth a cycle must reach for the bottom state;
	// cycles turning around shallower count as partial.
	MinBottomDepth float64

	// MinStateHold is the minimum seconds a state must persist before the
	// next transition is honoured.
	MinStateHold float64

	// MinRepInterval is the minimum seconds between two counted reps.
	MinRepInterval float64

	// WarmupFrames is the number of detected frames used purely to observe
	// the subject's hip range before any transition fires.
	WarmupFrames int
}

// DefaultConfig returns thresholds tuned for bodyweight squats shot from
// the side or front at typical phone framing.
func DefaultConfig() Config {
	return Config{
		MinVisibility:  0.5,
		DownDepth:      0.65,
		UpDepth:        0.25,
		DownAngle:      110,
		UpAngle:        160,
		MinBottomDepth: 0.75,
		MinStateHold:   0.10,
		MinRepInterval: 0.80,
		WarmupFrames:   30,
	}
}

// Rep records one completed or partial cycle. Complete means the cycle
// reached the bottom position; Counted means it was tallied. A full-depth
// rep finishing inside MinRepInterval of the previous one stays Complete
// but uncounted: it collapses into the prior rep rather than being demoted
// to a depth failure.
type Rep struct {
	StartTime    float64 `json:"start_time"`
	BottomTime   float64 `json:"bottom_time,omitempty"`
	EndTime      float64 `json:"end_time"`
	MinKneeAngle float64 `json:"min_knee_angle"`
	MaxDepth     float64 `json:"max_depth"`
	Complete     bool    `json:"complete"`
	Counted      bool    `json:"counted"`
}

// Result summarises one video's worth of counting.
type Result struct {
	Count            int     `json:"count"`
	PartialCount     int     `json:"partial_count"`
	Reps             []Rep   `json:"reps"`
	ConsistencyScore float64 `json:"consistency_score"`
	FramesUsed       int     `json:"frames_used"`
	PoseDetected     bool    `json:"pose_detected"`
}

// Counter is the per-video state machine. Zero value is not usable; create
// one per sequence with NewCounter.
type Counter struct {
	cfg Config

	state        State
	stateSince   float64
	lastRepEnd   float64
	sawBottom    bool
	framesSeen   int
	hipMin       float64
	hipMax       float64
	cur          Rep
	curActive    bool
	reps         []Rep
	framesUsed   int
	poseDetected bool
}

// NewCounter creates a counter with the given thresholds.
func NewCounter(cfg Config) *Counter {
	return &Counter{
		cfg:        cfg,
		state:      Standing,
		lastRepEnd: math.Inf(-1),
		hipMin:     math.Inf(1),
		hipMax:     math.Inf(-1),
	}
}

// Analyze runs a whole sequence through a fresh state machine.
func Analyze(seq *pose.Sequence, cfg Config) Result {
	c := NewCounter(cfg)
	for i := range seq.Frames {
		c.Feed(&seq.Frames[i])
	}
	return c.Result()
}

// Feed advances the machine by one frame. Frames without a usable
// detection are skipped, never counted as zero motion.
func (c *Counter) Feed(f *pose.Frame) {
	hip, ok := f.HipCenter(c.cfg.MinVisibility)
	if !ok {
		return
	}
	angle, ok := f.KneeAngle(c.cfg.MinVisibility)
	if !ok {
		return
	}
	c.poseDetected = true
	c.framesUsed++

	// Online range calibration: the observed hip extremes define what
	// "standing" and "deep" mean for this subject and camera.
	c.hipMin = math.Min(c.hipMin, hip.Y)
	c.hipMax = math.Max(c.hipMax, hip.Y)

	c.framesSeen++
	if c.framesSeen <= c.cfg.WarmupFrames {
		c.stateSince = f.Timestamp
		return
	}

	depth := c.relativeDepth(hip.Y)
	if c.curActive {
		c.cur.MaxDepth = math.Max(c.cur.MaxDepth, depth)
		c.cur.MinKneeAngle = math.Min(c.cur.MinKneeAngle, angle)
	}

	c.step(f.Timestamp, depth, angle)
}

// relativeDepth maps a hip Y into [0,1] of the observed range; image Y
// grows downward so larger Y is deeper.
func (c *Counter) relativeDepth(y float64) float64 {
	span := c.hipMax - c.hipMin
	if span < 1e-6 {
		return 0
	}
	d := (y - c.hipMin) / span
	return math.Max(0, math.Min(1, d))
}

func (c *Counter) step(ts, depth, angle float64) {
	if ts-c.stateSince < c.cfg.MinStateHold && c.state != Standing {
		return
	}

	switch c.state {
	case Standing:
		if depth > c.cfg.UpDepth && angle < c.cfg.UpAngle {
			c.transition(Descending, ts)
			c.cur = Rep{StartTime: ts, MinKneeAngle: angle, MaxDepth: depth}
			c.curActive = true
			c.sawBottom = false
		}

	case Descending:
		if depth >= c.cfg.DownDepth && angle <= c.cfg.DownAngle && depth >= c.cfg.MinBottomDepth {
			c.transition(AtBottom, ts)
			c.sawBottom = true
			c.cur.BottomTime = ts
		} else if depth < c.cfg.UpDepth && angle > c.cfg.UpAngle {
			// Turned around without reaching the bottom: partial.
			c.finishRep(ts, false, false)
			c.transition(Standing, ts)
		}

	case AtBottom:
		if depth < c.cfg.DownDepth || angle > c.cfg.DownAngle {
			c.transition(Ascending, ts)
		}

	case Ascending:
		if depth < c.cfg.UpDepth && angle > c.cfg.UpAngle {
			counted := c.sawBottom && ts-c.lastRepEnd >= c.cfg.MinRepInterval
			c.finishRep(ts, c.sawBottom, counted)
			if counted {
				c.lastRepEnd = ts
			}
			c.transition(Standing, ts)
		} else if depth >= c.cfg.MinBottomDepth && angle <= c.cfg.DownAngle {
			// Sank back down before standing up.
			c.transition(AtBottom, ts)
		}
	}
}

func (c *Counter) transition(s State, ts float64) {
	c.state = s
	c.stateSince = ts
}

func (c *Counter) finishRep(ts float64, complete, counted bool) {
	if !c.curActive {
		return
	}
	c.cur.EndTime = ts
	c.cur.Complete = complete
	c.cur.Counted = counted
	c.reps = append(c.reps, c.cur)
	c.curActive = false
}

// Result finalises and returns the counting summary.
func (c *Counter) Result() Result {
	res := Result{
		Reps:         c.reps,
		FramesUsed:   c.framesUsed,
		PoseDetected: c.poseDetected,
	}
	var durations []float64
	for _, r := range c.reps {
		switch {
		case r.Counted:
			res.Count++
			durations = append(durations, r.EndTime-r.StartTime)
		case !r.Complete:
			res.PartialCount++
		}
		// Complete but uncounted reps were collapsed by the rep interval;
		// they add to neither tally.
	}
	res.ConsistencyScore = consistency(durations)
	return res
}

// consistency scales rep-duration variance into 0–100: identical rep
// timing scores 100, a coefficient of variation of 0.5 or worse scores 0.
func consistency(durations []float64) float64 {
	if len(durations) < 2 {
		if len(durations) == 1 {
			return 100
		}
		return 0
	}
	mean, std := stat.MeanStdDev(durations, nil)
	if mean <= 0 {
		return 0
	}
	cv := std / mean
	score := (1 - cv/0.5) * 100
	return math.Max(0, math.Min(100, score))
}

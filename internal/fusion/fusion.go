// Package fusion estimates standing height from one frame's landmarks by
// running several structurally independent estimators and fusing them into
// a single value with a confidence and an independent validation score.
// With no calibration object in frame none of the estimators is
// trustworthy alone; agreement between anatomically unrelated bases is the
// only defensible signal.
package fusion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kinescore/kinescore-agent/internal/pose"
)

// Anthropometric population ratios. Fixed, documented averages; not
// learned, not per-subject.
const (
	headToHeightRatio  = 7.5  // total height ≈ 7.5 head lengths
	torsoToHeightRatio = 0.30 // shoulder-to-hip span / height
	legToHeightRatio   = 0.47 // hip-to-ankle span / height
)

// Config controls plausibility gating and fusion behaviour.
type Config struct {
	MinVisibility float64

	// Plausibility band for any single estimate and for the fused value.
	MinHeightCM float64
	MaxHeightCM float64

	// OutlierSigma drops estimates further than this many standard
	// deviations from the mean of the surviving set. Zero disables.
	OutlierSigma float64

	// FrameHeightCM converts a normalized vertical span into centimeters,
	// assuming the subject occupies a known fraction of the frame. The
	// same documented monocular assumption as the jump path.
	FrameHeightCM float64

	// FallbackCM is returned with zero confidence when no estimator
	// produces a plausible value.
	FallbackCM float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinVisibility: 0.5,
		MinHeightCM:   140,
		MaxHeightCM:   230,
		OutlierSigma:  2.0,
		FrameHeightCM: 220,
		FallbackCM:    170,
	}
}

// methodWeights reflect which anatomical bases are typically most reliable
// in handheld footage: the full body span is steadiest, the head
// extrapolation noisiest. Deliberately fixed, not learned.
var methodWeights = map[string]float64{
	"full_span":  0.45,
	"torso":      0.30,
	"leg_length": 0.25,
	"head_unit":  0.15,
}

// Estimate is one method's output with provenance.
type Estimate struct {
	Method  string       `json:"method"`
	ValueCM float64      `json:"value_cm"`
	Joints  []pose.Joint `json:"-"`
}

// Result is the fused output.
type Result struct {
	HeightCM        float64    `json:"height_cm"`
	Confidence      float64    `json:"confidence"`
	ValidationScore float64    `json:"validation_score"`
	AccuracyRange   string     `json:"accuracy_range"`
	Valid           bool       `json:"valid"`
	Estimates       []Estimate `json:"estimates"`
	Dropped         []Estimate `json:"dropped,omitempty"`
}

// EstimateHeight fuses all estimators over a single frame.
func EstimateHeight(f *pose.Frame, cfg Config) Result {
	all := []Estimate{
		fullSpanEstimate(f, cfg),
		torsoEstimate(f, cfg),
		legEstimate(f, cfg),
		headUnitEstimate(f, cfg),
	}

	var surviving, dropped []Estimate
	for _, e := range all {
		if e.ValueCM >= cfg.MinHeightCM && e.ValueCM <= cfg.MaxHeightCM {
			surviving = append(surviving, e)
		} else if e.ValueCM > 0 {
			dropped = append(dropped, e)
		}
	}

	if len(surviving) == 0 {
		return Result{
			HeightCM:      cfg.FallbackCM,
			Confidence:    0,
			AccuracyRange: "unknown",
			Valid:         false,
			Dropped:       dropped,
		}
	}

	surviving, outliers := dropOutliers(surviving, cfg.OutlierSigma)
	dropped = append(dropped, outliers...)

	fused := weightedFuse(surviving)
	conf := confidence(f, surviving, cfg)
	validation := validate(f, fused, cfg)

	return Result{
		HeightCM:        fused,
		Confidence:      conf,
		ValidationScore: validation,
		AccuracyRange:   accuracyLabel(conf, validation),
		Valid:           fused >= cfg.MinHeightCM && fused <= cfg.MaxHeightCM,
		Estimates:       surviving,
		Dropped:         dropped,
	}
}

// fullSpanEstimate scales the nose-to-ankle vertical span, extended by an
// average half-head above the nose.
func fullSpanEstimate(f *pose.Frame, cfg Config) Estimate {
	joints := []pose.Joint{pose.Nose, pose.LeftAnkle, pose.RightAnkle}
	e := Estimate{Method: "full_span", Joints: joints}
	if !f.Visible(cfg.MinVisibility, joints...) {
		return e
	}
	nose, _ := f.Landmark(pose.Nose)
	la, _ := f.Landmark(pose.LeftAnkle)
	ra, _ := f.Landmark(pose.RightAnkle)
	ankleY := (la.Y + ra.Y) / 2
	span := ankleY - nose.Y
	if span <= 0 {
		return e
	}
	// The nose sits roughly half a head below the crown.
	headLen := span / (headToHeightRatio - 0.5)
	e.ValueCM = (span + headLen/2) * cfg.FrameHeightCM
	return e
}

// torsoEstimate scales the shoulder-to-hip span by the population
// torso-to-height ratio.
func torsoEstimate(f *pose.Frame, cfg Config) Estimate {
	joints := []pose.Joint{pose.LeftShoulder, pose.RightShoulder, pose.LeftHip, pose.RightHip}
	e := Estimate{Method: "torso", Joints: joints}
	if !f.Visible(cfg.MinVisibility, joints...) {
		return e
	}
	ls, _ := f.Landmark(pose.LeftShoulder)
	rs, _ := f.Landmark(pose.RightShoulder)
	lh, _ := f.Landmark(pose.LeftHip)
	rh, _ := f.Landmark(pose.RightHip)
	torso := pose.Distance(pose.Midpoint(ls, rs), pose.Midpoint(lh, rh))
	if torso <= 0 {
		return e
	}
	e.ValueCM = torso * cfg.FrameHeightCM / torsoToHeightRatio
	return e
}

// legEstimate sums femur and tibia segments and scales by the population
// leg-to-height ratio, averaging whichever sides are visible.
func legEstimate(f *pose.Frame, cfg Config) Estimate {
	e := Estimate{Method: "leg_length"}
	var lengths []float64
	sides := []struct{ hip, knee, ankle pose.Joint }{
		{pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
		{pose.RightHip, pose.RightKnee, pose.RightAnkle},
	}
	for _, s := range sides {
		if !f.Visible(cfg.MinVisibility, s.hip, s.knee, s.ankle) {
			continue
		}
		h, _ := f.Landmark(s.hip)
		k, _ := f.Landmark(s.knee)
		a, _ := f.Landmark(s.ankle)
		lengths = append(lengths, pose.Distance(h, k)+pose.Distance(k, a))
		e.Joints = append(e.Joints, s.hip, s.knee, s.ankle)
	}
	if len(lengths) == 0 {
		return e
	}
	leg := stat.Mean(lengths, nil)
	e.ValueCM = leg * cfg.FrameHeightCM / legToHeightRatio
	return e
}

// headUnitEstimate extrapolates from the ear-to-ear face width, the
// noisiest basis and weighted accordingly.
func headUnitEstimate(f *pose.Frame, cfg Config) Estimate {
	joints := []pose.Joint{pose.LeftEar, pose.RightEar}
	e := Estimate{Method: "head_unit", Joints: joints}
	if !f.Visible(cfg.MinVisibility, joints...) {
		return e
	}
	le, _ := f.Landmark(pose.LeftEar)
	re, _ := f.Landmark(pose.RightEar)
	earSpan := pose.Distance(le, re)
	if earSpan <= 0 {
		return e
	}
	// Head height ≈ 1.3× ear span; height ≈ 7.5 head units.
	e.ValueCM = earSpan * 1.3 * headToHeightRatio * cfg.FrameHeightCM
	return e
}

// dropOutliers removes estimates beyond sigma standard deviations of the
// mean. Needs at least three survivors to be meaningful.
func dropOutliers(in []Estimate, sigma float64) (kept, dropped []Estimate) {
	if sigma <= 0 || len(in) < 3 {
		return in, nil
	}
	values := make([]float64, len(in))
	for i, e := range in {
		values[i] = e.ValueCM
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 {
		return in, nil
	}
	for _, e := range in {
		if math.Abs(e.ValueCM-mean) > sigma*std {
			dropped = append(dropped, e)
		} else {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return in, nil
	}
	return kept, dropped
}

// weightedFuse combines survivors by fixed per-method weight.
func weightedFuse(in []Estimate) float64 {
	var sum, wsum float64
	for _, e := range in {
		w := methodWeights[e.Method]
		if w == 0 {
			w = 0.1
		}
		sum += e.ValueCM * w
		wsum += w
	}
	return sum / wsum
}

// confidence blends mean landmark visibility over the joints actually used
// with estimator agreement (inverse relative dispersion).
func confidence(f *pose.Frame, in []Estimate, cfg Config) float64 {
	var visSum float64
	var visN int
	for _, e := range in {
		for _, j := range e.Joints {
			if lm, ok := f.Landmark(j); ok {
				visSum += lm.Visibility
				visN++
			}
		}
	}
	vis := 0.0
	if visN > 0 {
		vis = visSum / float64(visN)
	}

	agreement := 1.0
	if len(in) >= 2 {
		values := make([]float64, len(in))
		for i, e := range in {
			values[i] = e.ValueCM
		}
		mean, std := stat.MeanStdDev(values, nil)
		if mean > 0 {
			// 10% relative spread or more reads as zero agreement.
			agreement = math.Max(0, 1-(std/mean)/0.10)
		}
	}

	return math.Max(0, math.Min(1, 0.4*vis+0.6*agreement))
}

// validate sanity-checks the fused height against head-to-body proportion
// bounds, independently of the fusion weights.
func validate(f *pose.Frame, fusedCM float64, cfg Config) float64 {
	if !f.Visible(cfg.MinVisibility, pose.Nose, pose.LeftAnkle, pose.RightAnkle) {
		return 0.5 // cannot check; neither confirm nor deny
	}
	nose, _ := f.Landmark(pose.Nose)
	la, _ := f.Landmark(pose.LeftAnkle)
	ra, _ := f.Landmark(pose.RightAnkle)
	span := (la.Y+ra.Y)/2 - nose.Y
	if span <= 0 {
		return 0
	}
	impliedHeadCM := fusedCM / headToHeightRatio
	observedHeadCM := span * cfg.FrameHeightCM / (headToHeightRatio - 0.5)
	if observedHeadCM <= 0 {
		return 0
	}
	ratio := impliedHeadCM / observedHeadCM
	// Human head-to-stature proportion tolerates roughly ±25% here.
	dev := math.Abs(ratio - 1)
	return math.Max(0, 1-dev/0.25)
}

// accuracyLabel buckets combined confidence+validation into a coarse,
// honest range instead of a fake point precision.
func accuracyLabel(conf, validation float64) string {
	combined := 0.7*conf + 0.3*validation
	switch {
	case combined >= 0.8:
		return "±2-4cm"
	case combined >= 0.6:
		return "±4-7cm"
	case combined >= 0.4:
		return "±7-12cm"
	default:
		return "±12cm or worse"
	}
}

// SortedMethods returns the surviving method names in deterministic order,
// for logs and details payloads.
func (r Result) SortedMethods() []string {
	names := make([]string, len(r.Estimates))
	for i, e := range r.Estimates {
		names[i] = e.Method
	}
	sort.Strings(names)
	return names
}

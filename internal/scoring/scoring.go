// Package scoring maps raw exercise metrics onto bounded 0–100 scores with
// qualitative tiers and templated feedback. All curves are piecewise and
// every partial score is clamped before it is summed, so no upstream
// anomaly can push a composite outside [0,100].
package scoring

import (
	"fmt"
	"math"
)

// Band is a qualitative tier. Boundaries are identical for every exercise
// so callers can treat tiers uniformly.
type Band string

const (
	BandExcellent        Band = "Excellent"
	BandGood             Band = "Good"
	BandFair             Band = "Fair"
	BandNeedsImprovement Band = "Needs Improvement"
)

// BandFor returns the tier for a composite score.
func BandFor(score float64) Band {
	switch {
	case score >= 85:
		return BandExcellent
	case score >= 70:
		return BandGood
	case score >= 50:
		return BandFair
	default:
		return BandNeedsImprovement
	}
}

// Score is the composed output for one exercise.
type Score struct {
	Value    float64   `json:"value"`
	Band     Band      `json:"band"`
	Feedback []string  `json:"feedback"`
	Parts    []Partial `json:"parts"`
}

// Partial is one weighted component of a composite score.
type Partial struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
	Max    float64 `json:"max"`
}

// ramp linearly maps value from [lo, hi] onto [0, max], clamped.
func ramp(value, lo, hi, max float64) float64 {
	if hi <= lo {
		return 0
	}
	frac := (value - lo) / (hi - lo)
	return max * math.Max(0, math.Min(1, frac))
}

// clampPart bounds a partial into [0, max].
func clampPart(points, max float64) float64 {
	return math.Max(0, math.Min(max, points))
}

// compose clamps each partial, sums, clamps the composite, and assigns the
// band.
func compose(parts []Partial, feedback []string) Score {
	total := 0.0
	for i := range parts {
		parts[i].Points = clampPart(parts[i].Points, parts[i].Max)
		total += parts[i].Points
	}
	total = math.Max(0, math.Min(100, total))
	return Score{
		Value:    total,
		Band:     BandFor(total),
		Feedback: feedback,
		Parts:    parts,
	}
}

// SquatInput is the raw metric set for the squat curve.
type SquatInput struct {
	Reps         int
	PartialReps  int
	Consistency  float64 // 0–100
	PoseDetected bool
}

// ScoreSquat composes rep count (55), consistency (30) and depth
// discipline (15).
func ScoreSquat(in SquatInput) Score {
	if !in.PoseDetected {
		return noActivity()
	}

	parts := []Partial{
		{Name: "repetitions", Max: 55, Points: ramp(float64(in.Reps), 0, 12, 55)},
		{Name: "consistency", Max: 30, Points: ramp(in.Consistency, 0, 100, 30)},
	}

	depth := 15.0
	attempts := in.Reps + in.PartialReps
	if attempts > 0 {
		depth = 15 * float64(in.Reps) / float64(attempts)
	} else {
		depth = 0
	}
	parts = append(parts, Partial{Name: "depth", Max: 15, Points: depth})

	var fb []string
	switch {
	case in.Reps == 0 && in.PartialReps == 0:
		fb = append(fb, "No complete squats detected. Make sure your whole body is in frame.")
	case in.Reps >= 15:
		fb = append(fb, fmt.Sprintf("Strong set: %d full-depth squats.", in.Reps))
	default:
		fb = append(fb, fmt.Sprintf("%d full-depth squats counted.", in.Reps))
	}
	if in.PartialReps > 0 {
		fb = append(fb, fmt.Sprintf("%d partial reps did not reach depth, sit lower before standing up.", in.PartialReps))
	}
	if in.Consistency >= 80 {
		fb = append(fb, "Very even rep tempo.")
	} else if attempts > 1 && in.Consistency < 50 {
		fb = append(fb, "Rep timing is uneven; aim for a steady cadence.")
	}

	return compose(parts, fb)
}

// JumpInput is the raw metric set for the vertical-jump curve.
type JumpInput struct {
	HeightCM       float64
	HangTimeS      float64
	TechniqueScore float64 // 0–100
}

// ScoreJump composes height (50), hang time (25) and technique (25).
func ScoreJump(in JumpInput) Score {
	parts := []Partial{
		{Name: "height", Max: 50, Points: jumpHeightPoints(in.HeightCM)},
		{Name: "hang_time", Max: 25, Points: ramp(in.HangTimeS, 0.1, 0.7, 25)},
		{Name: "technique", Max: 25, Points: ramp(in.TechniqueScore, 0, 100, 25)},
	}

	var fb []string
	switch {
	case in.HeightCM >= 50:
		fb = append(fb, fmt.Sprintf("Excellent jump height: %.0fcm.", in.HeightCM))
	case in.HeightCM >= 30:
		fb = append(fb, fmt.Sprintf("Good jump height: %.0fcm.", in.HeightCM))
	default:
		fb = append(fb, fmt.Sprintf("Jump height %.0fcm: drive harder through the hips on takeoff.", in.HeightCM))
	}
	if in.TechniqueScore < 50 {
		fb = append(fb, "Load a deeper crouch before takeoff for a smoother, higher jump.")
	}

	return compose(parts, fb)
}

// jumpHeightPoints is a piecewise curve: linear ramp to 40cm, a good
// plateau to 55cm, full marks beyond.
func jumpHeightPoints(cm float64) float64 {
	switch {
	case cm <= 0:
		return 0
	case cm < 40:
		return ramp(cm, 0, 40, 42)
	case cm < 55:
		return 42 + ramp(cm, 40, 55, 8)
	default:
		return 50
	}
}

// ShuttleInput is the raw metric set for the agility curve.
type ShuttleInput struct {
	TotalTimeS   float64
	TurnCount    int
	SplitStdDevS float64
	MeanSpeedMS  float64
}

// ScoreShuttle composes elapsed time (60), pacing evenness (20) and turn
// execution (20). Faster is better, so the time ramp is inverted.
func ScoreShuttle(in ShuttleInput) Score {
	timePoints := 0.0
	if in.TotalTimeS > 0 {
		// 9s or faster is full marks, 25s or slower is zero.
		timePoints = ramp(25-in.TotalTimeS, 0, 16, 60)
	}

	pacing := 0.0
	switch {
	case in.TurnCount == 0:
		// No splits were measured; evenness is unknowable, not perfect.
	case in.SplitStdDevS > 0:
		pacing = ramp(1.0-in.SplitStdDevS, 0, 1.0, 20)
	default:
		pacing = 20
	}

	turns := ramp(float64(in.TurnCount), 0, 4, 20)

	parts := []Partial{
		{Name: "time", Max: 60, Points: timePoints},
		{Name: "pacing", Max: 20, Points: pacing},
		{Name: "turns", Max: 20, Points: turns},
	}

	var fb []string
	if in.TotalTimeS > 0 {
		fb = append(fb, fmt.Sprintf("Course completed in %.1fs.", in.TotalTimeS))
	}
	if in.TurnCount == 0 {
		fb = append(fb, "No turns detected, check that the full course is visible.")
	} else if in.SplitStdDevS > 0.8 {
		fb = append(fb, "Split times vary a lot; keep speed through the turns.")
	}

	return compose(parts, fb)
}

// HeightInput is the raw metric set for the height-estimation "score": the
// composite reflects measurement quality, not athletic performance.
type HeightInput struct {
	HeightCM   float64
	Confidence float64 // 0–1
	Validation float64 // 0–1
	Valid      bool
}

// ScoreHeight composes confidence (60) and validation (40).
func ScoreHeight(in HeightInput) Score {
	if !in.Valid {
		s := compose([]Partial{
			{Name: "confidence", Max: 60, Points: 0},
			{Name: "validation", Max: 40, Points: 0},
		}, []string{"Height could not be measured reliably from this frame."})
		return s
	}

	parts := []Partial{
		{Name: "confidence", Max: 60, Points: ramp(in.Confidence, 0, 1, 60)},
		{Name: "validation", Max: 40, Points: ramp(in.Validation, 0, 1, 40)},
	}
	fb := []string{fmt.Sprintf("Estimated height %.0fcm.", in.HeightCM)}
	if in.Confidence < 0.5 {
		fb = append(fb, "Stand fully upright, facing the camera, with the whole body in frame for a tighter estimate.")
	}
	return compose(parts, fb)
}

// noActivity is the structured zero result for detection failure; distinct
// from a low score so callers can tell "did badly" from "could not see".
func noActivity() Score {
	return Score{
		Value:    0,
		Band:     BandNeedsImprovement,
		Feedback: []string{"no activity detected"},
	}
}

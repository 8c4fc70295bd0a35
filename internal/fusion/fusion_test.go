package fusion

import (
	"math"
	"testing"

	"github.com/kinescore/kinescore-agent/internal/pose"
)

// standingFrame poses a subject of the given height (as a fraction of
// FrameHeightCM) upright and fully visible, with proportions matching the
// package's anthropometric ratios so the estimators agree.
func standingFrame(heightCM float64, cfg Config) *pose.Frame {
	f := &pose.Frame{Timestamp: 0, Detected: true, Landmarks: make([]pose.Landmark, pose.JointCount)}
	h := heightCM / cfg.FrameHeightCM // normalized stature

	set := func(j pose.Joint, x, y float64) {
		f.Landmarks[j] = pose.Landmark{X: x, Y: y, Visibility: 0.95}
	}

	crownY := 0.5 - h/2
	ankleY := 0.5 + h/2
	headLen := h / headToHeightRatio
	earSpan := headLen / 1.3

	set(pose.Nose, 0.5, crownY+headLen/2)
	set(pose.LeftEar, 0.5-earSpan/2, crownY+headLen/2)
	set(pose.RightEar, 0.5+earSpan/2, crownY+headLen/2)

	hipY := ankleY - h*legToHeightRatio
	shoulderY := hipY - h*torsoToHeightRatio
	set(pose.LeftShoulder, 0.45, shoulderY)
	set(pose.RightShoulder, 0.55, shoulderY)
	set(pose.LeftHip, 0.46, hipY)
	set(pose.RightHip, 0.54, hipY)

	kneeY := hipY + h*legToHeightRatio/2
	set(pose.LeftKnee, 0.46, kneeY)
	set(pose.RightKnee, 0.54, kneeY)
	set(pose.LeftAnkle, 0.46, ankleY)
	set(pose.RightAnkle, 0.54, ankleY)

	return f
}

func TestEstimateHeight_AgreementGivesHighConfidence(t *testing.T) {
	cfg := DefaultConfig()
	res := EstimateHeight(standingFrame(175, cfg), cfg)

	if !res.Valid {
		t.Fatalf("result invalid: %+v", res)
	}
	if math.Abs(res.HeightCM-175) > 12 {
		t.Errorf("HeightCM = %.1f, want within 12 of 175", res.HeightCM)
	}
	if res.Confidence < 0.6 {
		t.Errorf("Confidence = %.2f, want >= 0.6 for agreeing estimators", res.Confidence)
	}
	if len(res.Estimates) < 3 {
		t.Errorf("only %d estimators survived: %v", len(res.Estimates), res.SortedMethods())
	}
}

func TestEstimateHeight_NoLandmarksFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	f := &pose.Frame{Timestamp: 0, Detected: false}
	res := EstimateHeight(f, cfg)

	if res.Valid {
		t.Error("result should be invalid with no landmarks")
	}
	if res.HeightCM != cfg.FallbackCM {
		t.Errorf("HeightCM = %.1f, want fallback %.1f", res.HeightCM, cfg.FallbackCM)
	}
	if res.Confidence != 0 {
		t.Errorf("Confidence = %.2f, want 0", res.Confidence)
	}
	if res.AccuracyRange != "unknown" {
		t.Errorf("AccuracyRange = %q, want unknown", res.AccuracyRange)
	}
}

func TestEstimateHeight_ImplausibleEstimatesDropped(t *testing.T) {
	cfg := DefaultConfig()
	f := standingFrame(175, cfg)

	// Shrink the ear span so the head estimator claims a giant; it must be
	// discarded by the plausibility band, not averaged in.
	nose, _ := f.Landmark(pose.Nose)
	f.Landmarks[pose.LeftEar] = pose.Landmark{X: 0.1, Y: nose.Y, Visibility: 0.95}
	f.Landmarks[pose.RightEar] = pose.Landmark{X: 0.9, Y: nose.Y, Visibility: 0.95}

	res := EstimateHeight(f, cfg)
	for _, e := range res.Estimates {
		if e.Method == "head_unit" {
			t.Error("head_unit estimate should have been dropped as implausible")
		}
	}
	if !res.Valid {
		t.Errorf("fused result should still be valid: %+v", res)
	}
}

func TestEstimateHeight_DisagreementLowersConfidence(t *testing.T) {
	cfg := DefaultConfig()
	agree := EstimateHeight(standingFrame(175, cfg), cfg)

	// Stretch the torso so that estimator disagrees hard but stays inside
	// the plausibility band.
	f := standingFrame(175, cfg)
	ls, _ := f.Landmark(pose.LeftShoulder)
	rs, _ := f.Landmark(pose.RightShoulder)
	f.Landmarks[pose.LeftShoulder] = pose.Landmark{X: ls.X, Y: ls.Y - 0.05, Visibility: 0.95}
	f.Landmarks[pose.RightShoulder] = pose.Landmark{X: rs.X, Y: rs.Y - 0.05, Visibility: 0.95}
	disagree := EstimateHeight(f, cfg)

	if disagree.Confidence >= agree.Confidence {
		t.Errorf("Confidence with disagreement (%.2f) not below agreement (%.2f)",
			disagree.Confidence, agree.Confidence)
	}
}

func TestEstimateHeight_FusedWithinPlausibilityBand(t *testing.T) {
	cfg := DefaultConfig()
	for _, cm := range []float64{150, 165, 180, 200} {
		res := EstimateHeight(standingFrame(cm, cfg), cfg)
		if res.HeightCM < cfg.MinHeightCM || res.HeightCM > cfg.MaxHeightCM {
			t.Errorf("fused height %.1f for subject %.0f outside plausibility band", res.HeightCM, cm)
		}
	}
}

func TestEstimateHeight_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	f := standingFrame(170, cfg)
	a := EstimateHeight(f, cfg)
	b := EstimateHeight(f, cfg)
	if a.HeightCM != b.HeightCM || a.Confidence != b.Confidence {
		t.Errorf("repeated estimation differs: %.3f/%.3f vs %.3f/%.3f",
			a.HeightCM, a.Confidence, b.HeightCM, b.Confidence)
	}
}

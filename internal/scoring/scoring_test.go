package scoring

import (
	"strings"
	"testing"
)

func TestScoreSquat_Clamped(t *testing.T) {
	cases := []SquatInput{
		{Reps: 1000, PartialReps: 0, Consistency: 500, PoseDetected: true},
		{Reps: -5, PartialReps: -2, Consistency: -100, PoseDetected: true},
		{Reps: 8, PartialReps: 0, Consistency: 95, PoseDetected: true},
	}
	for _, in := range cases {
		s := ScoreSquat(in)
		if s.Value < 0 || s.Value > 100 {
			t.Errorf("ScoreSquat(%+v) = %.1f, outside [0,100]", in, s.Value)
		}
		for _, p := range s.Parts {
			if p.Points < 0 || p.Points > p.Max {
				t.Errorf("partial %s = %.1f outside [0,%.1f]", p.Name, p.Points, p.Max)
			}
		}
	}
}

func TestScoreSquat_GoodSetLandsGoodBand(t *testing.T) {
	s := ScoreSquat(SquatInput{Reps: 15, PartialReps: 0, Consistency: 90, PoseDetected: true})
	if s.Band != BandGood && s.Band != BandExcellent {
		t.Errorf("band = %s (score %.1f), want Good or better", s.Band, s.Value)
	}
}

func TestScoreSquat_NoPose(t *testing.T) {
	s := ScoreSquat(SquatInput{PoseDetected: false})
	if s.Value != 0 {
		t.Errorf("Value = %.1f, want 0 when no pose detected", s.Value)
	}
	if len(s.Feedback) == 0 || s.Feedback[0] != "no activity detected" {
		t.Errorf("Feedback = %v, want no-activity signal", s.Feedback)
	}
}

func TestScoreSquat_PartialsFlaggedInFeedback(t *testing.T) {
	s := ScoreSquat(SquatInput{Reps: 5, PartialReps: 3, Consistency: 70, PoseDetected: true})
	found := false
	for _, fb := range s.Feedback {
		if strings.Contains(fb, "partial") {
			found = true
		}
	}
	if !found {
		t.Errorf("no partial-rep feedback in %v", s.Feedback)
	}
}

func TestScoreJump_ClampedOnAbsurdInput(t *testing.T) {
	cases := []JumpInput{
		{HeightCM: 1000, HangTimeS: 50, TechniqueScore: 900},
		{HeightCM: -10, HangTimeS: -1, TechniqueScore: -50},
	}
	for _, in := range cases {
		s := ScoreJump(in)
		if s.Value < 0 || s.Value > 100 {
			t.Errorf("ScoreJump(%+v) = %.1f, outside [0,100]", in, s.Value)
		}
	}
}

func TestScoreJump_MonotonicInHeight(t *testing.T) {
	prev := -1.0
	for _, cm := range []float64{10, 25, 40, 55, 70} {
		s := ScoreJump(JumpInput{HeightCM: cm, HangTimeS: 0.4, TechniqueScore: 70})
		if s.Value < prev {
			t.Errorf("score %.1f at %vcm dropped below %.1f", s.Value, cm, prev)
		}
		prev = s.Value
	}
}

func TestScoreShuttle_FasterIsBetter(t *testing.T) {
	fast := ScoreShuttle(ShuttleInput{TotalTimeS: 10, TurnCount: 4, SplitStdDevS: 0.2})
	slow := ScoreShuttle(ShuttleInput{TotalTimeS: 22, TurnCount: 4, SplitStdDevS: 0.2})
	if fast.Value <= slow.Value {
		t.Errorf("fast run scored %.1f, not above slow run %.1f", fast.Value, slow.Value)
	}
}

func TestScoreShuttle_ZeroTurnsNoPacingCredit(t *testing.T) {
	s := ScoreShuttle(ShuttleInput{TotalTimeS: 12, TurnCount: 0})
	for _, p := range s.Parts {
		if p.Name == "pacing" && p.Points != 0 {
			t.Errorf("pacing = %.1f points with no measured splits, want 0", p.Points)
		}
	}

	even := ScoreShuttle(ShuttleInput{TotalTimeS: 12, TurnCount: 4, SplitStdDevS: 0.1})
	for _, p := range even.Parts {
		if p.Name == "pacing" && p.Points <= 0 {
			t.Errorf("pacing = %.1f points for measured even splits, want > 0", p.Points)
		}
	}
}

func TestScoreShuttle_ZeroTurnsFeedback(t *testing.T) {
	s := ScoreShuttle(ShuttleInput{TotalTimeS: 12, TurnCount: 0})
	found := false
	for _, fb := range s.Feedback {
		if strings.Contains(fb, "No turns") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing zero-turn feedback in %v", s.Feedback)
	}
}

func TestScoreHeight_InvalidIsZero(t *testing.T) {
	s := ScoreHeight(HeightInput{Valid: false, HeightCM: 999})
	if s.Value != 0 {
		t.Errorf("Value = %.1f, want 0 for invalid estimate", s.Value)
	}
}

func TestBandBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Band
	}{
		{95, BandExcellent},
		{85, BandExcellent},
		{84.9, BandGood},
		{70, BandGood},
		{69.9, BandFair},
		{50, BandFair},
		{49.9, BandNeedsImprovement},
		{0, BandNeedsImprovement},
	}
	for _, c := range cases {
		if got := BandFor(c.score); got != c.want {
			t.Errorf("BandFor(%.1f) = %s, want %s", c.score, got, c.want)
		}
	}
}

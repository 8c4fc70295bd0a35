package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997002997},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.input); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func writeTempVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate_Accepts(t *testing.T) {
	path := writeTempVideo(t, "squat.mp4")
	probe := &ProbeResult{Duration: 20, Width: 1080, Height: 1920}
	if err := Validate(path, probe, DefaultLimits()); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_RejectsExtension(t *testing.T) {
	path := writeTempVideo(t, "notes.txt")
	probe := &ProbeResult{Duration: 20, Width: 1080, Height: 1920}
	err := Validate(path, probe, DefaultLimits())
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Validate() = %v, want unsupported-format error", err)
	}
}

func TestValidate_RejectsDurationBounds(t *testing.T) {
	path := writeTempVideo(t, "clip.mp4")
	lim := DefaultLimits()

	short := &ProbeResult{Duration: 1, Width: 1080, Height: 1920}
	if err := Validate(path, short, lim); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("short clip: Validate() = %v, want too-short error", err)
	}

	long := &ProbeResult{Duration: 900, Width: 1080, Height: 1920}
	if err := Validate(path, long, lim); err == nil || !strings.Contains(err.Error(), "too long") {
		t.Errorf("long clip: Validate() = %v, want too-long error", err)
	}
}

func TestValidate_RejectsLowResolution(t *testing.T) {
	path := writeTempVideo(t, "tiny.mp4")
	probe := &ProbeResult{Duration: 20, Width: 160, Height: 120}
	err := Validate(path, probe, DefaultLimits())
	if err == nil || !strings.Contains(err.Error(), "resolution") {
		t.Errorf("Validate() = %v, want resolution error", err)
	}
}

func TestValidate_UnknownResolutionPasses(t *testing.T) {
	// Some containers omit stream dimensions; that alone must not reject.
	path := writeTempVideo(t, "clip.mov")
	probe := &ProbeResult{Duration: 20}
	if err := Validate(path, probe, DefaultLimits()); err != nil {
		t.Errorf("Validate() = %v, want nil when dimensions unknown", err)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	err := Validate(filepath.Join(t.TempDir(), "absent.mp4"), &ProbeResult{Duration: 20}, DefaultLimits())
	if err == nil {
		t.Error("Validate() = nil, want error for missing file")
	}
}

// Package media validates input videos before they are handed to the pose
// detector: container probing via ffprobe plus the cheap structural checks
// (existence, extension, duration and resolution bounds) that reject
// unusable uploads without spending detector time on them.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Prober reads container-level facts from a video file.
type Prober interface {
	Probe(ctx context.Context, filePath string) (*ProbeResult, error)
}

// ProbeResult holds the container facts the agent cares about.
type ProbeResult struct {
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec"`
	Bitrate   int64   `json:"bitrate"`
	FrameRate float64 `json:"frame_rate"`
}

// FFprobe is the production Prober, shelling out to the ffprobe binary.
type FFprobe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFprobe creates a prober. An empty binary means "ffprobe" from PATH.
func NewFFprobe(binary string, logger *slog.Logger) *FFprobe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{binary: binary, timeout: 30 * time.Second, logger: logger}
}

// ffprobe JSON shapes, reduced to the fields we read.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// Probe runs ffprobe and extracts the first video stream's facts.
func (f *FFprobe) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	data, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", filepath.Base(filePath), err)
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe output: %w", err)
	}

	res := &ProbeResult{}
	res.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	res.Bitrate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)
	for _, s := range raw.Streams {
		if s.CodecType != "video" {
			continue
		}
		res.Width = s.Width
		res.Height = s.Height
		res.Codec = s.CodecName
		res.FrameRate = parseFrameRate(s.AvgFrameRate)
		break
	}

	f.logger.Info("probed video",
		"file", filepath.Base(filePath),
		"duration_s", res.Duration,
		"resolution", fmt.Sprintf("%dx%d", res.Width, res.Height),
		"codec", res.Codec,
	)
	return res, nil
}

// parseFrameRate turns ffprobe's "30000/1001" rational into a float.
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// Limits bound what the agent accepts for analysis.
type Limits struct {
	Extensions  []string
	MinDuration float64
	MaxDuration float64
	MinWidth    int
	MinHeight   int
}

// DefaultLimits accepts phone footage of a single exercise attempt.
func DefaultLimits() Limits {
	return Limits{
		Extensions:  []string{".mp4", ".mov", ".avi", ".mkv", ".webm"},
		MinDuration: 3,
		MaxDuration: 300,
		MinWidth:    320,
		MinHeight:   320,
	}
}

// Validate runs the structural checks against a probed file. Errors are
// user-facing diagnostics, one per failure mode.
func Validate(filePath string, probe *ProbeResult, lim Limits) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("video file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a video", filepath.Base(filePath))
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	ok := false
	for _, e := range lim.Extensions {
		if ext == e {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("unsupported video format %q", ext)
	}

	if probe.Duration < lim.MinDuration {
		return fmt.Errorf("video too short: %.1fs, need at least %.0fs", probe.Duration, lim.MinDuration)
	}
	if probe.Duration > lim.MaxDuration {
		return fmt.Errorf("video too long: %.0fs, limit is %.0fs", probe.Duration, lim.MaxDuration)
	}
	if probe.Width > 0 && (probe.Width < lim.MinWidth || probe.Height < lim.MinHeight) {
		return fmt.Errorf("resolution %dx%d too low for pose tracking", probe.Width, probe.Height)
	}
	return nil
}

// StubProber returns fixed facts without touching ffprobe; used in tests
// and on hosts without ffmpeg installed.
type StubProber struct {
	Result ProbeResult
	logger *slog.Logger
}

// NewStubProber creates a stub that answers every probe with result.
func NewStubProber(result ProbeResult, logger *slog.Logger) *StubProber {
	return &StubProber{Result: result, logger: logger}
}

func (s *StubProber) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	s.logger.Info("probe stub: returning fixed result", "path", filepath.Base(filePath))
	r := s.Result
	return &r, nil
}

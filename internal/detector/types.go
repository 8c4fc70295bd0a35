// Package detector executes the kinescore-pose-detector Python CLI as a
// subprocess (doctor, pose) and parses its JSON output into landmark
// sequences for the analysis engines.
package detector

import (
	"time"

	"github.com/kinescore/kinescore-agent/internal/pose"
)

// Capabilities represents what the installed detector environment can do,
// as reported by the `doctor --json` command.
type Capabilities struct {
	PackageVersion string             `json:"package_version"`
	Python         PythonInfo         `json:"python"`
	Dependencies   map[string]DepInfo `json:"dependencies"`
	Executables    map[string]DepInfo `json:"executables"`
	GPU            GPUInfo            `json:"gpu"`
	Summary        SummaryInfo        `json:"summary"`

	HasPose  bool      `json:"-"`
	HasProbe bool      `json:"-"`
	ProbedAt time.Time `json:"-"`
}

// PythonInfo holds Python runtime information.
type PythonInfo struct {
	Version    string `json:"version"`
	Executable string `json:"executable"`
}

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GPUInfo holds GPU availability information.
type GPUInfo struct {
	CUDAAvailable bool   `json:"cuda_available"`
	DeviceCount   int    `json:"device_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SummaryInfo summarises overall dependency status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// RunResult is the structured outcome of executing a detector subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"` // path to the --out JSON file
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// OutputMeta holds the required metadata fields the agent validates in
// every detector JSON output file.
type OutputMeta struct {
	SchemaVersion   string `json:"schema_version"`
	DetectorVersion string `json:"detector_version"`
	ModelVersion    string `json:"model_version"`
}

// RequiredFieldsPresent checks the hard invariants the agent enforces.
func (m OutputMeta) RequiredFieldsPresent() bool {
	return m.SchemaVersion != "" && m.DetectorVersion != "" && m.ModelVersion != ""
}

// PoseOutput is the full payload of a pose run: metadata, video facts, and
// the per-frame landmark records.
type PoseOutput struct {
	OutputMeta
	VideoPath  string        `json:"video_path"`
	FPS        float64       `json:"fps"`
	FrameCount int           `json:"frame_count"`
	DurationS  float64       `json:"duration_s"`
	Frames     []FrameRecord `json:"frames"`
}

// FrameRecord is one frame as serialised by the detector CLI.
type FrameRecord struct {
	Timestamp float64          `json:"timestamp"`
	Detected  bool             `json:"detected"`
	Landmarks []LandmarkRecord `json:"landmarks,omitempty"`
}

// LandmarkRecord is one joint as serialised by the detector CLI.
type LandmarkRecord struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility"`
}

// Sequence converts the raw payload into the analysis data model. Frames
// with a wrong landmark count are demoted to non-detections rather than
// fed to the engines half-formed.
func (p *PoseOutput) Sequence() *pose.Sequence {
	seq := &pose.Sequence{Frames: make([]pose.Frame, 0, len(p.Frames))}
	for _, fr := range p.Frames {
		f := pose.Frame{Timestamp: fr.Timestamp, Detected: fr.Detected}
		if fr.Detected && len(fr.Landmarks) == int(pose.JointCount) {
			f.Landmarks = make([]pose.Landmark, pose.JointCount)
			for i, lm := range fr.Landmarks {
				f.Landmarks[i] = pose.Landmark{X: lm.X, Y: lm.Y, Z: lm.Z, Visibility: lm.Visibility}
			}
		} else {
			f.Detected = false
		}
		seq.Frames = append(seq.Frames, f)
	}
	return seq
}

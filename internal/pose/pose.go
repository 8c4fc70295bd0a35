// Package pose holds the landmark data model shared by every analysis
// engine: per-frame joint positions as emitted by the pose detector, plus
// the geometry helpers (joint angles, centroids, visibility gating) the
// engines compute from them.
//
// Coordinates are normalized to [0,1] relative to the frame, with Y
// increasing downward as in image space. Z is detector-relative depth and
// may be zero when the detector runs in 2D mode.
package pose

import "math"

// Landmark is one joint position in one frame.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility"`
}

// Frame is the detector output for a single processed video frame.
// Landmarks is indexed by Joint; a frame where the detector saw no person
// has Detected=false and an empty landmark slice.
type Frame struct {
	Timestamp float64    `json:"timestamp"`
	Detected  bool       `json:"detected"`
	Landmarks []Landmark `json:"landmarks,omitempty"`
}

// Landmark returns the landmark for j, and false when the frame has no
// detection or the joint index is out of range.
func (f *Frame) Landmark(j Joint) (Landmark, bool) {
	if !f.Detected || int(j) >= len(f.Landmarks) {
		return Landmark{}, false
	}
	return f.Landmarks[j], true
}

// Visible reports whether every listed joint is present with visibility at
// or above minVis.
func (f *Frame) Visible(minVis float64, joints ...Joint) bool {
	for _, j := range joints {
		lm, ok := f.Landmark(j)
		if !ok || lm.Visibility < minVis {
			return false
		}
	}
	return true
}

// Sequence is one video's worth of frames, ordered by strictly increasing
// timestamp. Frames without a detection stay in the sequence so elapsed
// time is preserved; consumers skip them.
type Sequence struct {
	Frames []Frame `json:"frames"`
}

// DetectedCount returns the number of frames with a person detected.
func (s *Sequence) DetectedCount() int {
	n := 0
	for i := range s.Frames {
		if s.Frames[i].Detected {
			n++
		}
	}
	return n
}

// Duration returns the time span covered by the sequence in seconds.
func (s *Sequence) Duration() float64 {
	if len(s.Frames) < 2 {
		return 0
	}
	return s.Frames[len(s.Frames)-1].Timestamp - s.Frames[0].Timestamp
}

// Midpoint returns the point halfway between two landmarks.
func Midpoint(a, b Landmark) Landmark {
	return Landmark{
		X:          (a.X + b.X) / 2,
		Y:          (a.Y + b.Y) / 2,
		Z:          (a.Z + b.Z) / 2,
		Visibility: math.Min(a.Visibility, b.Visibility),
	}
}

// Distance returns the 2D euclidean distance between two landmarks in
// normalized units.
func Distance(a, b Landmark) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// JointAngle returns the interior angle at joint b formed by segments b-a
// and b-c, in degrees within [0,180]. Uses the law of cosines; degenerate
// (zero-length) segments return 180 so a straight limb is assumed rather
// than a spurious deep bend.
func JointAngle(a, b, c Landmark) float64 {
	ab := Distance(a, b)
	bc := Distance(b, c)
	ac := Distance(a, c)
	if ab == 0 || bc == 0 {
		return 180
	}
	cos := (ab*ab + bc*bc - ac*ac) / (2 * ab * bc)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// HipCenter returns the midpoint of both hips, and false when either hip is
// below minVis.
func (f *Frame) HipCenter(minVis float64) (Landmark, bool) {
	if !f.Visible(minVis, LeftHip, RightHip) {
		return Landmark{}, false
	}
	l, _ := f.Landmark(LeftHip)
	r, _ := f.Landmark(RightHip)
	return Midpoint(l, r), true
}

// AnkleCenter returns the midpoint of both ankles, and false when either
// ankle is below minVis.
func (f *Frame) AnkleCenter(minVis float64) (Landmark, bool) {
	if !f.Visible(minVis, LeftAnkle, RightAnkle) {
		return Landmark{}, false
	}
	l, _ := f.Landmark(LeftAnkle)
	r, _ := f.Landmark(RightAnkle)
	return Midpoint(l, r), true
}

// KneeAngle returns the mean of both knee angles (hip-knee-ankle), falling
// back to whichever side is visible. The second return is false when
// neither side has all three joints at minVis.
func (f *Frame) KneeAngle(minVis float64) (float64, bool) {
	var sum float64
	var n int
	if f.Visible(minVis, LeftHip, LeftKnee, LeftAnkle) {
		h, _ := f.Landmark(LeftHip)
		k, _ := f.Landmark(LeftKnee)
		a, _ := f.Landmark(LeftAnkle)
		sum += JointAngle(h, k, a)
		n++
	}
	if f.Visible(minVis, RightHip, RightKnee, RightAnkle) {
		h, _ := f.Landmark(RightHip)
		k, _ := f.Landmark(RightKnee)
		a, _ := f.Landmark(RightAnkle)
		sum += JointAngle(h, k, a)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

package pose

// Joint identifies one of the 33 canonical body landmarks emitted by the
// pose detector. Values follow the detector's output order, so a joint can
// be used directly as an index into its landmark array.
type Joint int

const (
	Nose Joint = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	JointCount = 33
)

var jointNames = map[Joint]string{
	Nose:           "nose",
	LeftEyeInner:   "left_eye_inner",
	LeftEye:        "left_eye",
	LeftEyeOuter:   "left_eye_outer",
	RightEyeInner:  "right_eye_inner",
	RightEye:       "right_eye",
	RightEyeOuter:  "right_eye_outer",
	LeftEar:        "left_ear",
	RightEar:       "right_ear",
	MouthLeft:      "mouth_left",
	MouthRight:     "mouth_right",
	LeftShoulder:   "left_shoulder",
	RightShoulder:  "right_shoulder",
	LeftElbow:      "left_elbow",
	RightElbow:     "right_elbow",
	LeftWrist:      "left_wrist",
	RightWrist:     "right_wrist",
	LeftPinky:      "left_pinky",
	RightPinky:     "right_pinky",
	LeftIndex:      "left_index",
	RightIndex:     "right_index",
	LeftThumb:      "left_thumb",
	RightThumb:     "right_thumb",
	LeftHip:        "left_hip",
	RightHip:       "right_hip",
	LeftKnee:       "left_knee",
	RightKnee:      "right_knee",
	LeftAnkle:      "left_ankle",
	RightAnkle:     "right_ankle",
	LeftHeel:       "left_heel",
	RightHeel:      "right_heel",
	LeftFootIndex:  "left_foot_index",
	RightFootIndex: "right_foot_index",
}

func (j Joint) String() string {
	if name, ok := jointNames[j]; ok {
		return name
	}
	return "unknown"
}

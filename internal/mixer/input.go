package mixer

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Input names one mixer input channel. Channels are arranged in groups of
// eight; every channel takes a command in ±500.
type Input uint8

const inputGroupSize = 8

// Group 0: stabilised flight controls.
const (
	InputRoll Input = iota
	InputPitch
	InputYaw
	InputThrottle
	InputFlaps
	InputSpoilers
	InputAirbrakes
	InputLandingGear
)

// Group 2: gimbal, derived from the attitude.
const (
	InputGimbalPitch Input = 2*inputGroupSize + iota
	InputGimbalRoll
	InputGimbalYaw
)

// Group 3: receiver passthrough.
const (
	InputRCRoll Input = 3*inputGroupSize + iota
	InputRCPitch
	InputRCYaw
	InputRCThrottle
	InputRCAux1
	InputRCAux2
	InputRCAux3
	InputRCAux4
)

// Group 4: direct motor commands, used while disarmed.
const (
	InputMotor1 Input = 4*inputGroupSize + iota
	InputMotor2
	InputMotor3
	InputMotor4
	InputMotor5
	InputMotor6
	InputMotor7
	InputMotor8
)

// InputCount is the size of the input vector.
const InputCount = 5 * inputGroupSize

// InputMin and InputMax bound every input command.
const (
	InputMin = -500
	InputMax = 500
)

var inputNames = map[Input]string{
	InputRoll:        "roll",
	InputPitch:       "pitch",
	InputYaw:         "yaw",
	InputThrottle:    "throttle",
	InputFlaps:       "flaps",
	InputSpoilers:    "spoilers",
	InputAirbrakes:   "airbrakes",
	InputLandingGear: "landing_gear",
	InputGimbalPitch: "gimbal_pitch",
	InputGimbalRoll:  "gimbal_roll",
	InputGimbalYaw:   "gimbal_yaw",
	InputRCRoll:      "rc_roll",
	InputRCPitch:     "rc_pitch",
	InputRCYaw:       "rc_yaw",
	InputRCThrottle:  "rc_throttle",
	InputRCAux1:      "rc_aux1",
	InputRCAux2:      "rc_aux2",
	InputRCAux3:      "rc_aux3",
	InputRCAux4:      "rc_aux4",
	InputMotor1:      "motor1",
	InputMotor2:      "motor2",
	InputMotor3:      "motor3",
	InputMotor4:      "motor4",
	InputMotor5:      "motor5",
	InputMotor6:      "motor6",
	InputMotor7:      "motor7",
	InputMotor8:      "motor8",
}

func (in Input) String() string {
	if s, ok := inputNames[in]; ok {
		return s
	}
	return "unknown"
}

// ParseInput maps a channel name to its value.
func ParseInput(s string) (Input, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for in, name := range inputNames {
		if name == s {
			return in, nil
		}
	}
	return 0, errors.Errorf("unknown mixer input %q", s)
}

func (in *Input) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseInput(s)
	if err != nil {
		return err
	}
	*in = v
	return nil
}

func (in Input) MarshalYAML() (interface{}, error) {
	return in.String(), nil
}

// restsLow reports whether the channel idles at the bottom of its range
// rather than at the centre.
func (in Input) restsLow() bool {
	switch {
	case in == InputThrottle, in == InputRCThrottle:
		return true
	case in >= InputMotor1 && in <= InputMotor8:
		return true
	}
	return false
}

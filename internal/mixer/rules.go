package mixer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Output capacities. Motor slots come first, servo slots follow.
const (
	MaxMotors   = 8
	MaxServos   = 8
	OutputCount = MaxMotors + MaxServos
	MaxRules    = 64
)

// ScaleUnity is the rule scale that passes an input through unchanged.
const ScaleUnity = 1000

// Output names one actuator slot.
type Output uint8

// Motor returns the slot of motor i, counted from zero.
func Motor(i int) Output { return Output(i) }

// Servo returns the slot of servo i, counted from zero.
func Servo(i int) Output { return Output(MaxMotors + i) }

// IsMotor reports whether the slot drives a motor.
func (o Output) IsMotor() bool { return o < MaxMotors }

// IsServo reports whether the slot drives a servo.
func (o Output) IsServo() bool { return o >= MaxMotors && o < OutputCount }

func (o Output) String() string {
	switch {
	case o.IsMotor():
		return fmt.Sprintf("motor%d", int(o)+1)
	case o.IsServo():
		return fmt.Sprintf("servo%d", int(o)-MaxMotors+1)
	}
	return "unknown"
}

// ParseOutput accepts "motorN" or "servoN", N counted from one.
func ParseOutput(s string) (Output, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var prefix string
	var limit int
	var slot func(int) Output
	switch {
	case strings.HasPrefix(s, "motor"):
		prefix, limit, slot = "motor", MaxMotors, Motor
	case strings.HasPrefix(s, "servo"):
		prefix, limit, slot = "servo", MaxServos, Servo
	default:
		return 0, errors.Errorf("unknown mixer output %q", s)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, prefix))
	if err != nil || n < 1 || n > limit {
		return 0, errors.Errorf("mixer output %q out of range %s1..%s%d", s, prefix, prefix, limit)
	}
	return slot(n - 1), nil
}

func (o *Output) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseOutput(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (o Output) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}

// Rule adds input·scale/1000 to an output.
type Rule struct {
	Output Output `yaml:"output"`
	Input  Input  `yaml:"input"`
	Scale  int16  `yaml:"scale"`
}

func (r Rule) valid() bool {
	return r.Output < OutputCount && r.Input < InputCount
}

// RuleSet is a fixed capacity list of rules.
type RuleSet struct {
	rules [MaxRules]Rule
	n     int
}

// Add appends a rule. It reports false when the set is full.
func (s *RuleSet) Add(r Rule) bool {
	if s.n >= MaxRules {
		return false
	}
	s.rules[s.n] = r
	s.n++
	return true
}

// Len returns the number of rules.
func (s *RuleSet) Len() int { return s.n }

// Rules returns the rules in order. The slice aliases the set.
func (s *RuleSet) Rules() []Rule { return s.rules[:s.n] }

// Reset empties the set.
func (s *RuleSet) Reset() { s.n = 0 }

// counts derives how many motors and servos the rules drive from the
// highest slot each group references.
func (s *RuleSet) counts() (motors, servos int) {
	for _, r := range s.Rules() {
		if !r.valid() {
			continue
		}
		if r.Output.IsMotor() {
			motors = max(motors, int(r.Output)+1)
		} else {
			servos = max(servos, int(r.Output)-MaxMotors+1)
		}
	}
	return motors, servos
}

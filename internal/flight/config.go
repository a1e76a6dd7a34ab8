// Package flight runs the control loop and the arming state machine around
// the estimator, the controller and the mixer.
package flight

import (
	"time"

	"github.com/pkg/errors"

	"github.com/BryanSouza91/WingFC/internal/pid"
)

// Config holds the supervisor settings.
type Config struct {
	Mode    pid.Mode `yaml:"mode"`
	AirMode bool     `yaml:"air_mode"`

	// MaxArmAngle is the steepest attitude that still allows arming, in degrees.
	MaxArmAngle uint8 `yaml:"max_arm_angle"`

	// MagPollDivider reads the compass once every n cycles. Zero disables it.
	MagPollDivider int `yaml:"mag_poll_divider"`

	// InitDelay keeps the outputs stopped after boot so that ESCs can
	// initialise.
	InitDelay time.Duration `yaml:"init_delay"`
}

// DefaultConfig returns rate mode with a two second ESC start up.
func DefaultConfig() Config {
	return Config{
		Mode:           pid.ModeAcro,
		MaxArmAngle:    25,
		MagPollDivider: 50,
		InitDelay:      2 * time.Second,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.MaxArmAngle > 180:
		return errors.Errorf("max_arm_angle %d out of range 0..180", c.MaxArmAngle)
	case c.MagPollDivider < 0:
		return errors.Errorf("mag_poll_divider %d must not be negative", c.MagPollDivider)
	case c.InitDelay < 0:
		return errors.Errorf("init_delay %s must not be negative", c.InitDelay)
	}
	return nil
}

// Package rc holds the receiver channel store, the serial receiver
// protocols and the mapping from pulse widths to stick commands.
package rc

import (
	"time"

	"github.com/pkg/errors"
)

// NumChannels is the number of RC channels kept in the store.
const NumChannels = 18

// Stick indexes into Config.Map.
const (
	Roll = iota
	Pitch
	Yaw
	Throttle
)

// Config describes the receiver and the sticks.
type Config struct {
	Protocol Protocol `yaml:"protocol"`

	// Map gives the receiver channel of roll, pitch, yaw and throttle.
	Map [4]uint8 `yaml:"map"`

	MidRC       uint16 `yaml:"midrc"`
	MinCheck    uint16 `yaml:"mincheck"`
	MaxCheck    uint16 `yaml:"maxcheck"`
	Deadband    uint16 `yaml:"deadband"`
	YawDeadband uint16 `yaml:"yaw_deadband"`
	MinRX       uint16 `yaml:"min_rx"`
	MaxRX       uint16 `yaml:"max_rx"`

	ArmChannel       uint8  `yaml:"arm_channel"`
	CalibrateChannel uint8  `yaml:"calibrate_channel"`
	HighRXValue      uint16 `yaml:"high_rx_value"` // switch threshold

	FailsafeTimeout time.Duration `yaml:"failsafe_timeout"`
}

// DefaultConfig is an AETR receiver with the switches on channels 5 and 6.
func DefaultConfig() Config {
	return Config{
		Protocol:         ProtocolIBus,
		Map:              [4]uint8{0, 1, 3, 2},
		MidRC:            1500,
		MinCheck:         1100,
		MaxCheck:         1900,
		Deadband:         20,
		YawDeadband:      20,
		MinRX:            988,
		MaxRX:            2012,
		ArmChannel:       4,
		CalibrateChannel: 5,
		HighRXValue:      1800,
		FailsafeTimeout:  500 * time.Millisecond,
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	for i, ch := range c.Map {
		if ch >= NumChannels {
			return errors.Errorf("stick %d mapped to channel %d, have %d", i, ch, NumChannels)
		}
	}
	switch {
	case c.ArmChannel >= NumChannels:
		return errors.Errorf("arm channel %d out of range", c.ArmChannel)
	case c.CalibrateChannel >= NumChannels:
		return errors.Errorf("calibrate channel %d out of range", c.CalibrateChannel)
	case c.MinRX >= c.MaxRX:
		return errors.Errorf("min_rx %d not below max_rx %d", c.MinRX, c.MaxRX)
	case c.MidRC <= c.MinRX || c.MidRC >= c.MaxRX:
		return errors.Errorf("midrc %d outside %d..%d", c.MidRC, c.MinRX, c.MaxRX)
	case c.MinCheck >= c.MaxCheck:
		return errors.Errorf("mincheck %d not below maxcheck %d", c.MinCheck, c.MaxCheck)
	case c.MaxCheck >= 2000:
		return errors.Errorf("maxcheck %d must be below 2000", c.MaxCheck)
	case c.FailsafeTimeout <= 0:
		return errors.New("failsafe timeout must be positive")
	}
	return nil
}

package imu

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/BryanSouza91/WingFC/internal/filter"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

// FastConvergence selects when the proportional gain is boosted to lock on
// to the initial attitude quickly.
type FastConvergence uint8

const (
	// FastConvergenceOff never boosts.
	FastConvergenceOff FastConvergence = iota
	// FastConvergenceBootWindow boosts while disarmed and within the first
	// FastConvergenceWindow of estimator time.
	FastConvergenceBootWindow
	// FastConvergenceUntilArmed boosts whenever the craft is disarmed.
	FastConvergenceUntilArmed
	// FastConvergenceUntilCalibrated boosts while any sensor calibration is running.
	FastConvergenceUntilCalibrated
)

var fastConvergenceNames = []string{"off", "boot_window", "until_armed", "until_calibrated"}

func (f FastConvergence) String() string {
	if int(f) < len(fastConvergenceNames) {
		return fastConvergenceNames[f]
	}
	return "unknown"
}

// ParseFastConvergence maps a policy name to its value.
func ParseFastConvergence(s string) (FastConvergence, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range fastConvergenceNames {
		if name == s {
			return FastConvergence(i), nil
		}
	}
	return FastConvergenceOff, errors.Errorf("unknown fast convergence policy %q", s)
}

func (f *FastConvergence) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseFastConvergence(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f FastConvergence) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// Config holds the estimator tuning. Gains are scaled by 10000 the way the
// configurator presents them.
type Config struct {
	DcmKp      uint16 `yaml:"dcm_kp"`
	DcmKi      uint16 `yaml:"dcm_ki"`
	SmallAngle uint8  `yaml:"small_angle"` // degrees

	// Accelerometer smoothing and the band of magnitudes trusted for
	// attitude correction, in hundredths of 1 g.
	AccCutHz    uint8  `yaml:"acc_cut_hz"`
	AccMinCentG uint16 `yaml:"acc_min_cent_g"`
	AccMaxCentG uint16 `yaml:"acc_max_cent_g"`

	// Velocity bookkeeping.
	AccZLPFCutoff float64 `yaml:"accz_lpf_cutoff"`
	AccDeadbandXY int32   `yaml:"acc_deadband_xy"`
	AccDeadbandZ  int32   `yaml:"acc_deadband_z"`
	AccUnarmedCal bool    `yaml:"acc_unarmedcal"`

	GyroLPFHz             uint16  `yaml:"gyro_lpf_hz"`
	GyroLPFRefreshUs      uint32  `yaml:"gyro_lpf_refresh_us"`
	GyroMoveThreshold     float64 `yaml:"gyro_move_threshold"`
	GyroCalibrationCycles int     `yaml:"gyro_calibration_cycles"`
	GyroCalibrateOnBoot   bool    `yaml:"gyro_calibrate_on_boot"`
	AccCalibrationCycles  int     `yaml:"acc_calibration_cycles"`
	MagCalibrationCycles  int     `yaml:"mag_calibration_cycles"`

	// MagDeclination is in dddmm form, e.g. 1030 is 10°30'.
	MagDeclination int16 `yaml:"mag_declination"`

	ThrottleCorrectionAngle uint16 `yaml:"throttle_correction_angle"` // decidegrees

	FastConvergence       FastConvergence `yaml:"fast_convergence"`
	FastConvergenceWindow time.Duration   `yaml:"fast_convergence_window"`
	FastConvergenceGain   float64         `yaml:"fast_convergence_gain"`

	GyroAlign sensors.Alignment      `yaml:"gyro_align"`
	AccAlign  sensors.Alignment      `yaml:"acc_align"`
	MagAlign  sensors.Alignment      `yaml:"mag_align"`
	Board     sensors.BoardAlignment `yaml:"board_alignment"`
}

// DefaultConfig returns the firmware defaults.
func DefaultConfig() Config {
	return Config{
		DcmKp:      2500,
		DcmKi:      0,
		SmallAngle: 25,

		AccCutHz:    15,
		AccMinCentG: 80,
		AccMaxCentG: 120,

		AccZLPFCutoff: 5,
		AccDeadbandXY: 40,
		AccDeadbandZ:  40,
		AccUnarmedCal: true,

		GyroLPFHz:             60,
		GyroLPFRefreshUs:      1000,
		GyroMoveThreshold:     32,
		GyroCalibrationCycles: 1000,
		GyroCalibrateOnBoot:   true,
		AccCalibrationCycles:  400,
		MagCalibrationCycles:  600,

		ThrottleCorrectionAngle: 800,

		FastConvergence:       FastConvergenceBootWindow,
		FastConvergenceWindow: 20 * time.Second,
		FastConvergenceGain:   10,
	}
}

// Validate reports the first setting the estimator cannot work with.
func (c Config) Validate() error {
	switch {
	case c.AccMinCentG >= c.AccMaxCentG:
		return errors.Errorf("acc_min_cent_g %d must be below acc_max_cent_g %d", c.AccMinCentG, c.AccMaxCentG)
	case c.GyroCalibrationCycles <= 0 || c.AccCalibrationCycles <= 0 || c.MagCalibrationCycles <= 0:
		return errors.New("calibration cycles must be positive")
	case c.ThrottleCorrectionAngle == 0:
		return errors.New("throttle_correction_angle must be positive")
	case c.SmallAngle > 180:
		return errors.Errorf("small_angle %d out of range", c.SmallAngle)
	case c.FastConvergenceGain < 1:
		return errors.Errorf("fast_convergence_gain %g must be at least 1", c.FastConvergenceGain)
	case c.AccZLPFCutoff <= 0:
		return errors.Errorf("accz_lpf_cutoff %g must be positive", c.AccZLPFCutoff)
	case c.GyroLPFHz > 0 && !filter.BiquadCutoffValid(float64(c.GyroLPFHz), c.GyroLPFRefreshUs):
		return errors.Errorf("gyro_lpf_hz %d needs a gyro_lpf_refresh_us above zero with the cutoff below Nyquist", c.GyroLPFHz)
	}
	return nil
}

// declinationDecidegrees converts the dddmm setting to tenths of a degree.
func (c Config) declinationDecidegrees() float64 {
	deg := c.MagDeclination / 100
	minutes := c.MagDeclination % 100
	return (float64(deg) + float64(minutes)/60) * 10
}

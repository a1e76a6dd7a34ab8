// Package config loads the flight controller settings from a YAML file and
// the environment.
package config

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/BryanSouza91/WingFC/internal/flight"
	"github.com/BryanSouza91/WingFC/internal/imu"
	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/mixer"
	"github.com/BryanSouza91/WingFC/internal/output"
	"github.com/BryanSouza91/WingFC/internal/pid"
	"github.com/BryanSouza91/WingFC/internal/rc"
	"github.com/BryanSouza91/WingFC/internal/sensors"
	"github.com/BryanSouza91/WingFC/internal/sim"
)

// ErrInvalid is the cause of every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Environment variables read by Load.
const (
	EnvLogLevel     = "WINGFC_LOG_LEVEL"
	EnvMixerMode    = "WINGFC_MIXER_MODE"
	EnvPIDAlgorithm = "WINGFC_PID_ALGORITHM"
	EnvLoopTime     = "WINGFC_LOOPTIME_US"
)

// Config holds every setting of the flight controller. Components get
// copies of their section at construction.
type Config struct {
	LogLevel string `yaml:"log_level"`

	IMU     imu.Config        `yaml:"imu"`
	PID     pid.Config        `yaml:"pid"`
	Mixer   mixer.Config      `yaml:"mixer"`
	RC      rc.Config         `yaml:"rc"`
	Output  output.Config     `yaml:"output"`
	Flight  flight.Config     `yaml:"flight"`
	Sensors sensors.IMUConfig `yaml:"sensors"`

	// Sim describes the simulated airframe used when no board is attached.
	Sim sim.BodyConfig `yaml:"sim"`
}

// Default returns the firmware defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		IMU:      imu.DefaultConfig(),
		PID:      pid.DefaultConfig(),
		Mixer:    mixer.DefaultConfig(),
		RC:       rc.DefaultConfig(),
		Output:   output.DefaultConfig(),
		Flight:   flight.DefaultConfig(),
		Sensors:  sensors.DefaultIMUConfig(),
		Sim:      sim.DefaultBodyConfig(),
	}
}

// Load reads path over the defaults, applies the environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "open config")
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	log.WithFields(log.Fields{
		"file":      path,
		"mixer":     cfg.Mixer.Mode,
		"algorithm": cfg.PID.Algorithm,
		"looptime":  cfg.PID.LoopTime,
	}).Info("configuration loaded")
	return cfg, nil
}

// Parse reads YAML from r over the defaults without touching the
// environment.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)

	if v := getEnv(EnvMixerMode, ""); v != "" {
		m, err := mixer.ParseMode(v)
		if err != nil {
			return errors.Wrap(err, EnvMixerMode)
		}
		c.Mixer.Mode = m
	}
	if v := getEnv(EnvPIDAlgorithm, ""); v != "" {
		a, err := pid.ParseAlgorithm(v)
		if err != nil {
			return errors.Wrap(err, EnvPIDAlgorithm)
		}
		c.PID.Algorithm = a
	}
	if v := getEnv(EnvLoopTime, ""); v != "" {
		us, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.Wrap(err, EnvLoopTime)
		}
		c.PID.LoopTime = uint32(us)
	}
	return nil
}

// getEnv gets an environment variable or returns the fallback.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var problems []string
	check := func(section string, err error) {
		if err != nil {
			problems = append(problems, section+": "+err.Error())
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, "log_level: unknown level "+strconv.Quote(c.LogLevel))
	}
	check("imu", c.IMU.Validate())
	check("pid", c.PID.Validate())
	check("mixer", c.Mixer.Validate())
	check("rc", c.RC.Validate())
	check("output", c.Output.Validate())
	check("flight", c.Flight.Validate())
	check("sensors", validateSensors(c.Sensors))
	check("sim", validateSim(c.Sim))

	if c.Mixer.MidRC != int16(c.RC.MidRC) {
		problems = append(problems, "mixer.midrc and rc.midrc differ")
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func validateSensors(s sensors.IMUConfig) error {
	switch s.AccelRangeG {
	case 2, 4, 8, 16:
	default:
		return errors.Errorf("accel_range_g %d not one of 2, 4, 8, 16", s.AccelRangeG)
	}
	switch s.GyroRangeDPS {
	case 500, 1000, 2000:
	default:
		return errors.Errorf("gyro_range_dps %d not one of 500, 1000, 2000", s.GyroRangeDPS)
	}
	if s.SampleRateHz < 104 {
		return errors.Errorf("sample_rate_hz %d below 104", s.SampleRateHz)
	}
	return nil
}

func validateSim(b sim.BodyConfig) error {
	switch {
	case b.Authority < 0:
		return errors.New("authority must not be negative")
	case b.Damping < 0:
		return errors.New("damping must not be negative")
	case b.GyroNoise < 0 || b.AccNoise < 0:
		return errors.New("noise must not be negative")
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() log.Level {
	return log.ParseLevel(c.LogLevel)
}

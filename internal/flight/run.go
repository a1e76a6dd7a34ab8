package flight

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/rc"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

// IMU is an accelerometer and gyro on one chip.
type IMU interface {
	sensors.GyroSource
	sensors.AccelSource
}

// Actuator receives the mixer outputs in µs. *output.Writer satisfies it.
type Actuator interface {
	Write(motors, servos []int16)
}

// Hardware is the boundary to the board. Mag, Radio and the status LEDs
// may be nil.
type Hardware struct {
	IMU   IMU
	Mag   sensors.MagSource
	Radio io.ByteReader
	Out   Actuator

	Red, Green Light
}

// Runner polls the hardware and steps the supervisor at a fixed rate.
type Runner struct {
	sup      *Supervisor
	hw       Hardware
	cfg      Config
	store    *rc.Channels
	receiver *rc.Receiver
	status   *Indicator
	logger   *log.Logger

	sample   Sample
	last     time.Time
	cycles   uint64
	overruns uint64
	errs     uint64
}

// NewRunner builds the receiver for the configured protocol and centres
// every channel until the first frame arrives.
func NewRunner(sup *Supervisor, hw Hardware, cfg Config, rcCfg rc.Config) *Runner {
	store := rc.NewChannels(rcCfg.MidRC)
	return &Runner{
		sup:      sup,
		hw:       hw,
		cfg:      cfg,
		store:    store,
		receiver: rc.NewReceiver(rc.NewDecoder(rcCfg.Protocol), store),
		status:   NewIndicator(hw.Red, hw.Green),
		logger:   log.New("loop"),
	}
}

// SetLogger replaces the logger used for hardware errors and overruns.
func (r *Runner) SetLogger(l *log.Logger) { r.logger = l }

func (r *Runner) Supervisor() *Supervisor { return r.sup }
func (r *Runner) Channels() *rc.Channels  { return r.store }
func (r *Runner) Status() *Indicator      { return r.status }
func (r *Runner) Cycles() uint64          { return r.cycles }
func (r *Runner) Overruns() uint64        { return r.overruns }
func (r *Runner) Errors() uint64          { return r.errs }

// Tick runs one cycle at now. A failed sensor read keeps the previous sample
// for that sensor and is returned after the cycle has run.
func (r *Runner) Tick(now time.Time) error {
	dt := 0.0
	if !r.last.IsZero() {
		dt = now.Sub(r.last).Seconds()
	}
	r.last = now

	var errs []error
	if r.hw.Radio != nil {
		if _, err := r.receiver.Poll(r.hw.Radio, now); err != nil {
			errs = append(errs, err)
		}
	}
	if g, err := r.hw.IMU.ReadGyro(); err != nil {
		errs = append(errs, err)
	} else {
		r.sample.Gyro = g
	}
	if a, err := r.hw.IMU.ReadAccel(); err != nil {
		errs = append(errs, err)
	} else {
		r.sample.Accel = a
	}
	r.sample.MagFresh = false
	if r.hw.Mag != nil && r.cfg.MagPollDivider > 0 && r.cycles%uint64(r.cfg.MagPollDivider) == 0 {
		if m, err := r.hw.Mag.ReadMag(); err != nil {
			errs = append(errs, err)
		} else {
			r.sample.Mag = m
			r.sample.MagFresh = true
		}
	}
	r.sample.Channels, _ = r.store.Get()
	r.sample.RCAge = r.store.Since(now)

	state := r.sup.Step(now, dt, r.sample)
	r.status.Update(now, state)
	r.cycles++

	mix := r.sup.Loop().Mixer()
	motors, servos := mix.Motors(), mix.Servos()
	r.hw.Out.Write(motors[:], servos[:])

	if len(errs) > 0 {
		r.errs++
		return errors.Wrap(errs[0], "read hardware")
	}
	return nil
}

// Run ticks every period until ctx is done.
func (r *Runner) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	r.logger.WithFields(log.Fields{"period": period}).Info("control loop started")
	for {
		select {
		case <-ctx.Done():
			r.logger.WithFields(log.Fields{
				"cycles":   r.cycles,
				"overruns": r.overruns,
				"errors":   r.errs,
			}).Info("control loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			if err := r.Tick(now); err != nil {
				r.logger.WithError(err).Warn("hardware error")
			}
			if took := time.Since(now); took > period {
				r.overruns++
				r.logger.WithFields(log.Fields{"took": took, "period": period}).Debug("cycle overran")
			}
		}
	}
}

// Package bench assembles the flight stack on simulated hardware: the
// sensor adapters talk to the simulated I2C bus, the receiver reads the
// simulated transmitter and the outputs drive simulated PWM timers and the
// simulated airframe.
package bench

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/BryanSouza91/WingFC/internal/config"
	"github.com/BryanSouza91/WingFC/internal/flight"
	"github.com/BryanSouza91/WingFC/internal/imu"
	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/mixer"
	"github.com/BryanSouza91/WingFC/internal/output"
	"github.com/BryanSouza91/WingFC/internal/pid"
	"github.com/BryanSouza91/WingFC/internal/sensors"
	"github.com/BryanSouza91/WingFC/internal/sim"
)

// channelsPerTimer is how many outputs share one simulated PWM timer.
const channelsPerTimer = 4

// Bench is a complete flight controller wired to a simulated aircraft.
type Bench struct {
	Rig     *sim.Rig
	Runner  *flight.Runner
	Outputs *output.Writer

	MotorTimers []*sim.Timer
	ServoTimers []*sim.Timer

	period time.Duration
	now    time.Time
}

// New builds the stack from cfg. The transmitter plays script. Every
// component logs through children of logger.
func New(cfg config.Config, script []sim.Event, logger *log.Logger) (*Bench, error) {
	period := time.Duration(cfg.PID.LoopTime) * time.Microsecond
	rig := sim.NewRig(cfg.Sim, cfg.RC, script, period)

	dev := sensors.NewIMU(rig.Bus, cfg.Sensors)
	if err := dev.Configure(); err != nil {
		return nil, errors.Wrap(err, "imu")
	}
	compass := sensors.NewCompass(rig.Bus)
	if err := compass.Configure(); err != nil {
		return nil, errors.Wrap(err, "compass")
	}

	est := imu.New(cfg.IMU, dev.GyroScale(), dev.Acc1G())
	est.SetLogger(logger.Named("imu"))

	pidCfg := cfg.PID
	pidCfg.GyroScale = dev.GyroScale()
	ctrl := pid.New(pidCfg)
	ctrl.SetLogger(logger.Named("pid"))

	mix := mixer.New(cfg.Mixer)
	mix.SetLogger(logger.Named("mixer"))
	rig.SetRules(mix.Rules(), cfg.Mixer.Servos[0].Middle)

	b := &Bench{Rig: rig, period: period, now: time.Unix(0, 0)}
	motors := b.channels(&b.MotorTimers, mixer.MaxMotors)
	servos := b.channels(&b.ServoTimers, mixer.MaxServos)
	out, err := output.NewWriter(cfg.Output, motors, servos)
	if err != nil {
		return nil, errors.Wrap(err, "outputs")
	}
	out.SetLogger(logger.Named("output"))
	out.Stop(cfg.Mixer.MinCommand, cfg.Mixer.Servos[0].Middle)
	b.Outputs = out

	loop := flight.NewLoop(est, ctrl, mix, cfg.RC, cfg.Mixer.MinThrottle, cfg.Mixer.MaxThrottle)
	sup := flight.NewSupervisor(cfg.Flight, cfg.RC, loop)
	sup.SetLogger(logger.Named("flight"))

	hw := flight.Hardware{
		IMU:   dev,
		Mag:   compass,
		Radio: rig.Radio,
		Out:   actuators{out, rig},
		Red:   rig.Red,
		Green: rig.Green,
	}
	b.Runner = flight.NewRunner(sup, hw, cfg.Flight, cfg.RC)
	b.Runner.SetLogger(logger.Named("loop"))
	return b, nil
}

func (b *Bench) channels(timers *[]*sim.Timer, n int) []output.Channel {
	chs := make([]output.Channel, n)
	for i := range chs {
		if i%channelsPerTimer == 0 {
			*timers = append(*timers, sim.NewTimer())
		}
		chs[i] = output.Channel{PWM: (*timers)[i/channelsPerTimer], Channel: uint8(i % channelsPerTimer)}
	}
	return chs
}

// Step runs one control cycle one period after the previous one.
func (b *Bench) Step() error {
	b.now = b.now.Add(b.period)
	return b.Runner.Tick(b.now)
}

// StepFor runs cycles until d of simulated time has passed. Hardware errors
// do not stop it; the first one is returned.
func (b *Bench) StepFor(d time.Duration) error {
	var first error
	for n := d / b.period; n > 0; n-- {
		if err := b.Step(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Run ticks in real time until ctx is done.
func (b *Bench) Run(ctx context.Context) error {
	return b.Runner.Run(ctx, b.period)
}

func (b *Bench) Period() time.Duration          { return b.period }
func (b *Bench) Supervisor() *flight.Supervisor { return b.Runner.Supervisor() }
func (b *Bench) Loop() *flight.Loop             { return b.Runner.Supervisor().Loop() }

// MotorPulse returns motor i as measured on its simulated timer pin.
func (b *Bench) MotorPulse(i int) uint16 {
	return b.MotorTimers[i/channelsPerTimer].Pulse(uint8(i % channelsPerTimer))
}

// ServoPulse returns servo i as measured on its simulated timer pin.
func (b *Bench) ServoPulse(i int) uint16 {
	return b.ServoTimers[i/channelsPerTimer].Pulse(uint8(i % channelsPerTimer))
}

type actuators []flight.Actuator

func (a actuators) Write(motors, servos []int16) {
	for _, out := range a {
		out.Write(motors, servos)
	}
}

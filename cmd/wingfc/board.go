//go:build tinygo

// Command wingfc runs the flight controller on a Seeed XIAO nRF52840 Sense:
// LSM6DS3TR on I2C0, receiver on the UART, motors on PWM0 and servos on
// PWM1.
package main

import (
	"io"
	"machine"
	"time"

	"github.com/BryanSouza91/WingFC/internal/config"
	"github.com/BryanSouza91/WingFC/internal/flight"
	"github.com/BryanSouza91/WingFC/internal/imu"
	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/mixer"
	"github.com/BryanSouza91/WingFC/internal/output"
	"github.com/BryanSouza91/WingFC/internal/pid"
	"github.com/BryanSouza91/WingFC/internal/rc"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

const watchdogTimeoutMs = 500

var (
	motorPins = []machine.Pin{machine.D0, machine.D1, machine.D2, machine.D3}
	servoPins = []machine.Pin{machine.D8, machine.D9, machine.D10}
)

// serialReader reports an empty receive buffer as io.EOF.
type serialReader struct {
	uart *machine.UART
}

func (s serialReader) ReadByte() (byte, error) {
	if s.uart.Buffered() == 0 {
		return 0, io.EOF
	}
	return s.uart.ReadByte()
}

// activeLow drives an LED wired between the pin and the supply.
type activeLow machine.Pin

func (p activeLow) Set(on bool) { machine.Pin(p).Set(!on) }

func statusLight(pin machine.Pin) activeLow {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.High()
	return activeLow(pin)
}

func baudRate(p rc.Protocol) uint32 {
	if p == rc.ProtocolIBus {
		return 115200
	}
	return rc.CRSFBaudRate
}

func channels(pwm *machine.PWM, pins []machine.Pin, hz uint32) ([]output.Channel, error) {
	if err := pwm.Configure(machine.PWMConfig{Period: uint64(machine.GHz) / uint64(hz)}); err != nil {
		return nil, err
	}
	chs := make([]output.Channel, len(pins))
	for i, pin := range pins {
		ch, err := pwm.Channel(pin)
		if err != nil {
			return nil, err
		}
		chs[i] = output.Channel{PWM: pwm, Channel: ch}
	}
	return chs, nil
}

// halt reports err forever; the watchdog is not running yet.
func halt(logger *log.Logger, msg string, err error) {
	for {
		logger.WithError(err).Error(msg)
		time.Sleep(time.Second)
	}
}

func main() {
	cfg := config.Default()
	logger := log.Default()
	logger.SetLevel(cfg.Level())

	uart := machine.DefaultUART
	uart.Configure(machine.UARTConfig{
		BaudRate: baudRate(cfg.RC.Protocol),
		TX:       machine.NoPin,
		RX:       machine.UART_RX_PIN,
	})

	motors, err := channels(machine.PWM0, motorPins, cfg.Output.MotorRateHz)
	if err != nil {
		halt(logger, "configure motor outputs", err)
	}
	servos, err := channels(machine.PWM1, servoPins, cfg.Output.ServoRateHz)
	if err != nil {
		halt(logger, "configure servo outputs", err)
	}
	out, err := output.NewWriter(cfg.Output, motors, servos)
	if err != nil {
		halt(logger, "configure outputs", err)
	}
	out.SetLogger(logger.Named("output"))
	out.Stop(cfg.Mixer.MinCommand, cfg.Mixer.Servos[0].Middle)

	i2c := machine.I2C0
	i2c.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz})
	dev := sensors.NewIMU(i2c, cfg.Sensors)
	if err := dev.Configure(); err != nil {
		halt(logger, "configure imu", err)
	}

	est := imu.New(cfg.IMU, dev.GyroScale(), dev.Acc1G())
	est.SetLogger(logger.Named("imu"))
	pidCfg := cfg.PID
	pidCfg.GyroScale = dev.GyroScale()
	ctrl := pid.New(pidCfg)
	ctrl.SetLogger(logger.Named("pid"))
	mix := mixer.New(cfg.Mixer)
	mix.SetLogger(logger.Named("mixer"))

	loop := flight.NewLoop(est, ctrl, mix, cfg.RC, cfg.Mixer.MinThrottle, cfg.Mixer.MaxThrottle)
	sup := flight.NewSupervisor(cfg.Flight, cfg.RC, loop)
	sup.SetLogger(logger.Named("flight"))
	runner := flight.NewRunner(sup, flight.Hardware{
		IMU:   dev,
		Radio: serialReader{uart},
		Out:   out,
		Red:   statusLight(machine.LED_RED),
		Green: statusLight(machine.LED_GREEN),
	}, cfg.Flight, cfg.RC)
	runner.SetLogger(logger.Named("loop"))

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeoutMs})
	machine.Watchdog.Start()

	period := time.Duration(cfg.PID.LoopTime) * time.Microsecond
	logger.WithFields(log.Fields{"period": period, "mixer": cfg.Mixer.Mode}).Info("flight controller started")
	next := time.Now()
	for {
		now := time.Now()
		if err := runner.Tick(now); err != nil {
			logger.WithError(err).Warn("hardware error")
		}
		machine.Watchdog.Update()

		next = next.Add(period)
		if wait := time.Until(next); wait > 0 {
			time.Sleep(wait)
		} else {
			next = time.Now()
		}
	}
}

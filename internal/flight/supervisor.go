package flight

import (
	"time"

	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/rc"
)

// State is the arming state of the aircraft.
type State uint8

const (
	StateInit State = iota
	StateWaiting
	StateCalibrating
	StateFlight
	StateFailsafe
	stateCount
)

var stateNames = [stateCount]string{"init", "waiting", "calibrating", "flight", "failsafe"}

func (s State) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return "unknown"
}

// Supervisor decides when the loop runs armed. Outputs are only driven from
// the flight state; every other state runs the loop disarmed so the mixer
// holds motors stopped and servos centred while the estimator keeps running.
type Supervisor struct {
	cfg    Config
	rc     rc.Config
	loop   *Loop
	logger *log.Logger

	state   State
	started time.Time

	// arming needs the switch to be seen low after entering waiting
	armLowSeen bool
	refused    bool
}

// NewSupervisor applies the flight mode to the loop's controller.
func NewSupervisor(cfg Config, rcCfg rc.Config, loop *Loop) *Supervisor {
	loop.Controller().SetMode(cfg.Mode)
	loop.Controller().SetAirMode(cfg.AirMode)
	return &Supervisor{
		cfg:    cfg,
		rc:     rcCfg,
		loop:   loop,
		logger: log.New("flight"),
		state:  StateInit,
	}
}

// SetLogger replaces the logger used for state changes.
func (s *Supervisor) SetLogger(l *log.Logger) { s.logger = l }

func (s *Supervisor) State() State { return s.state }
func (s *Supervisor) Armed() bool  { return s.state == StateFlight }
func (s *Supervisor) Loop() *Loop  { return s.loop }

// Step advances the state machine with a fresh sample and runs one loop
// cycle. It returns the state the cycle ran in.
func (s *Supervisor) Step(now time.Time, dt float64, in Sample) State {
	if s.started.IsZero() {
		s.started = now
	}
	linkOK := in.RCAge <= s.rc.FailsafeTimeout
	arm := s.rc.Switch(in.Channels[s.rc.ArmChannel])
	cal := s.rc.Switch(in.Channels[s.rc.CalibrateChannel])

	switch s.state {
	case StateInit:
		if now.Sub(s.started) >= s.cfg.InitDelay {
			s.logger.Info("initialisation complete")
			s.enter(StateWaiting)
		}

	case StateWaiting:
		if !linkOK {
			break
		}
		if !arm {
			s.armLowSeen = true
			s.refused = false
		}
		switch {
		case cal:
			s.logger.Info("calibrating gyro and accelerometer, keep the aircraft level and still")
			s.loop.Estimator().CalibrateGyro()
			s.loop.Estimator().CalibrateAccel()
			s.enter(StateCalibrating)
		case arm && s.armLowSeen:
			if reason := s.armBlocked(in); reason != "" {
				if !s.refused {
					s.logger.WithField("reason", reason).Warn("arming refused")
					s.refused = true
				}
				break
			}
			s.loop.ResetIntegrals()
			s.enter(StateFlight)
		}

	case StateCalibrating:
		if s.loop.Estimator().IsCalibrated() && !cal {
			s.enter(StateWaiting)
		}

	case StateFlight:
		switch {
		case !linkOK:
			s.logger.WithField("age", in.RCAge).Error("receiver signal lost")
			s.enter(StateFailsafe)
		case !arm:
			s.enter(StateWaiting)
		}
		if s.state != StateFlight {
			s.loop.ResetIntegrals()
		}

	case StateFailsafe:
		if linkOK {
			s.logger.Info("receiver signal regained, cycle the arm switch to arm again")
			s.enter(StateWaiting)
		}
	}

	s.loop.Cycle(dt, in, s.state == StateFlight)
	return s.state
}

// armBlocked returns why arming is not allowed, or "" if it is.
func (s *Supervisor) armBlocked(in Sample) string {
	est := s.loop.Estimator()
	switch {
	case !est.IsCalibrated():
		return "calibrating"
	case !s.rc.LowThrottle(in.Channels):
		return "throttle not low"
	case !est.IsLeveled(s.cfg.MaxArmAngle):
		return "not level"
	}
	return ""
}

func (s *Supervisor) enter(next State) {
	s.logger.WithFields(log.Fields{"from": s.state, "to": next}).Info("state changed")
	s.state = next
	if next == StateWaiting {
		s.armLowSeen = false
		s.refused = false
	}
}

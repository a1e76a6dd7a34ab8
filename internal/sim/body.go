// Package sim is a bench stand-in for the board: a rigid body turned by the
// mixer outputs, sensor chips on an I2C bus that report its motion, and a
// transmitter that plays a stick script into the receiver.
package sim

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// BodyConfig describes the simulated airframe and its sensors.
type BodyConfig struct {
	// Authority is the angular acceleration per unit of axis command, rad/s².
	Authority float64 `yaml:"authority"`
	// Damping opposes the rotation rate, 1/s.
	Damping float64 `yaml:"damping"`

	GyroNoise float64    `yaml:"gyro_noise"` // °/s
	GyroBias  [3]float64 `yaml:"gyro_bias"`  // °/s
	AccNoise  float64    `yaml:"acc_noise"`  // g

	// MagField is the earth field in the north, west, up frame, in counts.
	MagField [3]float64 `yaml:"mag_field"`

	Seed uint64 `yaml:"seed"`
}

// DefaultBodyConfig is a small quad with a slightly biased gyro.
func DefaultBodyConfig() BodyConfig {
	return BodyConfig{
		Authority: 0.02,
		Damping:   1,
		GyroNoise: 0.2,
		GyroBias:  [3]float64{0.5, -0.3, 0.2},
		AccNoise:  0.005,
		MagField:  [3]float64{300, 0, -400},
		Seed:      1,
	}
}

// Body is a rigid body rotating about its centre. Translation is ignored.
type Body struct {
	cfg BodyConfig

	q      mgl64.Quat // body to earth
	rate   mgl64.Vec3 // rad/s, body frame
	torque mgl64.Vec3

	gyroNoise distuv.Normal
	accNoise  distuv.Normal
}

func NewBody(cfg BodyConfig) *Body {
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)
	return &Body{
		cfg:       cfg,
		q:         mgl64.QuatIdent(),
		gyroNoise: distuv.Normal{Mu: 0, Sigma: cfg.GyroNoise, Src: src},
		accNoise:  distuv.Normal{Mu: 0, Sigma: cfg.AccNoise, Src: src},
	}
}

// SetAttitude places the body at rest at the given Euler angles in degrees.
func (b *Body) SetAttitude(roll, pitch, yaw float64) {
	b.q = mgl64.AnglesToQuat(
		mathx.DegreesToRadians(yaw),
		mathx.DegreesToRadians(pitch),
		mathx.DegreesToRadians(roll),
		mgl64.ZYX,
	)
	b.rate = mgl64.Vec3{}
}

// SetTorque sets the axis commands, in the ±500 units of the controller.
func (b *Body) SetTorque(t [3]float64) { b.torque = mgl64.Vec3(t) }

// Step advances the body by dt seconds.
func (b *Body) Step(dt float64) {
	accel := b.torque.Mul(b.cfg.Authority).Sub(b.rate.Mul(b.cfg.Damping))
	b.rate = b.rate.Add(accel.Mul(dt))

	if angle := b.rate.Len() * dt; angle > 0 {
		b.q = b.q.Mul(mgl64.QuatRotate(angle, b.rate.Normalize())).Normalize()
	}
}

func (b *Body) Orientation() mgl64.Quat { return b.q }
func (b *Body) Rates() mgl64.Vec3       { return b.rate }

// Up is the earth vertical seen from the body.
func (b *Body) Up() mgl64.Vec3 {
	return b.q.Conjugate().Rotate(mgl64.Vec3{0, 0, 1})
}

// Angles returns roll and pitch in degrees.
func (b *Body) Angles() (roll, pitch float64) {
	up := b.Up()
	roll = math.Atan2(up[1], up[2]) * 180 / math.Pi
	pitch = math.Atan2(-up[0], math.Hypot(up[1], up[2])) * 180 / math.Pi
	return roll, pitch
}

// Gyro is the measured rotation rate in °/s.
func (b *Body) Gyro() mgl64.Vec3 {
	var g mgl64.Vec3
	for i := range g {
		g[i] = b.rate[i]*180/math.Pi + b.cfg.GyroBias[i] + b.noise(&b.gyroNoise)
	}
	return g
}

// Accel is the measured specific force in g. At rest it points up.
func (b *Body) Accel() mgl64.Vec3 {
	a := b.Up()
	for i := range a {
		a[i] += b.noise(&b.accNoise)
	}
	return a
}

// Mag is the earth field seen from the body, in counts.
func (b *Body) Mag() mgl64.Vec3 {
	return b.q.Conjugate().Rotate(mgl64.Vec3(b.cfg.MagField))
}

func (b *Body) noise(n *distuv.Normal) float64 {
	if n.Sigma == 0 {
		return 0
	}
	return n.Rand()
}

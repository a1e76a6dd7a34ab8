package imu

import (
	"io"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

const (
	testAcc1G     = 4096
	testGyroScale = 1 / 16.4 // °/s per count
	testDt        = 0.002
)

var level = sensors.Vector{0, 0, testAcc1G}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GyroCalibrateOnBoot = false
	cfg.GyroLPFHz = 0
	cfg.FastConvergence = FastConvergenceOff
	return cfg
}

func newTestEstimator(cfg Config) *Estimator {
	e := New(cfg, testGyroScale, testAcc1G)
	l := log.New("imu")
	l.SetWriter(io.Discard)
	e.SetLogger(l)
	return e
}

func run(e *Estimator, n int, gyro, acc sensors.Vector) {
	for i := 0; i < n; i++ {
		e.FeedGyro(gyro)
		e.FeedAccel(acc)
		e.Update(testDt, false)
	}
}

func tilted(rollDeg, pitchDeg float64) sensors.Vector {
	r := rollDeg * math.Pi / 180
	p := pitchDeg * math.Pi / 180
	return sensors.Vector{
		int32(-testAcc1G * math.Sin(p)),
		int32(testAcc1G * math.Cos(p) * math.Sin(r)),
		int32(testAcc1G * math.Cos(p) * math.Cos(r)),
	}
}

func TestNoUpdateBeforeFirstAccelSample(t *testing.T) {
	e := newTestEstimator(testConfig())
	for i := 0; i < 100; i++ {
		e.FeedGyro(sensors.Vector{500, 0, 0})
		e.Update(testDt, false)
	}
	assert.Equal(t, mgl64.QuatIdent(), e.Quaternion())
	assert.Zero(t, e.VelocityIntegrationTime())
}

func TestQuaternionStaysNormalized(t *testing.T) {
	cfg := testConfig()
	cfg.DcmKi = 50
	cfg.FastConvergence = FastConvergenceUntilArmed
	e := newTestEstimator(cfg)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5000; i++ {
		e.FeedGyro(sensors.Vector{rng.Int31n(4000) - 2000, rng.Int31n(4000) - 2000, rng.Int31n(4000) - 2000})
		e.FeedAccel(sensors.Vector{rng.Int31n(2000) - 1000, rng.Int31n(2000) - 1000, testAcc1G + rng.Int31n(800) - 400})
		if i%10 == 0 {
			e.FeedMag(sensors.Vector{rng.Int31n(600) - 300, rng.Int31n(600) - 300, rng.Int31n(600) - 300})
		}
		e.Update(0.001+rng.Float64()*0.009, i%2 == 0)

		require.InDelta(t, 1.0, e.Quaternion().Len(), 1e-4, "step %d", i)
	}

	// the rotation matrix is the one described by the quaternion
	v := mgl64.Vec3{0.3, -0.5, 0.8}
	assert.True(t, e.Quaternion().Rotate(v).ApproxEqualThreshold(e.RotationMatrix().Mul3x1(v), 1e-3))
}

func TestLevelAttitude(t *testing.T) {
	e := newTestEstimator(testConfig())
	run(e, 500, sensors.Vector{}, level)

	assert.Equal(t, Attitude{Roll: 0, Pitch: 0, Yaw: 0}, e.Attitude())
	assert.True(t, e.SmallAngle())
	assert.True(t, e.IsLeveled(5))
	assert.InDelta(t, 1.0, e.CosTiltAngle(), 1e-9)
	assert.Equal(t, int16(0), e.ThrottleAngleCorrection(100))
}

func TestConvergesToTilt(t *testing.T) {
	tests := []struct {
		name        string
		roll, pitch float64
	}{
		{"roll right", 30, 0},
		{"roll left", -45, 0},
		{"nose up", 0, 20},
		{"combined", 15, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FastConvergence = FastConvergenceUntilArmed
			e := newTestEstimator(cfg)
			run(e, 2500, sensors.Vector{}, tilted(tt.roll, tt.pitch))

			assert.InDelta(t, tt.roll*10, float64(e.Roll()), 5)
			assert.InDelta(t, tt.pitch*10, float64(e.Pitch()), 5)
			assert.InDelta(t, 1.0, e.Quaternion().Len(), 1e-4)
		})
	}
}

func TestAlignToGravity(t *testing.T) {
	e := newTestEstimator(testConfig())
	e.AlignToGravity(tilted(30, -12))

	assert.InDelta(t, 300, float64(e.Roll()), 1)
	assert.InDelta(t, -120, float64(e.Pitch()), 1)
	assert.False(t, e.IsLeveled(25))
	assert.False(t, e.SmallAngle())

	// already aligned, so the filter has nothing to correct
	run(e, 100, sensors.Vector{}, tilted(30, -12))
	assert.InDelta(t, 300, float64(e.Roll()), 2)
}

func TestRollSpansFullCircle(t *testing.T) {
	for _, roll := range []float64{150, -150} {
		e := newTestEstimator(testConfig())
		e.AlignToGravity(tilted(roll, 0))
		assert.InDelta(t, roll*10, float64(e.Roll()), 2)
		assert.InDelta(t, 0, float64(e.Pitch()), 1)
		assert.False(t, e.SmallAngle())
	}
}

func TestYawIntegratesGyro(t *testing.T) {
	e := newTestEstimator(testConfig())
	// 1476 counts at 1/16.4 °/s per count is 90 °/s
	run(e, 500, sensors.Vector{0, 0, 1476}, level)

	assert.InDelta(t, 2700, float64(e.Yaw()), 2)
	assert.InDelta(t, 0, float64(e.Roll()), 1)
	assert.InDelta(t, 0, float64(e.Pitch()), 1)
}

func TestMagnetometerCorrectsHeading(t *testing.T) {
	cfg := testConfig()
	cfg.FastConvergence = FastConvergenceUntilArmed
	e := newTestEstimator(cfg)

	mag := sensors.Vector{200, 346, -200}
	for i := 0; i < 4000; i++ {
		e.FeedGyro(sensors.Vector{})
		e.FeedAccel(level)
		e.FeedMag(mag)
		e.Update(testDt, false)
	}
	assert.InDelta(t, 600, float64(e.Yaw()), 10)
	assert.InDelta(t, 0, float64(e.Roll()), 2)
	assert.InDelta(t, 0, float64(e.Pitch()), 2)
}

func TestMagnetometerWithDeadAxisIsIgnored(t *testing.T) {
	e := newTestEstimator(testConfig())
	for i := 0; i < 1000; i++ {
		e.FeedGyro(sensors.Vector{})
		e.FeedAccel(level)
		e.FeedMag(sensors.Vector{0, 250, -100})
		e.Update(testDt, false)
	}
	assert.Equal(t, int16(0), e.Yaw())
}

func TestExternalYawReference(t *testing.T) {
	cfg := testConfig()
	cfg.FastConvergence = FastConvergenceUntilArmed
	e := newTestEstimator(cfg)
	e.SetExternalYaw(900, true)
	run(e, 4000, sensors.Vector{}, level)
	assert.InDelta(t, 900, float64(e.Yaw()), 10)

	e.SetExternalYaw(0, false)
	yaw := e.Yaw()
	run(e, 500, sensors.Vector{}, level)
	assert.Equal(t, yaw, e.Yaw())
}

func TestAccelOutsideBandIsExcluded(t *testing.T) {
	cfg := testConfig()
	cfg.FastConvergence = FastConvergenceUntilArmed
	cfg.AccUnarmedCal = false
	cfg.AccCutHz = 0
	e := newTestEstimator(cfg)

	// 2.8 g pulling sideways would tilt the estimate if it were trusted
	run(e, 1000, sensors.Vector{}, sensors.Vector{0, 2 * testAcc1G, 2 * testAcc1G})
	assert.Equal(t, int16(0), e.Roll())

	// but it still feeds the velocity bookkeeping
	assert.Greater(t, e.AverageVerticalAccel(), 0.0)
	assert.Greater(t, e.EstimatedVerticalVelocity(), 0.0)
	assert.InDelta(t, 2.0, e.VelocityIntegrationTime(), 1e-9)

	e.ResetVelocityEstimate()
	assert.Zero(t, e.AverageVerticalAccel())
	assert.Zero(t, e.VelocityIntegrationTime())
}

func TestVelocityAtRestStaysInDeadband(t *testing.T) {
	cfg := testConfig()
	cfg.AccUnarmedCal = false
	e := newTestEstimator(cfg)
	run(e, 2000, sensors.Vector{}, level)
	e.ResetVelocityEstimate()
	run(e, 500, sensors.Vector{}, level)

	assert.Zero(t, e.AverageVerticalAccel())
	assert.Zero(t, e.EstimatedVerticalVelocity())
}

func TestThrottleAngleCorrection(t *testing.T) {
	e := newTestEstimator(testConfig())
	e.AlignToGravity(tilted(60, 0))
	assert.Equal(t, int16(46), e.ThrottleAngleCorrection(100))

	e.AlignToGravity(sensors.Vector{0, 0, -testAcc1G})
	assert.Equal(t, int16(0), e.ThrottleAngleCorrection(100))
}

func TestDeclination(t *testing.T) {
	cfg := testConfig()
	cfg.MagDeclination = 1030
	assert.InDelta(t, 105, cfg.declinationDecidegrees(), 1e-9)
	west := cfg
	west.MagDeclination = -215
	assert.InDelta(t, -22.5, west.declinationDecidegrees(), 1e-9)

	e := newTestEstimator(cfg)
	run(e, 10, sensors.Vector{}, level)
	assert.Equal(t, int16(105), e.Yaw())
}

func TestFastConvergencePolicy(t *testing.T) {
	tests := []struct {
		policy  FastConvergence
		armed   bool
		elapsed float64
		gyroCal bool
		want    float64
	}{
		{FastConvergenceOff, false, 0, false, 1},
		{FastConvergenceBootWindow, false, 5, false, 10},
		{FastConvergenceBootWindow, false, 25, false, 1},
		{FastConvergenceBootWindow, true, 5, false, 1},
		{FastConvergenceUntilArmed, false, 100, false, 10},
		{FastConvergenceUntilArmed, true, 0, false, 1},
		{FastConvergenceUntilCalibrated, true, 100, true, 10},
		{FastConvergenceUntilCalibrated, false, 0, false, 1},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.FastConvergence = tt.policy
		cfg.FastConvergenceWindow = 20 * time.Second
		e := newTestEstimator(cfg)
		e.elapsed = tt.elapsed
		if tt.gyroCal {
			e.CalibrateGyro()
		}
		assert.Equal(t, tt.want, e.kpBoost(tt.armed), "%s armed=%v elapsed=%g", tt.policy, tt.armed, tt.elapsed)
	}
}

func TestParseFastConvergence(t *testing.T) {
	p, err := ParseFastConvergence(" Until_Armed ")
	require.NoError(t, err)
	assert.Equal(t, FastConvergenceUntilArmed, p)

	_, err = ParseFastConvergence("sometimes")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.AccMinCentG = 130
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.AccCalibrationCycles = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.GyroLPFRefreshUs = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.GyroLPFHz = 500 // Nyquist at 1000µs
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.GyroLPFHz = 0
	cfg.GyroLPFRefreshUs = 0
	assert.NoError(t, cfg.Validate())
}

func TestUnusableGyroFilterIsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.GyroLPFHz = 60
	cfg.GyroLPFRefreshUs = 0
	e := newTestEstimator(cfg)

	run(e, 10, sensors.Vector{10, -20, 30}, level)
	assert.Equal(t, sensors.Vector{10, -20, 30}, e.GyroRates())

	att := e.Attitude()
	assert.InDelta(t, 0, att.Roll, 1)
	assert.InDelta(t, 0, att.Pitch, 1)
	q := e.Quaternion()
	assert.InDelta(t, 1, q.Len(), 1e-4)
}

func TestGyroCalibration(t *testing.T) {
	cfg := testConfig()
	e := newTestEstimator(cfg)
	e.CalibrateGyro()
	require.False(t, e.GyroCalibrated())
	require.False(t, e.IsCalibrated())

	rng := rand.New(rand.NewSource(3))
	mean := [3]float64{12, -7, 3}
	var samples [3][]float64
	for i := 0; i < cfg.GyroCalibrationCycles; i++ {
		var v sensors.Vector
		for axis := range v {
			v[axis] = int32(math.Round(mean[axis] + rng.NormFloat64()*3))
			samples[axis] = append(samples[axis], float64(v[axis]))
		}
		e.FeedGyro(v)
		assert.Equal(t, sensors.Vector{}, e.GyroRates())
	}
	require.True(t, e.GyroCalibrated())

	zero := e.Trims().GyroZero
	for axis := range zero {
		assert.Equal(t, int32(math.RoundToEven(stat.Mean(samples[axis], nil))), zero[axis])
		assert.InDelta(t, mean[axis], float64(zero[axis]), 1)
	}

	e.FeedGyro(sensors.Vector{12, -7, 3})
	for _, c := range e.GyroRates() {
		assert.InDelta(t, 0, c, 1)
	}
}

func TestGyroCalibrationRestartsOnMotion(t *testing.T) {
	cfg := testConfig()
	e := newTestEstimator(cfg)
	e.CalibrateGyro()

	rng := rand.New(rand.NewSource(4))
	for i := 0; i < cfg.GyroCalibrationCycles; i++ {
		e.FeedGyro(sensors.Vector{int32(rng.NormFloat64() * 200), 0, 0})
	}
	assert.False(t, e.GyroCalibrated())

	for i := 0; i < cfg.GyroCalibrationCycles; i++ {
		e.FeedGyro(sensors.Vector{5, 5, 5})
	}
	assert.True(t, e.GyroCalibrated())
	assert.Equal(t, sensors.Vector{5, 5, 5}, e.Trims().GyroZero)
}

func TestGyroCalibrationOnBoot(t *testing.T) {
	cfg := testConfig()
	cfg.GyroCalibrateOnBoot = true
	e := newTestEstimator(cfg)
	assert.False(t, e.IsCalibrated())
}

func TestAccelCalibration(t *testing.T) {
	cfg := testConfig()
	e := newTestEstimator(cfg)
	e.CalibrateAccel()

	raw := sensors.Vector{30, -20, testAcc1G + 50}
	for i := 0; i < cfg.AccCalibrationCycles-1; i++ {
		e.FeedAccel(raw)
	}
	assert.False(t, e.AccelCalibrated())
	e.FeedAccel(raw)
	require.True(t, e.AccelCalibrated())
	assert.Equal(t, sensors.Vector{30, -20, 50}, e.Trims().AccZero)

	run(e, 500, sensors.Vector{}, raw)
	f := e.FilteredAccel()
	assert.InDelta(t, 0, f[sensors.X], 1)
	assert.InDelta(t, 0, f[sensors.Y], 1)
	assert.InDelta(t, testAcc1G, f[sensors.Z], 1)
	assert.Equal(t, int16(0), e.Roll())
}

func TestMagCalibration(t *testing.T) {
	cfg := testConfig()
	e := newTestEstimator(cfg)
	e.CalibrateMag()
	require.False(t, e.MagCalibrated())

	center := sensors.Vector{100, -50, 30}
	extremes := []sensors.Vector{
		{400, -50, 30}, {-200, -50, 30},
		{100, 250, 30}, {100, -350, 30},
		{100, -50, 180}, {100, -50, -120},
	}
	for _, v := range extremes {
		e.FeedMag(v)
	}
	for i := len(extremes); i < cfg.MagCalibrationCycles; i++ {
		e.FeedMag(center)
	}
	require.True(t, e.MagCalibrated())

	trims := e.Trims()
	assert.Equal(t, center, trims.MagZero)
	assert.InDelta(t, 1.2, trims.MagScale[0], 1e-9)
	assert.InDelta(t, 1.2, trims.MagScale[1], 1e-9)
	assert.InDelta(t, 0.6, trims.MagScale[2], 1e-9)
}

func TestSetTrims(t *testing.T) {
	e := newTestEstimator(testConfig())
	e.SetTrims(Trims{GyroZero: sensors.Vector{1, 2, 3}, MagScale: [3]float64{0, 2, 0}})

	got := e.Trims()
	assert.Equal(t, sensors.Vector{1, 2, 3}, got.GyroZero)
	assert.Equal(t, [3]float64{1, 2, 1}, got.MagScale)

	e.FeedGyro(sensors.Vector{1, 2, 3})
	assert.Equal(t, sensors.Vector{}, e.GyroRates())
}

func TestBoardAlignmentApplied(t *testing.T) {
	cfg := testConfig()
	cfg.AccAlign = sensors.CW180
	cfg.FastConvergence = FastConvergenceUntilArmed
	e := newTestEstimator(cfg)

	// chip rotated 180°: a right roll reads as a left roll on the chip
	run(e, 2500, sensors.Vector{}, tilted(-20, 0))
	assert.InDelta(t, 200, float64(e.Roll()), 5)
}

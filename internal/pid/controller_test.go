package pid

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/BryanSouza91/WingFC/internal/log"
)

const testDt = 0.002048

var quad = CycleInput{MotorCount: 4}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.P[Roll], cfg.I[Roll], cfg.D[Roll] = 40, 30, 10
	cfg.P[Pitch], cfg.I[Pitch], cfg.D[Pitch] = 40, 30, 10
	cfg.P[Yaw], cfg.I[Yaw], cfg.D[Yaw] = 85, 45, 10
	cfg.P[Level], cfg.I[Level], cfg.D[Level] = 90, 10, 100
	cfg.Rates = [3]uint8{173, 173, 173}
	cfg.LoopTime = 2048
	cfg.YawPLimit = YawPLimitMax
	cfg.GyroScale = 1 / 16.4
	return cfg
}

func newTestController(cfg Config, a Algorithm) *Controller {
	cfg.Algorithm = a
	c := New(cfg)
	l := log.New("pid")
	l.SetWriter(io.Discard)
	c.SetLogger(l)
	return c
}

// gyroForRateError returns the gyro counts that give rateError with centred sticks.
func gyroForRateError(rateError float64) int32 {
	return int32(math.Round(-rateError * 4))
}

func TestZeroErrorGivesZeroOutput(t *testing.T) {
	for _, a := range []Algorithm{MW23, MWRewrite, LuxFloat} {
		t.Run(a.String(), func(t *testing.T) {
			c := newTestController(testConfig(), a)
			c.Update(testDt, quad)
			assert.Equal(t, Output{}, c.Output())
		})
	}
}

func TestMWRewriteTerms(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	g := gyroForRateError(100)
	c.InputBodyRates(g, g, g)
	c.Update(testDt, quad)

	out := c.Output()
	// P = (100·40)>>7, I = ((100·2048)>>11)·30>>13, D = ((100·511)>>5)/4·10>>8
	assert.Equal(t, [3]float64{31, 31, 66}, out.P)
	assert.Equal(t, [3]float64{0, 0, 0}, out.I)
	assert.Equal(t, [3]float64{15, 15, 15}, out.D)
	assert.Equal(t, [3]int16{46, 46, 81}, out.Axis)
	assert.Equal(t, int16(46), c.Roll())
	assert.Equal(t, int16(46), c.Pitch())
	assert.Equal(t, int16(81), c.Yaw())
}

func TestMWRewriteStickRate(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	// (173+27)·8>>4 = 100
	c.InputUser(8, 0, 16)
	c.Update(testDt, quad)
	assert.Equal(t, float64(31), c.Output().P[Roll])
	// (173+27)·16>>5 = 100, 100·85>>7 = 66
	assert.Equal(t, float64(66), c.Output().P[Yaw])
}

func TestMWRewriteITermConstrain(t *testing.T) {
	cfg := testConfig()
	cfg.LoopTime = 8192
	c := newTestController(cfg, MWRewrite)
	c.InputBodyRates(gyroForRateError(32750), 0, 0)
	for i := 0; i < 20; i++ {
		c.Update(0.008192, quad)
	}
	assert.Equal(t, float64(GyroIMax), c.Output().I[Roll])
}

func TestLuxFloatTerms(t *testing.T) {
	cfg := testConfig()
	c := newTestController(cfg, LuxFloat)
	g := gyroForRateError(100)
	c.InputBodyRates(g, g, g)

	wantP := luxPTermScale * 100 * 40
	wantIStep := luxITermScale * 100 * testDt * 30
	wantD := luxDTermScale * 100 * 10 / testDt / DtermAverageCount

	for step := 1; step <= 5; step++ {
		c.Update(testDt, quad)
		out := c.Output()
		assert.InDelta(t, wantP, out.P[Roll], 1e-9, "step %d", step)
		assert.InDelta(t, wantIStep*float64(step), out.I[Roll], 1e-9, "step %d", step)
		if step <= DtermAverageCount {
			assert.InDelta(t, wantD, out.D[Roll], 1e-6, "step %d", step)
		} else {
			assert.InDelta(t, 0, out.D[Roll], 1e-9, "step %d", step)
		}
	}
	assert.InDelta(t, luxPTermScale*100*85, c.Output().P[Yaw], 1e-9)
}

func TestLuxFloatIntegratesLinearError(t *testing.T) {
	cfg := testConfig()
	c := newTestController(cfg, LuxFloat)

	const k = 1000.0
	const dt = 0.01
	var tm, pidI, actI float64
	for i := 0; i < 10; i++ {
		prevPid, prevAct := pidI, actI
		tm += dt
		c.InputBodyRates(gyroForRateError(k*tm), 0, 0)
		c.Update(dt, quad)

		pidI = c.Output().I[Roll]
		actI = 0.5 * k * tm * tm * float64(cfg.I[Roll]) * luxITermScale
		limit := k * dt * dt * float64(cfg.I[Roll]) * luxITermScale
		assert.LessOrEqual(t, math.Abs((actI-prevAct)-(pidI-prevPid)), limit, "step %d", i)
	}
}

func TestFixedAndFloatStrategiesAgree(t *testing.T) {
	fixed := newTestController(testConfig(), MWRewrite)
	float := newTestController(testConfig(), LuxFloat)

	// two periods of a 400 count sine
	for step := 0; step < 40; step++ {
		g := int32(math.Round(400 * math.Sin(2*math.Pi*float64(step)/20)))
		fixed.InputBodyRates(g, 0, 0)
		float.InputBodyRates(g, 0, 0)
		fixed.Update(testDt, quad)
		float.Update(testDt, quad)
		f, l := fixed.Output(), float.Output()

		assert.InDelta(t, l.P[Roll], f.P[Roll], agreement(l.P[Roll]), "P step %d", step)
		assert.InDelta(t, l.I[Roll], f.I[Roll], agreement(l.I[Roll]), "I step %d", step)
		assert.InDelta(t, l.D[Roll], f.D[Roll], agreement(l.D[Roll]), "D step %d", step)
	}
}

// agreement is 1% of v or one output unit, whichever is larger.
func agreement(v float64) float64 {
	return math.Max(math.Abs(v)/100, 1)
}

func TestZeroLoopTimeIsConstrained(t *testing.T) {
	cfg := testConfig()
	cfg.LoopTime = 0
	c := newTestController(cfg, MWRewrite)
	assert.Equal(t, int32(MinLoopTime), c.state.(*mwRewriteState).looptime)

	require.NotPanics(t, func() {
		c.InputBodyRates(gyroForRateError(100), 0, 0)
		c.Update(testDt, quad)
		c.InputBodyRates(gyroForRateError(-100), 0, 0)
		c.Update(testDt, quad)
	})
	assert.NotZero(t, c.Output().D[Roll])
	assert.LessOrEqual(t, math.Abs(c.Output().D[Roll]), float64(MaxD))
}

func TestDTermSkippedWhenGainZero(t *testing.T) {
	cfg := testConfig()
	cfg.D[Roll] = 0
	for _, a := range []Algorithm{MWRewrite, LuxFloat} {
		t.Run(a.String(), func(t *testing.T) {
			c := newTestController(cfg, a)
			c.InputBodyRates(gyroForRateError(300), 0, 0)
			c.Update(testDt, quad)
			assert.Zero(t, c.Output().D[Roll])
		})
	}

	c := newTestController(cfg, MWRewrite)
	c.InputBodyRates(gyroForRateError(300), 0, 0)
	c.Update(testDt, quad)
	assert.Zero(t, c.state.(*mwRewriteState).lastRate[Roll])
}

func TestDTermFilter(t *testing.T) {
	cfg := testConfig()
	cfg.DtermCutHz = 50
	for _, a := range []Algorithm{MWRewrite, LuxFloat} {
		t.Run(a.String(), func(t *testing.T) {
			c := newTestController(cfg, a)
			c.InputBodyRates(gyroForRateError(100), 0, 0)
			c.Update(testDt, quad)
			d := c.Output().D[Roll]
			assert.Greater(t, d, 0.0)
			assert.Less(t, d, 15.0)
		})
	}
}

func TestYawPLimit(t *testing.T) {
	cfg := testConfig()
	cfg.YawPLimit = 100
	tests := []struct {
		algo   Algorithm
		motors int
		want   float64
	}{
		{MWRewrite, 4, 100},
		{MWRewrite, 3, 664},
		{LuxFloat, 4, 100},
		{LuxFloat, 3, 664.0625},
		{MW23, 4, 100},
		{MW23, 3, 1328},
	}
	for _, tt := range tests {
		c := newTestController(cfg, tt.algo)
		c.InputBodyRates(0, 0, gyroForRateError(1000))
		c.Update(testDt, CycleInput{MotorCount: tt.motors})
		assert.InDelta(t, tt.want, c.Output().P[Yaw], 1e-9, "%s with %d motors", tt.algo, tt.motors)
	}
}

func TestPIDAxisWeight(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	c.SetPIDAxisWeight(Roll, 50)
	c.SetPIDAxisWeight(Yaw, 250)
	c.InputBodyRates(gyroForRateError(100), 0, gyroForRateError(100))
	c.Update(testDt, quad)
	assert.Equal(t, float64(15), c.Output().P[Roll])
	assert.Equal(t, float64(66), c.Output().P[Yaw])
}

func TestAirModeAntiWindup(t *testing.T) {
	for _, a := range []Algorithm{MW23, MWRewrite, LuxFloat} {
		t.Run(a.String(), func(t *testing.T) {
			c := newTestController(testConfig(), a)
			c.SetAirMode(true)
			c.InputBodyRates(gyroForRateError(100), 0, 0)
			for i := 0; i < 5; i++ {
				c.Update(testDt, quad)
			}
			held := lastRollI(c)
			require.NotZero(t, held)

			saturated := CycleInput{MotorCount: 4, MotorLimitReached: true}
			for i := 0; i < 5; i++ {
				c.Update(testDt, saturated)
			}
			assert.Equal(t, held, lastRollI(c))

			c.SetAntiWindup(true)
			c.Update(testDt, quad)
			assert.Equal(t, held, lastRollI(c))

			c.SetAntiWindup(false)
			c.Update(testDt, quad)
			assert.Greater(t, lastRollI(c), held)
		})
	}
}

func TestWithoutAirModeIntegralKeepsGrowing(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	c.InputBodyRates(gyroForRateError(100), 0, 0)
	c.Update(testDt, quad)
	first := lastRollI(c)
	c.Update(testDt, CycleInput{MotorCount: 4, MotorLimitReached: true})
	assert.Greater(t, lastRollI(c), first)
}

func lastRollI(c *Controller) float64 {
	switch s := c.state.(type) {
	case *mwRewriteState:
		return float64(s.lastI[Roll])
	case *luxFloatState:
		return s.lastI[Roll]
	case *mw23State:
		return float64(s.lastI[Roll])
	}
	return 0
}

func TestResetRateIntegral(t *testing.T) {
	for _, a := range []Algorithm{MW23, MWRewrite, LuxFloat} {
		t.Run(a.String(), func(t *testing.T) {
			c := newTestController(testConfig(), a)
			c.InputBodyRates(gyroForRateError(100), 0, 0)
			for i := 0; i < 50; i++ {
				c.Update(testDt, quad)
			}
			require.NotZero(t, lastRollI(c))

			c.ResetRateIntegral()
			assert.Zero(t, lastRollI(c))
		})
	}
}

func TestResetAngleIntegral(t *testing.T) {
	c := newTestController(testConfig(), MW23)
	c.SetMode(ModeAngle)
	c.InputBodyAngles(100, -50, 0)
	c.Update(testDt, quad)

	s := c.state.(*mw23State)
	assert.Equal(t, [2]int32{-100, 50}, s.angleI)
	c.ResetAngleIntegral()
	assert.Equal(t, [2]int32{}, s.angleI)
}

func TestAngleModeLevels(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	c.SetMode(ModeAngle)
	c.InputBodyAngles(100, 0, 0)
	c.Update(testDt, quad)

	// errorAngle -100 → angleRate -100·90>>4 = -563 → P -563·40>>7
	assert.Equal(t, float64(-176), c.Output().P[Roll])
	assert.Zero(t, c.Output().P[Pitch])
}

func TestAngleModeLimitsInclination(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	c.SetMode(ModeAngle)
	c.InputUser(500, 0, 0)
	c.Update(testDt, quad)
	// stick asks for 100°, clamped to 50°: 500·90>>4 = 2812
	assert.Equal(t, float64(2812*40>>7), c.Output().P[Roll])
}

func TestHorizonBlend(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	c.SetMode(ModeHorizon)
	c.InputBodyAngles(100, 0, 0)
	c.Update(testDt, quad)
	// full strength at centre stick: (-100·10·100/100)>>4 = -63
	assert.Equal(t, float64(-63*40>>7), c.Output().P[Roll])

	c = newTestController(testConfig(), MWRewrite)
	c.SetMode(ModeHorizon)
	c.InputBodyAngles(100, 0, 0)
	c.InputUser(0, 500, 0)
	c.Update(testDt, quad)
	// no levelling at full deflection: the roll rate target is zero
	assert.Zero(t, c.Output().P[Roll])
}

func TestLuxFloatHorizonBlend(t *testing.T) {
	c := newTestController(testConfig(), LuxFloat)
	c.SetMode(ModeHorizon)
	c.InputBodyAngles(100, 0, 0)
	c.Update(testDt, quad)
	assert.InDelta(t, luxPTermScale*(-100*10.0/16)*40, c.Output().P[Roll], 1e-9)
}

func TestMW23(t *testing.T) {
	c := newTestController(testConfig(), MW23)
	c.InputUser(100, 0, 0)
	c.Update(testDt, quad)
	assert.Equal(t, float64(125), c.Output().P[Roll])
	assert.Equal(t, int16(125), c.Roll())

	s := c.state.(*mw23State)
	assert.Equal(t, int32(200), s.lastI[Roll])

	// spinning faster than the integral can be trusted
	c.InputBodyRates(3000, 0, 0)
	c.Update(testDt, quad)
	assert.Zero(t, s.lastI[Roll])
}

func TestMW23Yaw(t *testing.T) {
	c := newTestController(testConfig(), MW23)
	c.InputUser(0, 0, 100)
	c.Update(testDt, quad)
	// rc = 100·(2·173+30)>>5 = 1175, past the reset threshold
	assert.Equal(t, float64(1175*85>>6), c.Output().P[Yaw])
	assert.Zero(t, c.Output().I[Yaw])
	assert.Zero(t, c.Output().D[Yaw])

	c.InputUser(0, 0, 0)
	c.InputBodyRates(0, 0, gyroForRateError(20))
	for i := 0; i < 100; i++ {
		c.Update(testDt, quad)
	}
	// 100 cycles of 20·45 in Q13
	assert.Equal(t, float64(100*20*45>>13), c.Output().I[Yaw])
}

func TestMW23DTermAveragesThreeSamples(t *testing.T) {
	c := newTestController(testConfig(), MW23)
	c.InputBodyRates(-40, 0, 0) // gyroError -10
	c.Update(testDt, quad)
	// delta 10, three sample sum 10, ·10>>5
	assert.Equal(t, float64(10*10>>5), c.Output().D[Roll])
	c.Update(testDt, quad)
	assert.Equal(t, float64(10*10>>5), c.Output().D[Roll])
	c.Update(testDt, quad)
	c.Update(testDt, quad)
	assert.Zero(t, c.Output().D[Roll])
}

func TestSetAlgorithm(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	c.InputBodyRates(gyroForRateError(100), 0, 0)
	c.Update(testDt, quad)
	require.NotZero(t, c.Roll())

	c.SetAlgorithm(LuxFloat)
	assert.Equal(t, LuxFloat, c.Algorithm())
	assert.Equal(t, Output{}, c.Output())
	assert.Zero(t, lastRollI(c))

	c.SetAlgorithm(Algorithm(9))
	assert.Equal(t, MWRewrite, c.Algorithm())
}

func TestInputUserClamps(t *testing.T) {
	c := newTestController(testConfig(), MWRewrite)
	c.InputUser(900, -900, 200)
	assert.Equal(t, [3]int32{500, -500, 200}, c.user)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("LuxFloat")
	require.NoError(t, err)
	assert.Equal(t, LuxFloat, a)

	_, err = ParseAlgorithm("pidx")
	assert.Error(t, err)

	var cfg struct {
		Algorithm Algorithm `yaml:"algorithm"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("algorithm: mw23\n"), &cfg))
	assert.Equal(t, MW23, cfg.Algorithm)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, "algorithm: mw23\n", string(out))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Horizon")
	require.NoError(t, err)
	assert.Equal(t, ModeHorizon, m)
	assert.Equal(t, "angle", ModeAngle.String())

	_, err = ParseMode("3d")
	assert.Error(t, err)

	var cfg struct {
		Mode Mode `yaml:"mode"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("mode: angle\n"), &cfg))
	assert.Equal(t, ModeAngle, cfg.Mode)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []func(*Config){
		func(c *Config) { c.LoopTime = 10 },
		func(c *Config) { c.LoopTime = MinLoopTime - 1 },
		func(c *Config) { c.TPABreakpoint = 900 },
		func(c *Config) { c.TPARate = MaxTPARate + 1 },
		func(c *Config) { c.YawPLimit = 50 },
		func(c *Config) { c.MaxAngleInclination = 0 },
		func(c *Config) { c.Algorithm = algorithmCount },
		func(c *Config) { c.GyroScale = 0 },
	}
	for i, mutate := range tests {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestTPA(t *testing.T) {
	cfg := testConfig()
	cfg.TPABreakpoint, cfg.TPARate = 1500, 50
	tests := []struct {
		throttle uint16
		want     int32
	}{
		{1000, 100},
		{1499, 100},
		{1500, 100},
		{1750, 75},
		{1900, 60},
		{2000, 50},
		{2100, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.TPA(tt.throttle), "throttle %d", tt.throttle)
	}

	cfg.TPARate = 0
	assert.Equal(t, int32(100), cfg.TPA(2000))
}

func TestAxisScale(t *testing.T) {
	cfg := testConfig()
	cfg.Rates = [3]uint8{50, 100, 20}
	assert.Equal(t, int32(100), cfg.AxisScale(Roll, 0, 100))
	assert.Equal(t, int32(75), cfg.AxisScale(Roll, 250, 100))
	assert.Equal(t, int32(48), cfg.AxisScale(Roll, 400, 80))
	assert.Equal(t, int32(0), cfg.AxisScale(Pitch, 500, 100))
	assert.Equal(t, int32(0), cfg.AxisScale(Pitch, 700, 100))
	// yaw ignores the throttle weight
	assert.Equal(t, int32(80), cfg.AxisScale(Yaw, 500, 50))

	cfg.Rates[Roll] = 255
	assert.Equal(t, int32(0), cfg.AxisScale(Roll, 500, 100))
}

func TestAxisScaleDrivesLegacyGains(t *testing.T) {
	cfg := testConfig()
	cfg.Rates[Roll] = 50
	c := newTestController(cfg, MW23)
	c.SetPIDAxisScale(Roll, cfg.AxisScale(Roll, 500, 100))
	assert.Equal(t, int32(20), c.dynP[Roll])
	assert.Equal(t, int32(15), c.dynI[Roll])
	assert.Equal(t, int32(5), c.dynD[Roll])
}

package sensors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"tinygo.org/x/drivers/lis2mdl"
	"tinygo.org/x/drivers/lsm6ds3tr"
	"tinygo.org/x/drivers/tester"
)

func putLE(regs []uint8, at int, v Vector) {
	for i, c := range v {
		u := uint16(int16(c))
		regs[at+2*i] = uint8(u)
		regs[at+2*i+1] = uint8(u >> 8)
	}
}

func putBE(regs []uint8, at int, v Vector) {
	for i, c := range v {
		u := uint16(int16(c))
		regs[at+2*i] = uint8(u >> 8)
		regs[at+2*i+1] = uint8(u)
	}
}

func newFakeIMU(t *testing.T) (*tester.I2CBus, *tester.I2CDevice8) {
	bus := tester.NewI2CBus(t)
	dev := bus.NewDevice(lsm6ds3tr.Address)
	dev.Registers[lsm6ds3tr.WHO_AM_I] = 0x6A
	return bus, dev
}

func TestIMUConfigure(t *testing.T) {
	bus, dev := newFakeIMU(t)
	m := NewIMU(bus, DefaultIMUConfig())

	require.NoError(t, m.Configure())
	assert.Equal(t, uint8(lsm6ds3tr.ACCEL_8G)|uint8(lsm6ds3tr.ACCEL_SR_833), dev.Registers[lsm6ds3tr.CTRL1_XL])
	assert.Equal(t, uint8(lsm6ds3tr.GYRO_1000DPS)|uint8(lsm6ds3tr.GYRO_SR_833), dev.Registers[lsm6ds3tr.CTRL2_G])
	assert.Equal(t, uint8(lsm6ds3tr.BW_SCAL_ODR_ENABLED), dev.Registers[lsm6ds3tr.CTRL4_C]&lsm6ds3tr.BW_SCAL_ODR_ENABLED)
}

func TestIMUNotConnected(t *testing.T) {
	bus, dev := newFakeIMU(t)
	dev.Registers[lsm6ds3tr.WHO_AM_I] = 0
	m := NewIMU(bus, DefaultIMUConfig())

	err := m.Configure()
	require.Error(t, err)
	assert.Equal(t, ErrNotConnected, errors.Cause(err))
}

func TestIMUReadsCounts(t *testing.T) {
	bus, dev := newFakeIMU(t)
	m := NewIMU(bus, DefaultIMUConfig())
	require.NoError(t, m.Configure())

	putLE(dev.Registers[:], lsm6ds3tr.OUTX_L_G, Vector{10, -20, 30})
	putLE(dev.Registers[:], lsm6ds3tr.OUTX_L_XL, Vector{100, -200, 4098})

	g, err := m.ReadGyro()
	require.NoError(t, err)
	assert.Equal(t, Vector{10, -20, 30}, g)

	a, err := m.ReadAccel()
	require.NoError(t, err)
	assert.Equal(t, Vector{100, -200, 4098}, a)
}

func TestIMUScales(t *testing.T) {
	tests := []struct {
		cfg       IMUConfig
		gyroScale float64
		acc1G     int32
	}{
		{IMUConfig{AccelRangeG: 2, GyroRangeDPS: 500}, 0.0175, 16393},
		{IMUConfig{AccelRangeG: 4, GyroRangeDPS: 1000}, 0.035, 8196},
		{IMUConfig{AccelRangeG: 8, GyroRangeDPS: 2000}, 0.07, 4098},
		{IMUConfig{AccelRangeG: 16, GyroRangeDPS: 2000}, 0.07, 2049},
	}
	for _, tt := range tests {
		m := NewIMU(nil, tt.cfg)
		assert.InDelta(t, tt.gyroScale, m.GyroScale(), 1e-12)
		assert.Equal(t, tt.acc1G, m.Acc1G())
	}
}

func TestIMUBusError(t *testing.T) {
	bus, dev := newFakeIMU(t)
	m := NewIMU(bus, DefaultIMUConfig())
	require.NoError(t, m.Configure())

	dev.Err = errors.New("nack")
	_, err := m.ReadGyro()
	assert.EqualError(t, err, "read rotation: nack")
	_, err = m.ReadAccel()
	assert.EqualError(t, err, "read acceleration: nack")
}

func TestCompass(t *testing.T) {
	bus := tester.NewI2CBus(t)
	dev := bus.NewDevice(lis2mdl.ADDRESS)
	c := NewCompass(bus)

	err := c.Configure()
	assert.Equal(t, ErrNotConnected, errors.Cause(err))

	dev.Registers[lis2mdl.WHO_AM_I] = 0x40
	require.NoError(t, c.Configure())

	putBE(dev.Registers[:], lis2mdl.OUTX_L_REG, Vector{-300, 150, 420})
	v, err := c.ReadMag()
	require.NoError(t, err)
	assert.Equal(t, Vector{-300, 150, 420}, v)
}

func TestAlign(t *testing.T) {
	v := Vector{1, 2, 3}
	tests := map[Alignment]Vector{
		AlignDefault: {1, 2, 3},
		CW0:          {1, 2, 3},
		CW90:         {2, -1, 3},
		CW180:        {-1, -2, 3},
		CW270:        {-2, 1, 3},
		CW0Flip:      {-1, 2, -3},
		CW90Flip:     {2, 1, -3},
		CW180Flip:    {1, -2, -3},
		CW270Flip:    {-2, -1, -3},
	}
	for a, want := range tests {
		assert.Equal(t, want, Align(v, a), a.String())
	}
}

func TestBoardRotation(t *testing.T) {
	var nilBoard *Board
	assert.Equal(t, Vector{4, 5, 6}, nilBoard.Rotate(Vector{4, 5, 6}, CW0))

	standard := NewBoard(BoardAlignment{})
	assert.Equal(t, Vector{2, -1, 3}, standard.Rotate(Vector{1, 2, 3}, CW90))

	yawed := NewBoard(BoardAlignment{Yaw: 90})
	assert.Equal(t, Vector{0, 1000, 0}, yawed.Rotate(Vector{1000, 0, 0}, CW0))

	rolled := NewBoard(BoardAlignment{Roll: 180})
	assert.Equal(t, Vector{1000, -500, -4096}, rolled.Rotate(Vector{1000, 500, 4096}, CW0))
}

func TestAlignmentYAML(t *testing.T) {
	var cfg struct {
		Gyro Alignment `yaml:"gyro"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("gyro: CW270Flip\n"), &cfg))
	assert.Equal(t, CW270Flip, cfg.Gyro)

	assert.Error(t, yaml.Unmarshal([]byte("gyro: sideways\n"), &cfg))

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gyro: cw270flip\n", string(out))
}

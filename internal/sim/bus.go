package sim

import (
	"math"

	"github.com/pkg/errors"
	"tinygo.org/x/drivers/lis2mdl"
	"tinygo.org/x/drivers/lsm6ds3tr"
)

const registerCount = 0x80

// Bus is an I2C bus carrying an LSM6DS3TR and an LIS2MDL whose output
// registers are filled from a Body when read.
type Bus struct {
	body *Body

	imu [registerCount]byte
	mag [registerCount]byte

	// Err, when set, fails every transaction.
	Err error
}

func NewBus(body *Body) *Bus {
	b := &Bus{body: body}
	b.imu[lsm6ds3tr.WHO_AM_I] = 0x6A
	b.mag[lis2mdl.WHO_AM_I] = 0x40
	return b
}

// Tx implements drivers.I2C. A one byte write selects the register to read
// from; a longer write stores the bytes after the register address.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if b.Err != nil {
		return b.Err
	}
	var regs *[registerCount]byte
	switch addr {
	case lsm6ds3tr.Address:
		regs = &b.imu
	case lis2mdl.ADDRESS:
		regs = &b.mag
	default:
		return errors.Errorf("no device at %#x", addr)
	}
	if len(w) == 0 {
		return errors.New("i2c transaction without register address")
	}

	reg := int(w[0])
	if len(w) > 1 {
		if reg+len(w)-1 > registerCount {
			return errors.Errorf("write past register %#x", registerCount-1)
		}
		copy(regs[reg:], w[1:])
		return nil
	}
	if reg+len(r) > registerCount {
		return errors.Errorf("read past register %#x", registerCount-1)
	}
	b.sample(addr, reg)
	copy(r, regs[reg:])
	return nil
}

// sample latches the body state into the output registers about to be read.
func (b *Bus) sample(addr uint16, reg int) {
	switch {
	case addr == lsm6ds3tr.Address && reg == lsm6ds3tr.OUTX_L_G:
		g := b.body.Gyro()
		k := gyroSensitivity(b.imu[lsm6ds3tr.CTRL2_G])
		for i := range g {
			putLE(b.imu[lsm6ds3tr.OUTX_L_G+2*i:], g[i]*1e6/k)
		}
	case addr == lsm6ds3tr.Address && reg == lsm6ds3tr.OUTX_L_XL:
		a := b.body.Accel()
		k := accelSensitivity(b.imu[lsm6ds3tr.CTRL1_XL])
		for i := range a {
			putLE(b.imu[lsm6ds3tr.OUTX_L_XL+2*i:], a[i]*1e6/k)
		}
	case addr == lis2mdl.ADDRESS && reg == lis2mdl.OUTX_L_REG:
		m := b.body.Mag()
		for i := range m {
			// the driver assembles the field high byte first
			putBE(b.mag[lis2mdl.OUTX_L_REG+2*i:], m[i])
		}
	}
}

// gyroSensitivity returns µ°/s per count for the range programmed in CTRL2_G.
func gyroSensitivity(ctrl byte) float64 {
	if ctrl&byte(lsm6ds3tr.GYRO_125DPS) != 0 {
		return 4375
	}
	switch lsm6ds3tr.GyroRange(ctrl & 0x0C) {
	case lsm6ds3tr.GYRO_500DPS:
		return 17500
	case lsm6ds3tr.GYRO_1000DPS:
		return 35000
	case lsm6ds3tr.GYRO_2000DPS:
		return 70000
	default:
		return 8750
	}
}

// accelSensitivity returns µg per count for the range programmed in CTRL1_XL.
func accelSensitivity(ctrl byte) float64 {
	switch lsm6ds3tr.AccelRange(ctrl & 0x0C) {
	case lsm6ds3tr.ACCEL_4G:
		return 122
	case lsm6ds3tr.ACCEL_8G:
		return 244
	case lsm6ds3tr.ACCEL_16G:
		return 488
	default:
		return 61
	}
}

func saturate(v float64) uint16 {
	return uint16(int16(math.Round(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))))
}

func putLE(dst []byte, v float64) {
	u := saturate(v)
	dst[0], dst[1] = byte(u), byte(u>>8)
}

func putBE(dst []byte, v float64) {
	u := saturate(v)
	dst[0], dst[1] = byte(u>>8), byte(u)
}

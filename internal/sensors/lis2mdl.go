package sensors

import (
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/lis2mdl"
)

// Compass wraps the LIS2MDL magnetometer.
type Compass struct {
	dev lis2mdl.Device
}

func NewCompass(bus drivers.I2C) *Compass {
	return &Compass{dev: lis2mdl.New(bus)}
}

// Configure checks the device identity and starts continuous conversion.
func (c *Compass) Configure() error {
	if !c.dev.Connected() {
		return errors.Wrapf(ErrNotConnected, "lis2mdl at %#x", c.dev.Address)
	}
	c.dev.Configure(lis2mdl.Configuration{})
	return nil
}

// ReadMag returns the field in counts (1.5 mG each). The driver blocks for one
// conversion, so poll it at a fraction of the loop rate.
func (c *Compass) ReadMag() (Vector, error) {
	x, y, z := c.dev.ReadMagneticField()
	return Vector{x, y, z}, nil
}

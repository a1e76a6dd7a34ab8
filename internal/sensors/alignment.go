package sensors

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// Alignment is the mounting orientation of a sensor chip on the board.
type Alignment uint8

const (
	AlignDefault Alignment = iota
	CW0
	CW90
	CW180
	CW270
	CW0Flip
	CW90Flip
	CW180Flip
	CW270Flip
)

var alignmentNames = map[string]Alignment{
	"default":   AlignDefault,
	"cw0":       CW0,
	"cw90":      CW90,
	"cw180":     CW180,
	"cw270":     CW270,
	"cw0flip":   CW0Flip,
	"cw90flip":  CW90Flip,
	"cw180flip": CW180Flip,
	"cw270flip": CW270Flip,
}

// ParseAlignment maps a config name such as "cw90flip" to an Alignment.
func ParseAlignment(s string) (Alignment, bool) {
	a, ok := alignmentNames[s]
	return a, ok
}

func (a Alignment) String() string {
	for name, v := range alignmentNames {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// UnmarshalYAML accepts alignment names in any case.
func (a *Alignment) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, ok := ParseAlignment(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return errors.Errorf("unknown sensor alignment %q", s)
	}
	*a = v
	return nil
}

func (a Alignment) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// Align rotates a reading by one of the fixed chip alignments.
func Align(v Vector, a Alignment) Vector {
	switch a {
	case CW90:
		return Vector{v[Y], -v[X], v[Z]}
	case CW180:
		return Vector{-v[X], -v[Y], v[Z]}
	case CW270:
		return Vector{-v[Y], v[X], v[Z]}
	case CW0Flip:
		return Vector{-v[X], v[Y], -v[Z]}
	case CW90Flip:
		return Vector{v[Y], v[X], -v[Z]}
	case CW180Flip:
		return Vector{v[X], -v[Y], -v[Z]}
	case CW270Flip:
		return Vector{-v[Y], -v[X], -v[Z]}
	default:
		return v
	}
}

// BoardAlignment is an arbitrary board rotation in whole degrees.
type BoardAlignment struct {
	Roll  int16 `yaml:"roll"`
	Pitch int16 `yaml:"pitch"`
	Yaw   int16 `yaml:"yaw"`
}

// Board applies the chip alignment followed by the board rotation.
type Board struct {
	rot      mgl64.Mat3
	standard bool
}

// NewBoard precomputes the rotation for a board alignment.
func NewBoard(cfg BoardAlignment) *Board {
	b := &Board{rot: mgl64.Ident3(), standard: true}
	if cfg.Roll == 0 && cfg.Pitch == 0 && cfg.Yaw == 0 {
		return b
	}
	q := mgl64.AnglesToQuat(
		mathx.DegreesToRadians(float64(cfg.Yaw)),
		mathx.DegreesToRadians(float64(cfg.Pitch)),
		mathx.DegreesToRadians(float64(cfg.Roll)),
		mgl64.ZYX,
	)
	b.rot = q.Mat4().Mat3()
	b.standard = false
	return b
}

// Rotate aligns a raw reading into the airframe body frame.
func (b *Board) Rotate(v Vector, a Alignment) Vector {
	v = Align(v, a)
	if b == nil || b.standard {
		return v
	}
	r := b.rot.Mul3x1(mgl64.Vec3{float64(v[X]), float64(v[Y]), float64(v[Z])})
	return Vector{
		mathx.Lrint(r[0]),
		mathx.Lrint(r[1]),
		mathx.Lrint(r[2]),
	}
}

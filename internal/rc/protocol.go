package rc

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Protocol selects the serial receiver protocol.
type Protocol uint8

const (
	ProtocolIBus Protocol = iota
	ProtocolCRSF
	ProtocolELRS
	protocolCount
)

var protocolNames = [protocolCount]string{"ibus", "crsf", "elrs"}

func (p Protocol) String() string {
	if p < protocolCount {
		return protocolNames[p]
	}
	return "unknown"
}

// ParseProtocol maps a protocol name to its value.
func ParseProtocol(s string) (Protocol, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range protocolNames {
		if name == s {
			return Protocol(i), nil
		}
	}
	return ProtocolIBus, errors.Errorf("unknown receiver protocol %q", s)
}

func (p *Protocol) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Protocol) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// Decoder is a byte at a time frame parser.
type Decoder interface {
	// Feed consumes one byte and reports whether it completed a valid frame.
	Feed(b byte) bool
	// Channels returns the pulse widths of the last valid frame in µs.
	Channels() [NumChannels]uint16
}

// NewDecoder returns the parser for p.
func NewDecoder(p Protocol) Decoder {
	switch p {
	case ProtocolCRSF:
		return NewCRSF()
	case ProtocolELRS:
		return NewELRS()
	default:
		return NewIBus()
	}
}

// Receiver drains a serial port into a channel store.
type Receiver struct {
	dec   Decoder
	store *Channels
}

// NewReceiver feeds frames decoded by dec into store.
func NewReceiver(dec Decoder, store *Channels) *Receiver {
	return &Receiver{dec: dec, store: store}
}

// Poll reads until r has no more buffered bytes and stores every complete
// frame. It reports whether at least one frame arrived. A read error other
// than io.EOF ends the poll and is returned.
func (r *Receiver) Poll(src io.ByteReader, now time.Time) (bool, error) {
	got := false
	for {
		b, err := src.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return got, nil
			}
			return got, errors.Wrap(err, "read receiver")
		}
		if r.dec.Feed(b) {
			r.store.Update(r.dec.Channels(), now)
			got = true
		}
	}
}

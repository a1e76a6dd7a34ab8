package sim

import (
	"io"
	"sort"
	"time"

	"github.com/BryanSouza91/WingFC/internal/rc"
)

// Link as an Event channel drops the link when Value is 0 and restores it
// otherwise.
const Link = -1

// maxPending bounds the frames buffered for a reader that stops polling.
const maxPending = 4

// Event sets a channel to a pulse width at a point of the script.
type Event struct {
	At      time.Duration
	Channel int
	Value   uint16
}

// Transmitter plays a script of stick movements and emits receiver frames
// at the protocol's frame rate. It is read as a serial port.
type Transmitter struct {
	protocol rc.Protocol
	period   time.Duration

	channels [rc.NumChannels]uint16
	script   []Event
	next     int

	now        time.Duration
	sinceFrame time.Duration
	linkLost   bool

	frames  int
	pending []byte
}

// NewTransmitter starts with every channel at mid.
func NewTransmitter(p rc.Protocol, mid uint16, script []Event) *Transmitter {
	t := &Transmitter{
		protocol: p,
		period:   7 * time.Millisecond,
		script:   append([]Event(nil), script...),
	}
	if p != rc.ProtocolIBus {
		t.period = 4 * time.Millisecond
	}
	for i := range t.channels {
		t.channels[i] = mid
	}
	sort.SliceStable(t.script, func(i, j int) bool { return t.script[i].At < t.script[j].At })
	return t
}

// Set moves a channel now. Unknown channels are ignored.
func (t *Transmitter) Set(ch int, us uint16) {
	if ch >= 0 && ch < rc.NumChannels {
		t.channels[ch] = us
	}
}

func (t *Transmitter) SetLinkLost(lost bool)  { t.linkLost = lost }
func (t *Transmitter) LinkLost() bool         { return t.linkLost }
func (t *Transmitter) Elapsed() time.Duration { return t.now }

// Channel returns the pulse width currently sent on ch.
func (t *Transmitter) Channel(ch int) uint16 {
	if ch < 0 || ch >= rc.NumChannels {
		return 0
	}
	return t.channels[ch]
}

// Frames is the number of frames sent so far.
func (t *Transmitter) Frames() int { return t.frames }

// Advance moves the script clock forward, applying due events and queueing
// the frames that fall in the interval.
func (t *Transmitter) Advance(d time.Duration) {
	t.now += d
	for t.next < len(t.script) && t.script[t.next].At <= t.now {
		e := t.script[t.next]
		if e.Channel == Link {
			t.linkLost = e.Value == 0
		} else {
			t.Set(e.Channel, e.Value)
		}
		t.next++
	}

	t.sinceFrame += d
	for t.sinceFrame >= t.period {
		t.sinceFrame -= t.period
		if !t.linkLost {
			t.send()
		}
	}
}

func (t *Transmitter) send() {
	var frame []byte
	switch t.protocol {
	case rc.ProtocolIBus:
		f := rc.EncodeIBus(t.channels)
		frame = f[:]
	default:
		f := rc.EncodeCRSF(t.channels)
		frame = f[:]
	}
	if len(t.pending) >= maxPending*len(frame) {
		t.pending = t.pending[len(frame):]
	}
	t.pending = append(t.pending, frame...)
	t.frames++
}

// ReadByte returns io.EOF when no byte is buffered.
func (t *Transmitter) ReadByte() (byte, error) {
	if len(t.pending) == 0 {
		return 0, io.EOF
	}
	b := t.pending[0]
	t.pending = t.pending[1:]
	return b, nil
}

// DefaultScript arms the aircraft, hovers with a roll and a pitch input,
// loses the link for a while, disarms and arms again.
func DefaultScript(cfg rc.Config) []Event {
	roll, pitch, throttle := int(cfg.Map[rc.Roll]), int(cfg.Map[rc.Pitch]), int(cfg.Map[rc.Throttle])
	arm, cal := int(cfg.ArmChannel), int(cfg.CalibrateChannel)
	s := time.Second
	ms := time.Millisecond
	return []Event{
		{0, throttle, 1000},
		{0, arm, 1000},
		{0, cal, 1000},
		{3 * s, arm, 2000},
		{4 * s, throttle, 1400},
		{5 * s, roll, 1650},
		{5500 * ms, roll, 1500},
		{6 * s, pitch, 1350},
		{6500 * ms, pitch, 1500},
		{7500 * ms, Link, 0},
		{8200 * ms, Link, 1},
		{8500 * ms, arm, 1000},
		{8500 * ms, throttle, 1000},
		{9 * s, arm, 2000},
	}
}

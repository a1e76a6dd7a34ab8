package rc

// iBus frame: two header bytes, 14 little endian channels and a little
// endian checksum of 0xFFFF minus the sum of every preceding byte.
const (
	IBusHeader1     = 0x20
	IBusHeader2     = 0x40
	IBusChannels    = 14
	IBusPacketSize  = 2 + 2*IBusChannels + 2
	ibusPayloadSize = 2 * IBusChannels
)

type ibusState int

const (
	ibusWaitHeader1 ibusState = iota
	ibusWaitHeader2
	ibusPayload
	ibusChecksumLow
	ibusChecksumHigh
)

// IBus decodes FlySky iBus frames.
type IBus struct {
	state    ibusState
	payload  [ibusPayloadSize]byte
	index    int
	checksum uint16
	received uint16
	channels [NumChannels]uint16
}

func NewIBus() *IBus { return &IBus{} }

func (d *IBus) Feed(b byte) bool {
	switch d.state {
	case ibusWaitHeader1:
		if b == IBusHeader1 {
			d.state = ibusWaitHeader2
		}
	case ibusWaitHeader2:
		if b != IBusHeader2 {
			d.state = ibusWaitHeader1
			return false
		}
		d.state = ibusPayload
		d.index = 0
		d.checksum = 0xFFFF - IBusHeader1 - IBusHeader2
	case ibusPayload:
		d.payload[d.index] = b
		d.checksum -= uint16(b)
		d.index++
		if d.index == ibusPayloadSize {
			d.state = ibusChecksumLow
		}
	case ibusChecksumLow:
		d.received = uint16(b)
		d.state = ibusChecksumHigh
	case ibusChecksumHigh:
		d.received |= uint16(b) << 8
		d.state = ibusWaitHeader1
		if d.received != d.checksum {
			return false
		}
		for i := 0; i < IBusChannels; i++ {
			d.channels[i] = uint16(d.payload[2*i]) | uint16(d.payload[2*i+1])<<8
		}
		return true
	}
	return false
}

func (d *IBus) Channels() [NumChannels]uint16 { return d.channels }

// EncodeIBus builds a frame carrying the first 14 channels.
func EncodeIBus(ch [NumChannels]uint16) [IBusPacketSize]byte {
	var f [IBusPacketSize]byte
	f[0], f[1] = IBusHeader1, IBusHeader2
	for i := 0; i < IBusChannels; i++ {
		f[2+2*i] = byte(ch[i])
		f[3+2*i] = byte(ch[i] >> 8)
	}
	sum := uint16(0xFFFF)
	for _, b := range f[:IBusPacketSize-2] {
		sum -= uint16(b)
	}
	f[IBusPacketSize-2] = byte(sum)
	f[IBusPacketSize-1] = byte(sum >> 8)
	return f
}

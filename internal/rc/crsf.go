package rc

// CRSF (Crossfire) framing as used by TBS Crossfire and ExpressLRS.
const (
	CRSFAddressFlightController = 0xC8
	CRSFFrameTypeRCChannels     = 0x16

	CRSFChannels = 16
	// sync, length, type, 22 bytes of packed channels, CRC
	CRSFPacketSize = 26

	crsfPayloadSize = 22
	crsfMaxLength   = 64

	CRSFChannelValueMin = 172  // 988µs
	CRSFChannelValueMid = 992  // 1500µs
	CRSFChannelValueMax = 1811 // 2012µs

	// Baud rate of the receiver UART. ELRS receivers often run 420000 too.
	CRSFBaudRate = 420000
)

type crsfState int

const (
	crsfDestination crsfState = iota
	crsfLength
	crsfType
	crsfPayload
	crsfChecksum
)

// CRSF decodes RC channel frames. Other frame types are skipped.
type CRSF struct {
	state    crsfState
	packet   [CRSFPacketSize]byte
	index    int
	length   int
	channels [NumChannels]uint16
}

func NewCRSF() *CRSF { return &CRSF{} }

// ELRS receivers speak CRSF.
type ELRS = CRSF

func NewELRS() *ELRS { return NewCRSF() }

func (d *CRSF) reset() {
	d.index = 0
	d.state = crsfDestination
}

func (d *CRSF) Feed(b byte) bool {
	switch d.state {
	case crsfDestination:
		if b == CRSFAddressFlightController {
			d.packet[0] = b
			d.index = 1
			d.state = crsfLength
		}
	case crsfLength:
		// The length counts the type, the payload and the CRC.
		d.length = int(b)
		if d.length != crsfPayloadSize+2 {
			d.reset()
			return false
		}
		d.packet[d.index] = b
		d.index++
		d.state = crsfType
	case crsfType:
		if b != CRSFFrameTypeRCChannels {
			d.reset()
			return false
		}
		d.packet[d.index] = b
		d.index++
		d.state = crsfPayload
	case crsfPayload:
		d.packet[d.index] = b
		d.index++
		if d.index >= d.length+1 {
			d.state = crsfChecksum
		}
	case crsfChecksum:
		ok := crc8(d.packet[2:d.index]) == b
		if ok {
			d.unpack()
		}
		d.reset()
		return ok
	}
	return false
}

// unpack reads the 11 bit channel values.
func (d *CRSF) unpack() {
	bitstream := d.packet[3 : 3+crsfPayloadSize]
	var bits uint
	var value uint32
	var next int
	for n := 0; n < CRSFChannels; n++ {
		for bits < 11 {
			value |= uint32(bitstream[next]) << bits
			next++
			bits += 8
		}
		d.channels[n] = CRSFTicksToMicros(uint16(value & 0x07FF))
		value >>= 11
		bits -= 11
	}
}

func (d *CRSF) Channels() [NumChannels]uint16 { return d.channels }

// CRSFTicksToMicros converts a channel value to a pulse width.
func CRSFTicksToMicros(v uint16) uint16 {
	return uint16(1500 + (int32(v)-CRSFChannelValueMid)*5/8)
}

// CRSFMicrosToTicks converts a pulse width to a channel value.
func CRSFMicrosToTicks(us uint16) uint16 {
	v := CRSFChannelValueMid + (int32(us)-1500)*8/5
	return uint16(min(max(v, 0), 0x07FF))
}

// EncodeCRSF builds an RC channels frame from the first 16 pulse widths.
func EncodeCRSF(ch [NumChannels]uint16) [CRSFPacketSize]byte {
	var f [CRSFPacketSize]byte
	f[0] = CRSFAddressFlightController
	f[1] = crsfPayloadSize + 2
	f[2] = CRSFFrameTypeRCChannels

	var bits uint
	var value uint32
	out := 3
	for n := 0; n < CRSFChannels; n++ {
		value |= uint32(CRSFMicrosToTicks(ch[n])) << bits
		bits += 11
		for bits >= 8 {
			f[out] = byte(value)
			out++
			value >>= 8
			bits -= 8
		}
	}
	f[CRSFPacketSize-1] = crc8(f[2 : CRSFPacketSize-1])
	return f
}

// crc8 is CRC-8/DVB-S2 over the frame type and payload.
func crc8(data []byte) byte {
	crc := byte(0)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0xD5
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

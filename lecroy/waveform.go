package lecroy

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/amcc/golab/oscilloscope"
)

// byte offsets of the WAVEDESC fields used by the decoder
const (
	offWaveDesc        = 36
	offUserText        = 40
	offTrigTimeArray   = 48
	offRISTimeArray    = 52
	offWaveArrayCount  = 116
	offPointsPerScreen = 120
	offVerticalGain    = 156
	offVerticalOffset  = 160
	offHorizInterval   = 176
	offHorizOffset     = 180

	// MinDescriptorLength is the shortest WAVEDESC holding every field above
	MinDescriptorLength = 188

	// codes at or above clipHigh, or equal to clipLow, are off screen
	clipHigh = 32512
	clipLow  = -32768
)

// DecodeError is returned when a waveform block is malformed
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "lecroy: cannot decode waveform: " + e.Reason
}

func decodeErr(format string, a ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(format, a...)}
}

// Descriptor holds the WAVEDESC fields needed to calibrate a trace
type Descriptor struct {
	Length          int
	UserTextLength  int
	TrigTimeLength  int
	RISTimeLength   int
	WaveArrayCount  int
	PointsPerScreen int
	VerticalGain    float32
	VerticalOffset  float32
	HorizInterval   float32
	HorizOffset     float64
}

var le = binary.LittleEndian

func i32(b []byte, off int) int {
	return int(int32(le.Uint32(b[off:])))
}

func f32(b []byte, off int) float32 {
	return math.Float32frombits(le.Uint32(b[off:]))
}

// ParseDescriptor reads the descriptor at the start of a waveform payload
func ParseDescriptor(payload []byte) (Descriptor, error) {
	var d Descriptor
	if len(payload) < MinDescriptorLength {
		return d, decodeErr("payload of %d bytes is shorter than a descriptor", len(payload))
	}
	d.Length = i32(payload, offWaveDesc)
	if d.Length < MinDescriptorLength {
		return d, decodeErr("descriptor length %d is less than %d", d.Length, MinDescriptorLength)
	}
	if d.Length > len(payload) {
		return d, decodeErr("descriptor length %d exceeds payload of %d bytes", d.Length, len(payload))
	}
	d.UserTextLength = i32(payload, offUserText)
	d.TrigTimeLength = i32(payload, offTrigTimeArray)
	d.RISTimeLength = i32(payload, offRISTimeArray)
	d.WaveArrayCount = i32(payload, offWaveArrayCount)
	d.PointsPerScreen = i32(payload, offPointsPerScreen)
	d.VerticalGain = f32(payload, offVerticalGain)
	d.VerticalOffset = f32(payload, offVerticalOffset)
	d.HorizInterval = f32(payload, offHorizInterval)
	d.HorizOffset = math.Float64frombits(le.Uint64(payload[offHorizOffset:]))
	if d.UserTextLength < 0 || d.TrigTimeLength < 0 || d.RISTimeLength < 0 {
		return d, decodeErr("negative array length in descriptor")
	}
	return d, nil
}

// headerEnd returns the index of the '#' that opens the block, -1 if a
// byte other than printable text or line ends comes first
func headerEnd(buf []byte) int {
	for i, b := range buf {
		switch {
		case b == '#':
			return i
		case b == '\r' || b == '\n' || b == '\t':
		case b < 0x20 || b > 0x7e:
			return -1
		}
	}
	return -1
}

// SampleOffset is the offset of the first sample in the payload
func (d Descriptor) SampleOffset() int {
	return d.Length + d.UserTextLength + d.TrigTimeLength + d.RISTimeLength
}

// Block strips the IEEE-488.2 definite length header from buf and returns the
// payload.  Printable text before the '#' is a response header and is
// ignored, one trailing newline is allowed.
func Block(buf []byte) ([]byte, error) {
	idx := headerEnd(buf)
	if idx < 0 {
		return nil, decodeErr("no block header")
	}
	buf = buf[idx+1:]
	if len(buf) == 0 || buf[0] < '1' || buf[0] > '9' {
		return nil, decodeErr("bad digit count in block header")
	}
	n := int(buf[0] - '0')
	if len(buf) < 1+n {
		return nil, decodeErr("block header truncated")
	}
	length, err := strconv.Atoi(string(buf[1 : 1+n]))
	if err != nil || length < 0 {
		return nil, decodeErr("unparseable block length %q", buf[1:1+n])
	}
	payload := buf[1+n:]
	if len(payload) == length+1 && payload[length] == '\n' {
		payload = payload[:length]
	}
	if len(payload) != length {
		return nil, decodeErr("block declares %d bytes, %d present", length, len(payload))
	}
	return payload, nil
}

// Waveform is a decoded trace and the descriptor it was calibrated with
type Waveform struct {
	oscilloscope.Trace
	Descriptor Descriptor
}

/*DecodeWaveform converts the response to a WAVEFORM? query into calibrated
time and voltage arrays.

Samples are 16 bit little endian codes.  Codes at or above 32512 and codes
of -32768 are off screen and decode to NaN.  Both arrays are truncated to
the number of points on screen or the number of samples present, whichever
is fewer.
*/
func DecodeWaveform(buf []byte) (Waveform, error) {
	var w Waveform
	payload, err := Block(buf)
	if err != nil {
		return w, err
	}
	d, err := ParseDescriptor(payload)
	if err != nil {
		return w, err
	}
	w.Descriptor = d
	start := d.SampleOffset()
	if start > len(payload) {
		return w, decodeErr("sample region starts at %d, past the end of %d byte payload", start, len(payload))
	}
	samples := payload[start:]
	if len(samples)%2 != 0 {
		return w, decodeErr("odd sample region of %d bytes", len(samples))
	}
	n := len(samples) / 2
	if d.PointsPerScreen < n {
		n = d.PointsPerScreen
	}
	if n < 0 {
		n = 0
	}
	gain := float64(d.VerticalGain)
	offset := float64(d.VerticalOffset)
	interval := float64(d.HorizInterval)
	w.Time = make([]float64, n)
	w.Voltage = make([]float64, n)
	for i := 0; i < n; i++ {
		code := int16(le.Uint16(samples[2*i:]))
		w.Time[i] = float64(i)*interval + d.HorizOffset
		if code >= clipHigh || code == clipLow {
			w.Voltage[i] = math.NaN()
			continue
		}
		w.Voltage[i] = float64(code)*gain - offset
	}
	return w, nil
}

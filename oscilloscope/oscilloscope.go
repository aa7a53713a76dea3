// Package oscilloscope provides the data types returned by scopes and other
// recording instruments, and their encoding to CSV and FITS
package oscilloscope

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"
)

var crcTable = crc.NewTable(crc.CRC32)

// Trace is one calibrated acquisition, Time in seconds and Voltage in volts.
// Samples that were off screen or clipped are NaN.
type Trace struct {
	// Channel is the source of the trace, e.g. C1 or F2
	Channel string `json:"channel"`

	Time    []float64 `json:"time"`
	Voltage []float64 `json:"voltage"`
}

// Len is the number of samples in the trace
func (t Trace) Len() int {
	return len(t.Voltage)
}

// Checksum is the CRC-32 of the little endian float64 bytes of Time followed by Voltage
func (t Trace) Checksum() uint32 {
	buf := make([]byte, 8*(len(t.Time)+len(t.Voltage)))
	off := 0
	for _, s := range [][]float64{t.Time, t.Voltage} {
		for _, v := range s {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
			off += 8
		}
	}
	return uint32(crcTable.CalculateCRC(buf))
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'G', -1, 64)
}

// EncodeCSV writes the trace as two columns, time and voltage, with a header
func (t Trace) EncodeCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	name := t.Channel
	if name == "" {
		name = "voltage"
	}
	if err := writer.Write([]string{"time", name}); err != nil {
		return err
	}
	row := make([]string, 2)
	for i := 0; i < len(t.Voltage); i++ {
		row[0] = fmtFloat(t.Time[i])
		row[1] = fmtFloat(t.Voltage[i])
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// EncodeFITS writes the trace as a 2 x N float64 image, row 0 time and row 1
// voltage.  The header carries the channel and the checksum as DATACRC.
func (t Trace) EncodeFITS(w io.Writer, metadata ...fitsio.Card) error {
	n := t.Len()
	if len(t.Time) != n {
		return fmt.Errorf("trace has %d times for %d voltages", len(t.Time), n)
	}
	metadata = append(metadata,
		fitsio.Card{Name: "CHANNEL", Value: t.Channel, Comment: "trace source"},
		fitsio.Card{Name: "XUNIT", Value: "s"},
		fitsio.Card{Name: "YUNIT", Value: "V"},
		fitsio.Card{Name: "DATACRC", Value: fmt.Sprintf("%08x", t.Checksum()), Comment: "CRC-32 of time, voltage float64 LE"})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{n, 2})
	defer im.Close()
	if err = im.Header().Append(metadata...); err != nil {
		return err
	}
	data := make([]float64, 0, 2*n)
	data = append(data, t.Time...)
	data = append(data, t.Voltage...)
	if err = im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}

// Recording is a sequence of readings from an instrument, such as a power meter log
type Recording struct {
	// RelTimes is the relative time of each sample
	RelTimes []float64 `json:"relTimes,omitempty"`

	// AbsTimes is the absolute time of each sample
	AbsTimes []time.Time `json:"absTimes,omitempty"`

	// Measurement is the actual numeric data
	Measurement []float64 `json:"measurement"`

	// Name is the label to use for the data
	Name string `json:"name"`
}

// Append adds a reading taken at t.  The first reading sets the time origin.
func (r *Recording) Append(t time.Time, v float64) {
	rel := 0.
	if len(r.AbsTimes) > 0 {
		rel = t.Sub(r.AbsTimes[0]).Seconds()
	}
	r.AbsTimes = append(r.AbsTimes, t)
	r.RelTimes = append(r.RelTimes, rel)
	r.Measurement = append(r.Measurement, v)
}

// EncodeCSV writes the recording to a CSV file.  Absolute times are written
// in RFC3339 with nanoseconds, relative times in seconds; a column is left
// out if it is empty.
func (r Recording) EncodeCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	var hdr []string
	hasAbs := len(r.AbsTimes) == len(r.Measurement) && len(r.AbsTimes) > 0
	hasRel := len(r.RelTimes) == len(r.Measurement) && len(r.RelTimes) > 0
	if hasAbs {
		hdr = append(hdr, "time")
	}
	if hasRel {
		hdr = append(hdr, "elapsed")
	}
	hdr = append(hdr, r.Name)
	if err := writer.Write(hdr); err != nil {
		return err
	}
	for i, v := range r.Measurement {
		row := hdr[:0:0]
		if hasAbs {
			row = append(row, r.AbsTimes[i].Format(time.RFC3339Nano))
		}
		if hasRel {
			row = append(row, fmtFloat(r.RelTimes[i]))
		}
		row = append(row, fmtFloat(v))
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
)

// Spectrum is a swept measurement from an analyzer, Y against X.  X is
// usually frequency in Hz.
type Spectrum struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`

	XUnit string `json:"xUnit"`
	YUnit string `json:"yUnit"`
}

// Len is the number of points in the spectrum
func (s Spectrum) Len() int {
	return len(s.Y)
}

// EncodeCSV writes the spectrum as two columns headed by their units
func (s Spectrum) EncodeCSV(w io.Writer) error {
	if len(s.X) != len(s.Y) {
		return fmt.Errorf("spectrum has %d x values for %d y values", len(s.X), len(s.Y))
	}
	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	xu, yu := s.XUnit, s.YUnit
	if xu == "" {
		xu = "x"
	}
	if yu == "" {
		yu = "y"
	}
	if err := writer.Write([]string{xu, yu}); err != nil {
		return err
	}
	row := make([]string, 2)
	for i := range s.Y {
		row[0] = fmtFloat(s.X[i])
		row[1] = fmtFloat(s.Y[i])
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

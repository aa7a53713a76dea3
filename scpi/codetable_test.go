package scpi_test

import (
	"errors"
	"testing"

	"github.com/amcc/golab/scpi"
)

func TestCodeTableBijective(t *testing.T) {
	tbl := scpi.NewCodeTable("range", []byte("CDEFGHIJKL"), []int{30, 20, 10, 0, -10, -20, -30, -40, -50, -60})
	for _, v := range tbl.Values() {
		c, err := tbl.Code(v)
		if err != nil {
			t.Fatal(err)
		}
		back, err := tbl.Value(c)
		if err != nil {
			t.Fatal(err)
		}
		if back != v {
			t.Errorf("%d -> %c -> %d", v, c, back)
		}
	}
}

func TestCodeTableUnknown(t *testing.T) {
	tbl := scpi.NewCodeTable("time constant", []int{0, 1, 2}, []float64{0.3, 1, 3})
	_, err := tbl.Code(2)
	var ia *scpi.InvalidArgument
	if !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
	_, err = tbl.Value(7)
	if !errors.Is(err, scpi.ErrUnknownCode) {
		t.Errorf("expected ErrUnknownCode, got %v", err)
	}
}

func TestCodeTablePanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate value did not panic")
		}
	}()
	scpi.NewCodeTable("bad", []string{"A", "B"}, []int{1, 1})
}

package usbtmc

import (
	"bytes"
	"testing"
)

func TestBTagSkipsZero(t *testing.T) {
	var g bTagGen
	g.value = 254
	if tag := g.next(); tag != 255 {
		t.Errorf("got %d wanted 255", tag)
	}
	if tag := g.next(); tag != 1 {
		t.Errorf("tag wrapped to %d, wanted 1", tag)
	}
}

func TestEncBulkOutHeader(t *testing.T) {
	hdr := encBulkOutHeader(7, 0x0102)
	want := [12]byte{0x01, 7, 0xf8, 0, 0x02, 0x01, 0, 0, 0x01, 0, 0, 0}
	if hdr != want {
		t.Errorf("got % x wanted % x", hdr, want)
	}
}

func TestEncBulkInHeaderTerminator(t *testing.T) {
	term := byte('\n')
	hdr := encBulkInHeader(3, 1024, &term)
	if hdr[0] != 0x02 || hdr[8] != 0x02 || hdr[9] != '\n' {
		t.Errorf("bad header % x", hdr)
	}
	hdr = encBulkInHeader(3, 1024, nil)
	if hdr[8] != 0 || hdr[9] != 0 {
		t.Errorf("terminator set without one given: % x", hdr)
	}
}

func TestDecBulkInHeader(t *testing.T) {
	hdr := encBulkInHeader(9, 5, nil)
	hdr[8] = 0x01
	size, eom, err := decBulkInHeader(hdr[:], 9)
	if err != nil || size != 5 || !eom {
		t.Errorf("got %d %v %v", size, eom, err)
	}
	if _, _, err = decBulkInHeader(hdr[:], 10); err != ErrTagMismatch {
		t.Errorf("mismatched tag gave %v", err)
	}
	if _, _, err = decBulkInHeader(hdr[:4], 9); err != ErrShortHeader {
		t.Errorf("short header gave %v", err)
	}
}

func TestPad(t *testing.T) {
	for n := 0; n < 9; n++ {
		b := pad(bytes.Repeat([]byte{1}, n))
		if len(b)%4 != 0 || len(b) < n || len(b)-n >= 4 {
			t.Errorf("pad of %d gave %d bytes", n, len(b))
		}
	}
}

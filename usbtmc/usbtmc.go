/*Package usbtmc implements the bulk transfer mode of USB Test and
Measurement Class devices, enough to carry SCPI to instruments such as the
Thorlabs PM100D power meter.

A message is sent as a DEV_DEP_MSG_OUT header followed by the payload, padded
to a multiple of 4 bytes.  A response is requested with a REQUEST_DEV_DEP_MSG_IN
header on the bulk out endpoint and then read from the bulk in endpoint, with
its own 12 byte header stripped.

It does not implement the abort / clear control requests, so a transfer that
times out leaves the device to be cleared by power cycling or a new session.
Transfers are bounded by libusb's own timeout, not the session's.
*/
package usbtmc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/gousb"
)

const (
	headerSize = 12

	// alignment of bulk out transfers, in bytes
	alignment = 4

	// maxTransfer is the size of the read buffer requested from the device
	maxTransfer = 64 * 1024

	msgOut = 0x01 // DEV_DEP_MSG_OUT
	msgIn  = 0x02 // REQUEST_DEV_DEP_MSG_IN
)

var (
	// ErrShortHeader is generated when the device responds with fewer than 12 bytes
	ErrShortHeader = errors.New("usbtmc: response shorter than a bulk-in header")

	// ErrTagMismatch is generated when the response bTag does not match the request
	ErrTagMismatch = errors.New("usbtmc: response bTag does not match request")
)

// bTagGen is a concurrent-safe bTag generator.  Tags run 1..255, 0 is not allowed.
type bTagGen struct {
	sync.Mutex
	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3.
// Every message is sent with EOM set.
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgOut
	out[1] = tag
	out[2] = invbTag(tag)
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil the device is told to ignore the termination character.
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgIn
	out[1] = tag
	out[2] = invbTag(tag)
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// decBulkInHeader validates a DEV_DEP_MSG_IN header and returns the
// transfer size and EOM bit
func decBulkInHeader(hdr []byte, tag byte) (size int, eom bool, err error) {
	if len(hdr) < headerSize {
		return 0, false, ErrShortHeader
	}
	if hdr[0] != msgIn || hdr[1] != tag || hdr[2] != invbTag(tag) {
		return 0, false, ErrTagMismatch
	}
	size = int(binary.LittleEndian.Uint32(hdr[4:8]))
	eom = hdr[8]&0x01 == 1
	return size, eom, nil
}

// pad extends b with zeros to a multiple of alignment
func pad(b []byte) []byte {
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// USBDevice is a USBTMC instrument exposed as an io.ReadWriteCloser
type USBDevice struct {
	tags   bTagGen
	ctx    *gousb.Context
	device *gousb.Device
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	closer func()

	// unread holds the remainder of a transfer larger than the caller's buffer
	unread []byte
}

// Open finds the device with the given vendor and product ID, and serial
// number if not empty, and claims its default interface
func Open(vid, pid uint16, serial string) (*USBDevice, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	var dev *gousb.Device
	for _, d := range devs {
		if dev != nil {
			d.Close()
			continue
		}
		if serial != "" {
			sn, _ := d.SerialNumber()
			if sn != serial {
				d.Close()
				continue
			}
		}
		dev = d
	}
	if dev == nil {
		ctx.Close()
		if err == nil {
			err = fmt.Errorf("no USB device %04x:%04x with serial %q", vid, pid, serial)
		}
		return nil, err
	}
	if err = dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	iface, closer, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	d := &USBDevice{ctx: ctx, device: dev, closer: closer}
	for _, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && d.in == nil {
			d.in, err = iface.InEndpoint(ep.Number)
		} else if ep.Direction == gousb.EndpointDirectionOut && d.out == nil {
			d.out, err = iface.OutEndpoint(ep.Number)
		}
		if err != nil {
			d.Close()
			return nil, err
		}
	}
	if d.in == nil || d.out == nil {
		d.Close()
		return nil, fmt.Errorf("USB device %04x:%04x has no bulk endpoint pair", vid, pid)
	}
	return d, nil
}

// Write sends b as one DEV_DEP_MSG_OUT transfer
func (d *USBDevice) Write(b []byte) (int, error) {
	hdr := encBulkOutHeader(d.tags.next(), len(b))
	msg := pad(append(hdr[:], b...))
	_, err := d.out.Write(msg)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read requests a transfer from the device and copies it into p.  Bytes that
// do not fit are returned by subsequent calls without another request.
func (d *USBDevice) Read(p []byte) (int, error) {
	if len(d.unread) > 0 {
		n := copy(p, d.unread)
		d.unread = d.unread[n:]
		return n, nil
	}
	tag := d.tags.next()
	hdr := encBulkInHeader(tag, maxTransfer, nil)
	if _, err := d.out.Write(hdr[:]); err != nil {
		return 0, err
	}
	buf := make([]byte, maxTransfer+headerSize+alignment)
	n, err := d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	size, _, err := decBulkInHeader(buf[:n], tag)
	if err != nil {
		return 0, err
	}
	data := buf[headerSize:n]
	if size < len(data) {
		data = data[:size]
	}
	if len(data) == 0 {
		return 0, io.ErrNoProgress
	}
	c := copy(p, data)
	d.unread = data[c:]
	return c, nil
}

// Close releases the interface, the device, and the USB context
func (d *USBDevice) Close() error {
	if d.closer != nil {
		d.closer()
	}
	err := d.device.Close()
	if cerr := d.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

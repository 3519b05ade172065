/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, for use on systems without the usbtmc kernel driver.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
1.  Create a read header asking for at most N bytes and send it on the Out endpoint
2.  Read from the In endpoint
3.  Strip the 12 byte header and any alignment padding

These are implemented as Write() and Read() on USBDevice, which behaves like
the kernel driver's character device: each Read is one device transaction.
*/
package usbtmc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/gousb"
)

const (
	// reserved is the byte to insert in reserved header fields
	reserved = 0x00

	// headerSize is the size of every bulk header
	headerSize = 12

	// alignment is the bulk transfer alignment in bytes
	alignment = 4

	msgDevDepMsgOut       = 0x01
	msgRequestDevDepMsgIn = 0x02
	msgDevDepMsgIn        = 0x02 // same as the request, per Table 2
	bitmapEOM             = 0x01
)

var (
	// ErrNotFound is returned when no device matches the vendor and product ID
	ErrNotFound = errors.New("usbtmc device not found")

	// ErrNoEndpoint is returned when the interface lacks a bulk endpoint
	ErrNoEndpoint = errors.New("no bulk endpoint")

	// ErrBadResponse is returned when a bulk-in header does not match its request
	ErrBadResponse = errors.New("malformed bulk-in response")
)

// BTagger can generate atomic bTags
type BTagger interface {
	nextbTag() byte
}

// bTagGen is a concurrent-safe bTag generator
type bTagGen struct {
	// embedded mutex for concurrent safety
	sync.Mutex

	value byte
	min   byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{value: 0, min: 1}
}

func (b *bTagGen) nextbTag() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value < b.min {
		b.value = b.min
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	// ^ is bitwise exclusive OR.  Comparing with 0xff (all 1s) is the bitwise inversion
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	out := [headerSize]byte{}
	/* data map by offset:
	0 MsgID, DEV_DEP_MSG_OUT
	1 bTag, 1 <= x <= 255, unique and incrementing with each message
	2 bTagInverse
	3 Reserved (0x00)
	4-7 transferSize, LSB first, exclusive of header and alignment
	8 bitmap, bit 0 EOM
	9-11 reserved
	*/
	out[0] = msgDevDepMsgOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = bitmapEOM // every command is a whole message
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil, the device is told to ignore the termination character
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	/* this differs from BulkOut by bytes 8~11
	8 bitmap, bit 1 termination character enabled
	9 terminator byte
	10~11 reserved
	*/
	out[0] = msgRequestDevDepMsgIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// bulkInHeader is a decoded DEV_DEP_MSG_IN header, USBTMC standard Table 9
type bulkInHeader struct {
	tag          byte
	transferSize int
	eom          bool
}

func decBulkInHeader(buf []byte) (bulkInHeader, error) {
	var h bulkInHeader
	if len(buf) < headerSize {
		return h, fmt.Errorf("%w: only received %d bytes, need at least %d to form header", ErrBadResponse, len(buf), headerSize)
	}
	if buf[0] != msgDevDepMsgIn {
		return h, fmt.Errorf("%w: MsgID %#x", ErrBadResponse, buf[0])
	}
	if buf[2] != invbTag(buf[1]) {
		return h, fmt.Errorf("%w: bTag %#x inverse %#x", ErrBadResponse, buf[1], buf[2])
	}
	h.tag = buf[1]
	h.transferSize = int(binary.LittleEndian.Uint32(buf[4:8]))
	h.eom = buf[8]&bitmapEOM != 0
	return h, nil
}

// pad extends b with zeros to a multiple of the bulk alignment
func pad(b []byte) []byte {
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// USBDevice is a struct hiding the details of USB and exposing an io.ReadWriteCloser
type USBDevice struct {
	tagger BTagger
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	ctx    *gousb.Context
	device *gousb.Device
	closer func()
}

// NewUSBDevice opens a device from its vendor and product ID and claims the
// bulk endpoints of its default interface
func NewUSBDevice(vid, pid uint16) (*USBDevice, error) {
	d := &USBDevice{tagger: newBTagGen(), ctx: gousb.NewContext()}
	var err error
	d.device, err = d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err == nil && d.device == nil {
		err = fmt.Errorf("%w: %04x:%04x", ErrNotFound, vid, pid)
	}
	if err != nil {
		d.ctx.Close()
		return nil, err
	}
	if err = d.device.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, err
	}
	iface, closer, err := d.device.DefaultInterface()
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closer = closer
	inNum, outNum := -1, -1
	for _, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			inNum = ep.Number
		} else {
			outNum = ep.Number
		}
	}
	if inNum < 0 || outNum < 0 {
		d.Close()
		return nil, ErrNoEndpoint
	}
	if d.in, err = iface.InEndpoint(inNum); err != nil {
		d.Close()
		return nil, err
	}
	if d.out, err = iface.OutEndpoint(outNum); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Read performs one device transaction, asking for at most len(p) bytes
func (d *USBDevice) Read(p []byte) (int, error) {
	tag := d.tagger.nextbTag()
	hdr := encBulkInHeader(tag, len(p), nil)
	if _, err := d.out.Write(hdr[:]); err != nil {
		return 0, err
	}
	buf := make([]byte, headerSize+len(p)+alignment)
	n, err := d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	h, err := decBulkInHeader(buf[:n])
	if err != nil {
		return 0, err
	}
	if h.tag != tag {
		return 0, fmt.Errorf("%w: bTag %d, expected %d", ErrBadResponse, h.tag, tag)
	}
	data := buf[headerSize:n]
	if h.transferSize < len(data) {
		data = data[:h.transferSize] // drop alignment padding
	}
	return copy(p, data), nil
}

// Write sends p as a single message
func (d *USBDevice) Write(p []byte) (int, error) {
	hdr := encBulkOutHeader(d.tagger.nextbTag(), len(p))
	b := make([]byte, 0, headerSize+len(p)+alignment)
	b = append(b, hdr[:]...)
	b = append(b, p...)
	if _, err := d.out.Write(pad(b)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close releases the interface and closes the device
func (d *USBDevice) Close() error {
	if d.closer != nil {
		d.closer()
		d.closer = nil
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
		d.device = nil
	}
	if d.ctx != nil {
		d.ctx.Close()
		d.ctx = nil
	}
	return err
}

/*Package block decodes IEEE 488.2 definite-length binary blocks as returned by
oscilloscopes in response to a waveform data query.

A block looks like

	#<d><length><payload><terminator>

where d is a single ASCII digit giving the number of decimal digits in length,
length is the payload size in bytes, and terminator is one byte that is not
part of the payload.

The block is consumed in reads of at most MaxChunk bytes and never held in
memory as a whole; payload bytes are handed to an io.Writer as they arrive.
*/
package block

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	// MaxChunk is the size of a single read from the device.  The USBTMC
	// kernel driver services at most 4096 bytes per transaction; asking for
	// another size makes the transfer fail and can wedge the instrument
	// until it is power cycled.
	MaxChunk = 4096

	// MinHeader is the smallest first read that is accepted
	MinHeader = 12

	// maxEmptyReads bounds consecutive zero-byte reads without error
	maxEmptyReads = 100
)

var (
	// ErrShortHeader is returned when the first read is too small to hold a header
	ErrShortHeader = errors.New("response too short for block header")

	// ErrInvalidHeader is returned when the response does not start with '#'
	ErrInvalidHeader = errors.New("invalid header in response")

	// ErrInvalidDigitCount is returned when the digit count is not 1-9
	ErrInvalidDigitCount = errors.New("invalid number of digits in response")

	// ErrInvalidPayloadSize is returned when the length field is zero or not a number
	ErrInvalidPayloadSize = errors.New("invalid payload size in response")

	// ErrTransportRead is returned when a read from the device fails mid-transfer
	ErrTransportRead = errors.New("read from device failed")

	// ErrSinkWrite is returned when the payload consumer fails
	ErrSinkWrite = errors.New("write to output failed")
)

// Header is the parsed prefix of a block
type Header struct {
	// Digits is the number of ASCII digits in the length field, 1-9
	Digits int

	// Size is the declared payload length in bytes
	Size int
}

// Len is the number of bytes the header occupies on the wire
func (h Header) Len() int { return 2 + h.Digits }

// ParseHeader parses the block header at the start of buf
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < 2 {
		return h, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(buf))
	}
	if buf[0] != '#' {
		return h, fmt.Errorf("%w: first byte is %q, expected '#'", ErrInvalidHeader, buf[0])
	}
	d := int(buf[1]) - '0' // ASCII->int
	if d < 1 || d > 9 {
		return h, fmt.Errorf("%w: %q", ErrInvalidDigitCount, buf[1])
	}
	h.Digits = d
	if len(buf) < h.Len() {
		return h, fmt.Errorf("%w: length field needs %d bytes, got %d", ErrShortHeader, h.Len(), len(buf))
	}
	size, err := strconv.ParseUint(string(buf[2:h.Len()]), 10, 32)
	if err != nil || size == 0 {
		return h, fmt.Errorf("%w: %q", ErrInvalidPayloadSize, buf[2:h.Len()])
	}
	h.Size = int(size)
	return h, nil
}

// ProgressFunc is called with the cumulative number of bytes consumed from the device
type ProgressFunc func(total int)

// Decoder reassembles blocks from a reader that delivers them in bounded chunks
type Decoder struct {
	// Progress, if not nil, is called after every read
	Progress ProgressFunc

	// OnHeader, if not nil, is called once the header has been validated,
	// before any payload is written
	OnHeader func(Header)

	buf *Buffer
}

// NewDecoder creates a Decoder reading MaxChunk bytes at a time
func NewDecoder() *Decoder {
	return &Decoder{buf: NewBuffer(MaxChunk)}
}

// transferState tracks one block in flight
type transferState struct {
	remaining   int // bytes still to be read from the device, payload and terminator
	consumed    int // bytes read from the device so far, header included
	payloadLeft int // payload bytes not yet handed to the writer
}

// emit hands the payload part of chunk to w.  Anything past the declared
// payload is the terminator and is dropped.
func (st *transferState) emit(w io.Writer, chunk []byte) error {
	if len(chunk) > st.payloadLeft {
		chunk = chunk[:st.payloadLeft]
	}
	if len(chunk) == 0 {
		return nil
	}
	n, err := w.Write(chunk)
	st.payloadLeft -= n
	if err == nil && n != len(chunk) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	return nil
}

// Decode reads one block from r and writes exactly Header.Size payload bytes
// to w.  The terminator is consumed from r but never written.
func (d *Decoder) Decode(r io.Reader, w io.Writer) (Header, error) {
	if d.buf == nil {
		d.buf = NewBuffer(MaxChunk)
	}
	var h Header
	n, err := d.buf.Fill(r, MaxChunk)
	if err != nil && (err != io.EOF || n == 0) {
		return h, fmt.Errorf("%w: first read: %v", ErrTransportRead, err)
	}
	if n < MinHeader {
		return h, fmt.Errorf("%w: got %d bytes, need %d", ErrShortHeader, n, MinHeader)
	}
	h, err = ParseHeader(d.buf.Bytes())
	if err != nil {
		return h, err
	}
	if err = d.buf.Split(h.Len()); err != nil {
		return h, err
	}
	if d.OnHeader != nil {
		d.OnHeader(h)
	}

	st := transferState{
		remaining:   h.Len() + h.Size + 1 - n,
		consumed:    n,
		payloadLeft: h.Size,
	}
	if st.remaining < 0 {
		st.remaining = 0
	}
	if err = st.emit(w, d.buf.Payload()); err != nil {
		return h, err
	}
	if d.Progress != nil {
		d.Progress(st.consumed)
	}

	empty := 0
	for st.remaining > 0 {
		want := st.remaining
		if want > MaxChunk {
			want = MaxChunk
		}
		n, err = d.buf.Fill(r, want)
		if n == 0 {
			switch {
			case err == io.EOF:
				err = io.ErrUnexpectedEOF
			case err == nil:
				empty++
				if empty < maxEmptyReads {
					continue
				}
				err = io.ErrNoProgress
			}
			return h, fmt.Errorf("%w: %d bytes outstanding: %v", ErrTransportRead, st.remaining, err)
		}
		if err != nil && err != io.EOF {
			return h, fmt.Errorf("%w: %v", ErrTransportRead, err)
		}
		empty = 0
		st.remaining -= n
		if st.remaining < 0 {
			st.remaining = 0
		}
		st.consumed += n
		if err = st.emit(w, d.buf.Bytes()); err != nil {
			return h, err
		}
		if d.Progress != nil {
			d.Progress(st.consumed)
		}
	}
	if st.payloadLeft != 0 {
		return h, fmt.Errorf("%w: %d payload bytes missing", ErrTransportRead, st.payloadLeft)
	}
	return h, nil
}

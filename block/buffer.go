package block

import (
	"fmt"
	"io"
)

// BoundsError is returned when a slice view would fall outside the
// valid region of a Buffer
type BoundsError struct {
	Off, Len int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("offset %d out of range for %d valid bytes", e.Off, e.Len)
}

// Buffer is a fixed-capacity working buffer for one device transaction.
// After a Fill, the valid bytes may be split into a header region and a
// payload region.
type Buffer struct {
	data  []byte
	n     int // valid bytes from the last Fill
	split int // start of the payload region
}

// NewBuffer allocates a Buffer holding at most capacity bytes
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the capacity of the buffer
func (b *Buffer) Cap() int { return len(b.data) }

// Fill performs exactly one read of at most max bytes (and at most Cap)
// from r, replacing the previous contents.
func (b *Buffer) Fill(r io.Reader, max int) (int, error) {
	if max > len(b.data) || max <= 0 {
		max = len(b.data)
	}
	n, err := r.Read(b.data[:max])
	if n < 0 {
		n = 0
	}
	b.n = n
	b.split = 0
	return n, err
}

// Bytes returns the valid bytes from the last Fill
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Split marks the first off valid bytes as header
func (b *Buffer) Split(off int) error {
	if off < 0 || off > b.n {
		return &BoundsError{Off: off, Len: b.n}
	}
	b.split = off
	return nil
}

// Header returns the header region
func (b *Buffer) Header() []byte { return b.data[:b.split] }

// Payload returns the bytes following the header region
func (b *Buffer) Payload() []byte { return b.data[b.split:b.n] }

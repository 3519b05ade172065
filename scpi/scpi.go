// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// floatBufSize is the scratch size used for numeric responses.
	// One byte is held back, so at most 31 characters are parsed.
	floatBufSize = 32

	// lineBufSize is the read buffer used on stream transports
	lineBufSize = 4096

	opWrite = "write"
	opRead  = "read"
)

var (
	// ErrTransportWrite is matched by errors from a failed or short command write
	ErrTransportWrite = errors.New("transport write failed")

	// ErrTransportRead is matched by errors from a failed or empty response read
	ErrTransportRead = errors.New("transport read failed")

	// errEmptyRead is used when the transport returns nothing and no error
	errEmptyRead = errors.New("zero-length response")
)

// TransportError describes an I/O failure while talking to the device
type TransportError struct {
	// Op is "write" or "read"
	Op string

	// Cmd is the command that was being sent or answered
	Cmd string

	// Err is the underlying cause
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Cmd, e.Err)
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel for the failed direction
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransportWrite:
		return e.Op == opWrite
	case ErrTransportRead:
		return e.Op == opRead
	}
	return false
}

// SCPI is a type for encapsulating SCPI communication.
//
// Every write is followed by at most one response; there is no pipelining.
// With a zero Terminator the transport is assumed to be message-oriented
// (one Read returns one device transaction, as with the USBTMC kernel driver).
// With a nonzero Terminator it is treated as a byte stream and text responses
// are read up to the terminator.
type SCPI struct {
	RW io.ReadWriter

	// Terminator is appended to each command and ends text responses on
	// stream transports.  Zero disables both.
	Terminator byte

	br *bufio.Reader
}

// New creates a new SCPI instance communicating over rw
func New(rw io.ReadWriter, terminator byte) *SCPI {
	return &SCPI{RW: rw, Terminator: terminator}
}

// Reader returns the reader responses should be consumed from.  On stream
// transports it is a buffered reader shared with the text queries, so binary
// transfers following a query see no lost bytes.
func (s *SCPI) Reader() io.Reader {
	if s.Terminator == 0 {
		return s.RW
	}
	if s.br == nil {
		s.br = bufio.NewReaderSize(s.RW, lineBufSize)
	}
	return s.br
}

// Write sends a command to the device.  Multiple arguments are joined by spaces.
// No response is read.
func (s *SCPI) Write(cmds ...string) error {
	str := strings.Join(cmds, " ")
	buf := []byte(str)
	if s.Terminator != 0 {
		buf = append(buf, s.Terminator)
	}
	n, err := s.RW.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &TransportError{Op: opWrite, Cmd: str, Err: err}
	}
	return nil
}

// WriteRead is write, but with a single read of at most max bytes after.
// It is assumed that "get" calls use this underlying mechanism
func (s *SCPI) WriteRead(max int, cmds ...string) ([]byte, error) {
	if err := s.Write(cmds...); err != nil {
		return nil, err
	}
	resp, err := s.read(max)
	if err != nil {
		return nil, &TransportError{Op: opRead, Cmd: strings.Join(cmds, " "), Err: err}
	}
	return resp, nil
}

func (s *SCPI) read(max int) ([]byte, error) {
	if max <= 0 {
		return nil, errEmptyRead
	}
	if s.Terminator != 0 {
		line, err := s.Reader().(*bufio.Reader).ReadBytes(s.Terminator)
		if len(line) == 0 {
			if err == nil {
				err = errEmptyRead
			}
			return nil, err
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		if len(line) > max {
			line = line[:max]
		}
		return line, nil
	}
	buf := make([]byte, max)
	n, err := s.RW.Read(buf)
	if n <= 0 {
		if err == nil {
			err = errEmptyRead
		}
		return nil, err
	}
	return buf[:n], nil
}

// ReadString sends a command to the device, then reads at most maxLen-1 bytes
// of response and returns it as a string, with one trailing newline removed
func (s *SCPI) ReadString(maxLen int, cmds ...string) (string, error) {
	resp, err := s.WriteRead(maxLen-1, cmds...)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(resp, 0); i >= 0 {
		resp = resp[:i]
	}
	if len(resp) > 0 && resp[len(resp)-1] == '\n' {
		resp = resp[:len(resp)-1]
	}
	return string(resp), nil
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value.
//
// Text that does not begin with a number yields 0 rather than an error;
// only transport failures are reported.
func (s *SCPI) ReadFloat(cmds ...string) (float32, error) {
	resp, err := s.WriteRead(floatBufSize-1, cmds...)
	if err != nil {
		return 0, err
	}
	return ParseFloat(string(resp)), nil
}

// ReadBool sends a command to the device, then reads a single byte of
// response.  Anything other than '0' is true
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.WriteRead(1, cmds...)
	if err != nil {
		return false, err
	}
	return resp[0] != '0', nil
}

// Raw sends a command to the scope and returns a response if it was a query,
// else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	if strings.Contains(str, "?") {
		return s.ReadString(lineBufSize, str)
	}
	return "", s.Write(str)
}

// ParseFloat parses the longest numeric prefix of str after leading
// whitespace, the way scanf's %f does.  If there is none, it returns 0.
func ParseFloat(str string) float32 {
	str = strings.TrimLeft(str, " \t\r\n")
	end := 0
	for end < len(str) && strings.IndexByte("+-.0123456789eE", str[end]) >= 0 {
		end++
	}
	for ; end > 0; end-- {
		f, err := strconv.ParseFloat(str[:end], 32)
		if err == nil {
			return float32(f)
		}
	}
	return 0
}

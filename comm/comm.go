/*Package comm opens the byte channel to an instrument.

An instrument is reached in one of four ways:

	usbtmc  the Linux USBTMC kernel driver, e.g. /dev/usbtmc0.  Each read and
	        write is one USB transaction.
	usb     libusb directly, for systems without the kernel driver.
	        Addr is ignored; VID and PID select the device.
	serial  an RS-232 port, e.g. /dev/ttyUSB0
	tcp     a raw SCPI socket, e.g. 192.168.1.50:5555

The first two are message-oriented; the last two are byte streams whose text
responses end with a newline.  Terminator reports which applies.
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"

	"github.com/kittennbfive/scdd/usbtmc"
)

// transport kinds
const (
	KindUSBTMC = "usbtmc"
	KindUSB    = "usb"
	KindSerial = "serial"
	KindTCP    = "tcp"
)

var (
	// ErrUnknownKind is generated when Config.Kind is not one of the supported transports
	ErrUnknownKind = errors.New("unknown transport kind")

	// ErrBusy is generated when the device stayed busy for the whole open backoff
	ErrBusy = errors.New("device busy")
)

// Config describes how to reach an instrument
type Config struct {
	// Kind is one of usbtmc, usb, serial, tcp
	Kind string

	// Addr is the device path, serial port or host:port
	Addr string

	// Timeout bounds each read and write where the transport supports it.
	// Zero blocks forever.
	Timeout time.Duration

	// Baud is the serial baud rate
	Baud int

	// VID and PID select a device for the usb kind
	VID, PID uint16
}

// Terminator returns the byte that ends commands and text responses, or 0 if the
// transport delimits messages itself
func (c Config) Terminator() byte {
	switch c.Kind {
	case KindSerial, KindTCP:
		return '\n'
	default:
		return 0
	}
}

// Open the connection.  A device that is still held by a previous session is
// retried with an exponential backoff for a few seconds; any other failure is
// returned immediately.  Nothing sent over the connection is ever retried.
func Open(c Config) (io.ReadWriteCloser, error) {
	var (
		conn    io.ReadWriteCloser
		openErr error
	)
	op := func() error {
		rwc, err := open(c)
		if err == nil {
			conn = rwc
			return nil
		}
		if isBusy(err) {
			return err
		}
		openErr = err
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBusy, c.Addr, err)
	}
	if openErr != nil {
		return nil, openErr
	}
	return NewTimeout(conn, c.Timeout), nil
}

func open(c Config) (io.ReadWriteCloser, error) {
	switch strings.ToLower(c.Kind) {
	case KindUSBTMC, "":
		return os.OpenFile(c.Addr, os.O_RDWR, 0)
	case KindUSB:
		return usbtmc.NewUSBDevice(c.VID, c.PID)
	case KindSerial:
		conf := &serial.Config{Name: c.Addr, Baud: c.Baud, ReadTimeout: c.Timeout}
		return serial.OpenPort(conf)
	case KindTCP:
		return TCPSetup(c.Addr, 3*time.Second)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
}

// isBusy reports if err means another session holds the device
func isBusy(err error) bool {
	if errors.Is(err, syscall.EBUSY) {
		return true
	}
	errS := strings.ToLower(err.Error())
	return strings.Contains(errS, "busy") || strings.Contains(errS, "refused")
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Timeout wraps a connection and sets a deadline before every read and write
type Timeout struct {
	io.ReadWriteCloser
	dl      deadliner
	timeout time.Duration
}

// NewTimeout wraps rwc so each read and write fails after timeout.  If rwc has
// no deadline support or timeout is not positive, rwc is returned unchanged.
func NewTimeout(rwc io.ReadWriteCloser, timeout time.Duration) io.ReadWriteCloser {
	dl, ok := rwc.(deadliner)
	if !ok || timeout <= 0 {
		return rwc
	}
	return &Timeout{ReadWriteCloser: rwc, dl: dl, timeout: timeout}
}

// Read sets the read deadline, then reads
func (t *Timeout) Read(p []byte) (int, error) {
	if t.dl != nil {
		if err := t.dl.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			if !errors.Is(err, os.ErrNoDeadline) {
				return 0, err
			}
			t.dl = nil // character devices are not pollable
		}
	}
	return t.ReadWriteCloser.Read(p)
}

// Write sets the write deadline, then writes
func (t *Timeout) Write(p []byte) (int, error) {
	if t.dl != nil {
		if err := t.dl.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			if !errors.Is(err, os.ErrNoDeadline) {
				return 0, err
			}
			t.dl = nil
		}
	}
	return t.ReadWriteCloser.Write(p)
}

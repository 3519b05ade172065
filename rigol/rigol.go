// Package rigol provides access to Rigol MSO5000 series oscilloscopes for
// dumping the full acquisition memory of a stopped scope
package rigol

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kittennbfive/scdd/block"
	"github.com/kittennbfive/scdd/oscilloscope"
	"github.com/kittennbfive/scdd/scpi"
)

// trigStatLen is the response buffer size for the trigger status query
const trigStatLen = 10

var (
	// ErrNotStopped is returned when the scope is acquiring.  The RAW memory is
	// only readable in full while the scope is stopped.
	ErrNotStopped = errors.New("scope is not in STOP mode")

	// ErrChannelInactive is returned when the requested channel is not displayed
	// and so did not take part in the acquisition
	ErrChannelInactive = errors.New("channel is not active")
)

// IsOutcome reports whether err is one of the expected early exits rather
// than a failure
func IsOutcome(err error) bool {
	return errors.Is(err, ErrNotStopped) || errors.Is(err, ErrChannelInactive)
}

// Scope is an interface to a Rigol oscilloscope
type Scope struct {
	scpi.SCPI

	// Log receives status messages.  Defaults to the standard logrus logger.
	Log logrus.FieldLogger
}

// NewScope creates a new scope instance talking over rw.  terminator is 0
// for message-oriented transports such as the USBTMC kernel driver and '\n'
// for byte streams.
func NewScope(rw io.ReadWriter, terminator byte) *Scope {
	return &Scope{SCPI: *scpi.New(rw, terminator), Log: logrus.StandardLogger()}
}

// TriggerStatus returns the trigger state, e.g. RUN, STOP, WAIT
func (s *Scope) TriggerStatus() (string, error) {
	return s.ReadString(trigStatLen, ":TRIG:STAT?")
}

// ChannelDisplayed returns true if the channel is switched on
func (s *Scope) ChannelDisplayed(ch oscilloscope.Channel) (bool, error) {
	return s.ReadBool(fmt.Sprintf(":CHAN%d:DISP?", ch))
}

// CheckReady verifies the scope is stopped and ch is enabled.  It returns
// ErrNotStopped or ErrChannelInactive if not.
func (s *Scope) CheckReady(ch oscilloscope.Channel) error {
	stat, err := s.TriggerStatus()
	if err != nil {
		return fmt.Errorf("query trigger status: %w", err)
	}
	if stat != "STOP" {
		return fmt.Errorf("%w (status %q)", ErrNotStopped, stat)
	}
	on, err := s.ChannelDisplayed(ch)
	if err != nil {
		return fmt.Errorf("query channel display: %w", err)
	}
	if !on {
		return fmt.Errorf("%w: %d", ErrChannelInactive, ch)
	}
	return nil
}

// YOrigin returns the vertical offset of the waveform source in ADC codes
func (s *Scope) YOrigin() (float32, error) {
	return s.ReadFloat(":WAV:YOR?")
}

// YIncrement returns the voltage of one ADC code of the waveform source
func (s *Scope) YIncrement() (float32, error) {
	return s.ReadFloat(":WAV:YINC?")
}

// XIncrement returns the time between samples in seconds
func (s *Scope) XIncrement() (float32, error) {
	return s.ReadFloat(":WAV:XINC?")
}

// Calibration fetches the offset and scale used to convert raw samples to volts
func (s *Scope) Calibration() (oscilloscope.Calibration, error) {
	var (
		cal oscilloscope.Calibration
		err error
	)
	cal.Offset, err = s.YOrigin()
	if err != nil {
		return cal, fmt.Errorf("query y origin: %w", err)
	}
	cal.Scale, err = s.YIncrement()
	if err != nil {
		return cal, fmt.Errorf("query y increment: %w", err)
	}
	return cal, nil
}

// ConfigureRaw selects ch as the waveform source and sets up a byte-format
// readout of the whole RAW memory from its first point
func (s *Scope) ConfigureRaw(ch oscilloscope.Channel) error {
	cmds := []string{
		":WAV:SOUR " + ch.String(),
		"WAV:MODE RAW",
		"WAV:FORM BYTE",
		"WAV:STAR 1",
	}
	for _, cmd := range cmds {
		if err := s.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// DumpResult summarizes a completed transfer
type DumpResult struct {
	Header      block.Header
	Calibration oscilloscope.Calibration
	Samples     int
}

// Dump fetches the calibration of ch, configures a RAW byte readout and streams
// every sample, converted to volts, to w.  CheckReady should be called first.
// progress may be nil.
func (s *Scope) Dump(ch oscilloscope.Channel, w io.Writer, mode oscilloscope.OutputMode, progress block.ProgressFunc) (DumpResult, error) {
	var res DumpResult
	cal, err := s.Calibration()
	if err != nil {
		return res, err
	}
	res.Calibration = cal
	s.logger().WithFields(logrus.Fields{
		"offset": cal.Offset,
		"scale":  cal.Scale,
	}).Debug("fetched calibration")

	if err = s.ConfigureRaw(ch); err != nil {
		return res, fmt.Errorf("configure waveform readout: %w", err)
	}
	if err = s.Write("WAV:DATA?"); err != nil {
		return res, fmt.Errorf("request data: %w", err)
	}

	conv := oscilloscope.NewConverter(w, cal, mode)
	dec := block.NewDecoder()
	dec.Progress = progress
	dec.OnHeader = func(h block.Header) {
		s.logger().Infof("sample memory is %d bytes", h.Size)
	}
	res.Header, err = dec.Decode(s.Reader(), conv)
	res.Samples = conv.Count()
	if err != nil {
		return res, fmt.Errorf("transfer data: %w", err)
	}
	return res, nil
}

func (s *Scope) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

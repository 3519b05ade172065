// Package oscilloscope provides type definitions for oscilloscope waveform
// data and the conversion of raw ADC samples to physical units
package oscilloscope

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// rawMidscale is the ADC code of the vertical center of the screen
const rawMidscale = 128

// Channel is an analog input of the scope, 1-4
type Channel int

// ParseChannel validates a channel number
func ParseChannel(n int) (Channel, error) {
	c := Channel(n)
	if !c.Valid() {
		return 0, fmt.Errorf("invalid channel %d", n)
	}
	return c, nil
}

// Valid reports if the channel exists on a four channel scope
func (c Channel) Valid() bool { return c >= 1 && c <= 4 }

// String returns the SCPI mnemonic for the channel, e.g. CHAN1
func (c Channel) String() string { return "CHAN" + strconv.Itoa(int(c)) }

// Calibration converts raw byte samples to physical units.  To convert,
// compute (raw-(128+Offset))*Scale
type Calibration struct {
	// Offset is the vertical origin in ADC codes, relative to midscale
	Offset float32 `json:"offset"`

	// Scale is the size of one ADC code in volts
	Scale float32 `json:"scale"`
}

// Convert maps one raw sample to volts
func (c Calibration) Convert(raw byte) float32 {
	return (float32(raw) - (rawMidscale + c.Offset)) * c.Scale
}

// OutputMode selects how converted samples are serialized
type OutputMode int

const (
	// TextDecimal writes one value per line with two decimal places
	TextDecimal OutputMode = iota

	// RawBinaryFloat writes each value as 4 bytes of native-endian IEEE-754
	RawBinaryFloat
)

// SampleSize is the number of bytes one value occupies in RawBinaryFloat mode
const SampleSize = 4

func (m OutputMode) String() string {
	switch m {
	case TextDecimal:
		return "text"
	case RawBinaryFloat:
		return "raw-float"
	default:
		return "OutputMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseOutputMode converts "text" or "raw-float" to an OutputMode
func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return TextDecimal, nil
	case "raw-float", "raw", "float":
		return RawBinaryFloat, nil
	default:
		return TextDecimal, fmt.Errorf("unknown output mode %q", s)
	}
}

// Converter is an io.Writer which treats every byte written to it as a raw
// sample, converts it, and writes the serialized value to the underlying writer.
// Each call to Write produces one call to the underlying writer.
type Converter struct {
	w     io.Writer
	cal   Calibration
	mode  OutputMode
	buf   []byte
	count int
}

// NewConverter creates a Converter writing to w
func NewConverter(w io.Writer, cal Calibration, mode OutputMode) *Converter {
	return &Converter{w: w, cal: cal, mode: mode}
}

// Calibration returns the calibration used by the converter
func (c *Converter) Calibration() Calibration { return c.cal }

// Count returns the number of samples written so far
func (c *Converter) Count() int { return c.count }

// Write converts every byte in p.  The returned count is in input bytes;
// a failed write to the underlying writer reports zero.
func (c *Converter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := c.buf[:0]
	switch c.mode {
	case RawBinaryFloat:
		for _, b := range p {
			buf = binary.NativeEndian.AppendUint32(buf, math.Float32bits(c.cal.Convert(b)))
		}
	default:
		for _, b := range p {
			buf = AppendText(buf, c.cal.Convert(b))
		}
	}
	c.buf = buf
	if _, err := c.w.Write(buf); err != nil {
		return 0, err
	}
	c.count += len(p)
	return len(p), nil
}

// AppendText appends v with two decimal places and a newline, as printf's
// "%.2f\n" would
func AppendText(dst []byte, v float32) []byte {
	dst = strconv.AppendFloat(dst, float64(v), 'f', 2, 64)
	return append(dst, '\n')
}

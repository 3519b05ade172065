// Package progress reports how much of a transfer has been read
package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"
)

// Spinner shows a terminal spinner with a running byte count
type Spinner struct {
	s *yacspin.Spinner
}

// NewSpinner creates a spinner drawing to w, usually os.Stderr
func NewSpinner(w io.Writer) (*Spinner, error) {
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		Writer:            w,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           "waiting for data",
		StopCharacter:     "✓",
		StopMessage:       "done",
		StopFailCharacter: "✗",
		StopFailMessage:   "failed",
	}
	s, err := yacspin.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Spinner{s: s}, nil
}

// Start starts drawing
func (sp *Spinner) Start() error { return sp.s.Start() }

// Update sets the byte count shown
func (sp *Spinner) Update(total int) {
	sp.s.Message(fmt.Sprintf("%d bytes read...", total))
}

// Stop stops drawing, marking the transfer as succeeded or failed
func (sp *Spinner) Stop(ok bool) error {
	if ok {
		return sp.s.Stop()
	}
	return sp.s.StopFail()
}

// Logger logs the byte count at most once per interval
type Logger struct {
	log     logrus.FieldLogger
	limiter *rate.Limiter
	last    int
}

// NewLogger creates a Logger logging at info level at most once per every
func NewLogger(log logrus.FieldLogger, every time.Duration) *Logger {
	return &Logger{log: log, limiter: rate.NewLimiter(rate.Every(every), 1)}
}

// Start is a no-op, present so a Logger can be used where a Spinner is
func (l *Logger) Start() error { return nil }

// Update records the byte count and logs it if the interval has elapsed
func (l *Logger) Update(total int) {
	l.last = total
	if l.limiter.Allow() {
		l.log.WithField("bytes", total).Info("bytes read...")
	}
}

// Stop logs the final count
func (l *Logger) Stop(ok bool) error {
	entry := l.log.WithField("bytes", l.last)
	if ok {
		entry.Info("transfer complete")
	} else {
		entry.Warn("transfer aborted")
	}
	return nil
}

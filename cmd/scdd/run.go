package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kittennbfive/scdd/block"
	"github.com/kittennbfive/scdd/comm"
	"github.com/kittennbfive/scdd/oscilloscope"
	"github.com/kittennbfive/scdd/progress"
	"github.com/kittennbfive/scdd/rigol"
	"github.com/kittennbfive/scdd/util"
)

// outBufSize is the buffer between the converter and the output file
const outBufSize = 64 * 1024

// reporter shows transfer progress
type reporter interface {
	Start() error
	Update(total int)
	Stop(ok bool) error
}

type nopReporter struct{}

func (nopReporter) Start() error    { return nil }
func (nopReporter) Update(int)      {}
func (nopReporter) Stop(bool) error { return nil }

// dumper runs one dump.  The fields other than cfg and log exist so tests
// can substitute the device, the clock and the standard streams.
type dumper struct {
	cfg    Config
	log    *logrus.Logger
	stdout io.Writer
	stderr io.Writer
	open   func(comm.Config) (io.ReadWriteCloser, error)
	now    func() time.Time
}

func newDumper(cfg Config, log *logrus.Logger) *dumper {
	return &dumper{
		cfg:    cfg,
		log:    log,
		stdout: os.Stdout,
		stderr: os.Stderr,
		open:   comm.Open,
		now:    time.Now,
	}
}

func (d *dumper) reporter() reporter {
	switch d.cfg.Progress {
	case "none":
		return nopReporter{}
	case "log":
		return progress.NewLogger(d.log, time.Second)
	default:
		sp, err := progress.NewSpinner(d.stderr)
		if err != nil {
			d.log.WithError(err).Debug("spinner unavailable, logging progress")
			return progress.NewLogger(d.log, time.Second)
		}
		return sp
	}
}

// run performs the dump.  The returned error is nil on success, satisfies
// rigol.IsOutcome for an expected early exit, and is a failure otherwise.
func (d *dumper) run() (err error) {
	ch, err := oscilloscope.ParseChannel(d.cfg.Channel)
	if err != nil {
		return err
	}
	mode := oscilloscope.TextDecimal
	if d.cfg.RawFloat {
		mode = oscilloscope.RawBinaryFloat
		d.log.Infof("will output raw binary data (float, %d bytes each)", oscilloscope.SampleSize)
	}
	pipe := d.cfg.Filename == PipeFilename
	filename := d.cfg.Filename
	if pipe {
		d.log.Info("output will be written to stdout")
	} else if filename == "" {
		filename = util.DefaultFilename(d.cfg.Device, int(ch), d.now())
	}

	cc := d.cfg.Comm()
	dev, err := d.open(cc)
	if err != nil {
		return fmt.Errorf("opening device %s failed: %w", d.cfg.Device, err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing device: %w", cerr)
		}
	}()

	d.log.Infof("reading data from channel %d", ch)
	scope := rigol.NewScope(dev, cc.Terminator())
	scope.Log = d.log
	if err = scope.CheckReady(ch); err != nil {
		return err
	}

	out := d.stdout
	if !pipe {
		d.log.Infof("saving to file %q", filename)
		f, ferr := os.Create(filename)
		if ferr != nil {
			return fmt.Errorf("opening output file %q failed: %w", filename, ferr)
		}
		defer func() {
			cerr := f.Close()
			if err == nil && cerr != nil {
				err = fmt.Errorf("%w: %v", block.ErrSinkWrite, cerr)
			}
			if err != nil {
				os.Remove(filename)
			}
		}()
		out = f
	}

	bw := bufio.NewWriterSize(out, outBufSize)
	rep := d.reporter()
	if serr := rep.Start(); serr != nil {
		d.log.WithError(serr).Debug("could not start progress display")
	}
	res, err := scope.Dump(ch, bw, mode, rep.Update)
	if err == nil {
		if ferr := bw.Flush(); ferr != nil {
			err = fmt.Errorf("%w: %v", block.ErrSinkWrite, ferr)
		}
	}
	rep.Stop(err == nil)
	if err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{
		"samples": res.Samples,
		"offset":  res.Calibration.Offset,
		"scale":   res.Calibration.Scale,
	}).Info("done, all fine")
	return nil
}

// exitCode reports err and returns the process exit status for it
func exitCode(log logrus.FieldLogger, err error) int {
	switch {
	case err == nil:
		return 0
	case rigol.IsOutcome(err):
		log.Info(err.Error() + ", exiting...")
		return 1
	default:
		log.Error(err)
		return 1
	}
}

package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kittennbfive/scdd/block"
	"github.com/kittennbfive/scdd/comm"
	"github.com/kittennbfive/scdd/oscilloscope"
	"github.com/kittennbfive/scdd/rigol"
	"github.com/kittennbfive/scdd/scopetest"
)

func stoppedScope(payload []byte) *scopetest.Instrument {
	return scopetest.New().
		Set(":TRIG:STAT?", "STOP\n").
		Set(":CHAN1:DISP?", "1\n").
		Set(":CHAN2:DISP?", "0\n").
		Set(":WAV:YOR?", "0.000000e+00\n").
		Set(":WAV:YINC?", "1.000000e+00\n").
		SetBlock("WAV:DATA?", payload, '\n')
}

func testDumper(t *testing.T, inst *scopetest.Instrument) (*dumper, *test.Hook, *bytes.Buffer) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.Progress = "none"
	cfg.Filename = filepath.Join(t.TempDir(), "out.txt")
	var stdout bytes.Buffer
	d := newDumper(cfg, logger)
	d.stdout = &stdout
	d.stderr = io.Discard
	d.open = func(comm.Config) (io.ReadWriteCloser, error) { return inst, nil }
	d.now = func() time.Time { return time.Date(2026, 10, 17, 14, 23, 5, 0, time.Local) }
	return d, hook, &stdout
}

func TestRunWritesText(t *testing.T) {
	d, hook, _ := testDumper(t, stoppedScope([]byte{128, 129, 127, 138}))
	if err := d.run(); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(d.cfg.Filename)
	if err != nil {
		t.Fatal(err)
	}
	expected := "0.00\n1.00\n-1.00\n10.00\n"
	if string(got) != expected {
		t.Errorf("expected %q got %q", expected, got)
	}
	if hook.LastEntry().Message != "done, all fine" {
		t.Errorf("unexpected last log line %q", hook.LastEntry().Message)
	}
}

func TestRunRawFloat(t *testing.T) {
	d, _, _ := testDumper(t, stoppedScope([]byte{130, 126}))
	d.cfg.RawFloat = true
	if err := d.run(); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(d.cfg.Filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2*oscilloscope.SampleSize {
		t.Errorf("expected %d bytes, got %d", 2*oscilloscope.SampleSize, len(got))
	}
}

func TestRunPipe(t *testing.T) {
	d, _, stdout := testDumper(t, stoppedScope([]byte{128, 130}))
	d.cfg.Filename = PipeFilename
	if err := d.run(); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "0.00\n2.00\n" {
		t.Errorf("unexpected stdout %q", stdout.String())
	}
	if _, err := os.Stat(PipeFilename); err == nil {
		t.Errorf("a file named %s was created", PipeFilename)
	}
}

func TestRunNotStopped(t *testing.T) {
	inst := stoppedScope([]byte{128}).Set(":TRIG:STAT?", "RUN\n")
	d, _, _ := testDumper(t, inst)
	err := d.run()
	if !errors.Is(err, rigol.ErrNotStopped) {
		t.Fatalf("expected not stopped, got %v", err)
	}
	if _, serr := os.Stat(d.cfg.Filename); !os.IsNotExist(serr) {
		t.Errorf("output file exists after a failed precondition")
	}
}

func TestRunChannelInactive(t *testing.T) {
	d, _, _ := testDumper(t, stoppedScope([]byte{128}))
	d.cfg.Channel = 2
	err := d.run()
	if !errors.Is(err, rigol.ErrChannelInactive) {
		t.Fatalf("expected channel inactive, got %v", err)
	}
	if _, serr := os.Stat(d.cfg.Filename); !os.IsNotExist(serr) {
		t.Errorf("output file exists after a failed precondition")
	}
}

func TestRunInvalidChannel(t *testing.T) {
	d, _, _ := testDumper(t, stoppedScope(nil))
	opened := false
	d.open = func(comm.Config) (io.ReadWriteCloser, error) {
		opened = true
		return nil, errors.New("should not be called")
	}
	for _, ch := range []int{0, 5, -1} {
		d.cfg.Channel = ch
		if err := d.run(); err == nil {
			t.Errorf("channel %d: expected an error", ch)
		}
	}
	if opened {
		t.Error("device opened for an invalid channel")
	}
}

func TestRunOpenFailure(t *testing.T) {
	d, _, _ := testDumper(t, stoppedScope(nil))
	d.open = func(comm.Config) (io.ReadWriteCloser, error) { return nil, os.ErrNotExist }
	if err := d.run(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the open error to be kept, got %v", err)
	}
}

func TestRunTruncatedTransferRemovesFile(t *testing.T) {
	inst := stoppedScope(nil)
	full := scopetest.Block(bytes.Repeat([]byte{128}, 10000), '\n')
	inst.Responses["WAV:DATA?"] = full[:5000]
	d, _, _ := testDumper(t, inst)
	err := d.run()
	if !errors.Is(err, block.ErrTransportRead) {
		t.Fatalf("expected a transport read error, got %v", err)
	}
	if rigol.IsOutcome(err) {
		t.Error("a truncated transfer is a failure, not an outcome")
	}
	if _, serr := os.Stat(d.cfg.Filename); !os.IsNotExist(serr) {
		t.Errorf("partial output file left behind")
	}
}

func TestExitCode(t *testing.T) {
	logger, hook := test.NewNullLogger()
	if c := exitCode(logger, nil); c != 0 {
		t.Errorf("expected 0 for success, got %d", c)
	}
	if c := exitCode(logger, rigol.ErrNotStopped); c != 1 {
		t.Errorf("expected 1 for an outcome, got %d", c)
	}
	if e := hook.LastEntry(); e.Level != logrus.InfoLevel || e.Message != "scope is not in STOP mode, exiting..." {
		t.Errorf("unexpected outcome log %v %q", e.Level, e.Message)
	}
	if c := exitCode(logger, block.ErrInvalidHeader); c != 1 {
		t.Errorf("expected 1 for a failure, got %d", c)
	}
	if hook.LastEntry().Level != logrus.ErrorLevel {
		t.Errorf("expected a failure to log at error level")
	}
}

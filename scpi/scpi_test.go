package scpi_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/kittennbfive/scdd/scopetest"
	"github.com/kittennbfive/scdd/scpi"
)

func TestReadStringStripsOneNewline(t *testing.T) {
	inst := scopetest.New().Set(":TRIG:STAT?", "STOP\n")
	s := scpi.New(inst, 0)
	str, err := s.ReadString(10, ":TRIG:STAT?")
	if err != nil {
		t.Fatal(err)
	}
	if str != "STOP" {
		t.Errorf("expected STOP got %q", str)
	}
}

func TestReadStringTruncatesToMaxLenMinusOne(t *testing.T) {
	inst := scopetest.New().Set("*IDN?", "RIGOL TECHNOLOGIES,MSO5074\n")
	s := scpi.New(inst, 0)
	str, err := s.ReadString(10, "*IDN?")
	if err != nil {
		t.Fatal(err)
	}
	if str != "RIGOL TEC" {
		t.Errorf("expected 9 bytes of response, got %q", str)
	}
}

func TestReadStringEmptyResponseIsReadError(t *testing.T) {
	inst := scopetest.New()
	s := scpi.New(inst, 0)
	_, err := s.ReadString(10, ":TRIG:STAT?")
	if !errors.Is(err, scpi.ErrTransportRead) {
		t.Errorf("expected read error, got %v", err)
	}
	if errors.Is(err, scpi.ErrTransportWrite) {
		t.Error("read failure must not match the write sentinel")
	}
}

func TestWriteFailureIsWriteError(t *testing.T) {
	inst := scopetest.New()
	inst.WriteErr = io.ErrClosedPipe
	s := scpi.New(inst, 0)
	err := s.Write("WAV:MODE RAW")
	if !errors.Is(err, scpi.ErrTransportWrite) {
		t.Errorf("expected write error, got %v", err)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected underlying cause to be kept, got %v", err)
	}
}

type shortWriter struct{ bytes.Buffer }

func (w *shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestShortWriteIsWriteError(t *testing.T) {
	s := scpi.New(&struct {
		io.Reader
		io.Writer
	}{&bytes.Buffer{}, &shortWriter{}}, 0)
	if err := s.Write("WAV:STAR 1"); !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("expected short write, got %v", err)
	}
}

func TestCommandsAreSentVerbatim(t *testing.T) {
	inst := scopetest.New()
	s := scpi.New(inst, 0)
	if err := s.Write(":WAV:SOUR", "CHAN2"); err != nil {
		t.Fatal(err)
	}
	cmds := inst.Commands()
	if len(cmds) != 1 || cmds[0] != ":WAV:SOUR CHAN2" {
		t.Errorf("unexpected command log %q", cmds)
	}
}

func TestReadFloat(t *testing.T) {
	cases := []struct {
		resp     string
		expected float32
	}{
		{"-1.280000e+02\n", -128},
		{"4.000000E-03\n", 0.004},
		{"  12.5", 12.5},
		{"3.5V", 3.5},
		{"garbage\n", 0},
		{"\n", 0},
	}
	for _, c := range cases {
		inst := scopetest.New().Set(":WAV:YINC?", c.resp)
		f, err := scpi.New(inst, 0).ReadFloat(":WAV:YINC?")
		if err != nil {
			t.Fatalf("%q: %v", c.resp, err)
		}
		if f != c.expected {
			t.Errorf("%q: expected %v got %v", c.resp, c.expected, f)
		}
	}
}

func TestReadBool(t *testing.T) {
	cases := map[string]bool{
		"1\n": true,
		"0\n": false,
		"0":   false,
		"ON":  true,
	}
	for resp, expected := range cases {
		inst := scopetest.New().Set(":CHAN1:DISP?", resp)
		b, err := scpi.New(inst, 0).ReadBool(":CHAN1:DISP?")
		if err != nil {
			t.Fatal(err)
		}
		if b != expected {
			t.Errorf("%q: expected %v got %v", resp, expected, b)
		}
	}
}

func TestStreamModeReadsWholeLines(t *testing.T) {
	// a byte stream holding two replies back to back
	stream := bytes.NewBufferString("1\n-2.5\n")
	rw := &struct {
		io.Reader
		io.Writer
	}{stream, io.Discard}
	s := scpi.New(rw, '\n')
	b, err := s.ReadBool(":CHAN1:DISP?")
	if err != nil || !b {
		t.Fatalf("expected true, got %v %v", b, err)
	}
	f, err := s.ReadFloat(":WAV:YOR?")
	if err != nil {
		t.Fatal(err)
	}
	if f != -2.5 {
		t.Errorf("expected the rest of the first line to be consumed, got %v", f)
	}
}

func TestParseFloatMatchesScanfPrefix(t *testing.T) {
	if v := scpi.ParseFloat("1e"); v != 1 {
		t.Errorf("expected 1 got %v", v)
	}
	if v := scpi.ParseFloat("-.5,2"); v != -0.5 {
		t.Errorf("expected -0.5 got %v", v)
	}
}

package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLoggerThrottles(t *testing.T) {
	logger, hook := test.NewNullLogger()
	l := NewLogger(logger, time.Hour)
	for i := 1; i <= 100; i++ {
		l.Update(i * 4096)
	}
	if n := len(hook.AllEntries()); n != 1 {
		t.Errorf("expected one progress line within the interval, got %d", n)
	}
	if err := l.Stop(true); err != nil {
		t.Fatal(err)
	}
	last := hook.LastEntry()
	if last.Message != "transfer complete" || last.Data["bytes"] != 100*4096 {
		t.Errorf("unexpected final entry %q %v", last.Message, last.Data)
	}
}

func TestLoggerStopFailed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	l := NewLogger(logger, time.Millisecond)
	l.Update(10)
	l.Stop(false)
	if hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("expected an aborted transfer to warn, got %v", hook.LastEntry().Level)
	}
}

func TestSpinnerLifecycle(t *testing.T) {
	var buf bytes.Buffer
	sp, err := NewSpinner(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	sp.Update(4096)
	if err := sp.Stop(true); err != nil {
		t.Fatal(err)
	}
}

package monitoring

import (
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("sample rejected: %v", "out of order")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("muted")
	if called {
		t.Error("nil logger should mute output")
	}
}

func TestCapture(t *testing.T) {
	lines, restore := Capture()
	Logf("event %d spans midnight", 7)
	restore()
	Logf("after restore")

	if len(*lines) != 1 {
		t.Fatalf("captured %d lines, want 1", len(*lines))
	}
	if !strings.Contains((*lines)[0], "event 7 spans midnight") {
		t.Errorf("captured %q", (*lines)[0])
	}
}

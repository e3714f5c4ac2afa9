package privilege

import (
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/danmuck/agentctl/internal/testutil/testlog"
)

func TestIsElevatedFailsClosedOnError(t *testing.T) {
	testlog.Start(t)
	i := New(func() (bool, error) { return true, errors.New("access denied") })
	if i.IsElevated() {
		t.Fatalf("expected query error to report not elevated")
	}
	if i.StatusMessage() != MessageNotElevated {
		t.Fatalf("unexpected message: %q", i.StatusMessage())
	}
}

func TestIsElevatedFailsClosedOnPanic(t *testing.T) {
	testlog.Start(t)
	i := New(func() (bool, error) { panic("token handle invalid") })
	if i.IsElevated() {
		t.Fatalf("expected panicking query to report not elevated")
	}
}

func TestIsElevatedNilQuery(t *testing.T) {
	testlog.Start(t)
	if (Inspector{}).IsElevated() {
		t.Fatalf("expected zero inspector to report not elevated")
	}
}

func TestStatusIsNotCached(t *testing.T) {
	testlog.Start(t)
	elevated := false
	i := New(func() (bool, error) { return elevated, nil })
	if i.Status().Elevated {
		t.Fatalf("expected not elevated initially")
	}
	elevated = true
	st := i.Status()
	if !st.Elevated || st.Message != MessageElevated {
		t.Fatalf("expected privilege change to be observed, got %+v", st)
	}
}

func TestDetectorsNeverPanic(t *testing.T) {
	testlog.Start(t)
	win := NewWindowsDetector()
	lin := NewLinuxDetector()
	mac := NewMacDetector()
	_ = win.IsElevated()
	_ = lin.IsElevated()
	_ = mac.IsElevated()

	if runtime.GOOS != "windows" {
		if win.IsElevated() {
			t.Fatalf("windows query must fail closed off windows")
		}
		if lin.IsElevated() != (os.Geteuid() == 0) {
			t.Fatalf("linux detector disagrees with euid=%d", os.Geteuid())
		}
	} else if lin.IsElevated() || mac.IsElevated() {
		t.Fatalf("unix queries must fail closed on windows")
	}
}

package systemdhost

import (
	"context"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

func testHost() *Host {
	return New(hclog.NewNullLogger())
}

func TestRun_CapturesStdoutAndStderr(t *testing.T) {
	h := testHost()
	result, err := h.run(context.Background(), []string{"/bin/sh", "-c", "echo out; echo err 1>&2"}, RunOptions{Capture: true})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if result.Stdout != "out\n" {
		t.Fatalf("stdout = %q, want %q", result.Stdout, "out\n")
	}
	if result.Stderr != "err\n" {
		t.Fatalf("stderr = %q, want %q", result.Stderr, "err\n")
	}
}

func TestRun_CheckRaisesCommandFailedOnNonZeroExit(t *testing.T) {
	h := testHost()
	_, err := h.run(context.Background(), []string{"/bin/sh", "-c", "exit 3"}, RunOptions{Check: true, Capture: true})
	if err == nil {
		t.Fatalf("run() error = nil, want CommandFailedError")
	}
	cf, ok := err.(*CommandFailedError)
	if !ok {
		t.Fatalf("run() error = %T, want *CommandFailedError", err)
	}
	if cf.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", cf.ExitCode)
	}
}

func TestRun_NoCheckSwallowsNonZeroExit(t *testing.T) {
	h := testHost()
	result, err := h.run(context.Background(), []string{"/bin/sh", "-c", "exit 7"}, RunOptions{Check: false})
	if err != nil {
		t.Fatalf("run() error = %v, want nil with check=false", err)
	}
	if result.ExitCode != 7 {
		t.Fatalf("exit code = %d, want 7", result.ExitCode)
	}
}

func TestRun_TimeoutKillsChildAndRaisesCommandTimeout(t *testing.T) {
	h := testHost()
	_, err := h.run(context.Background(), []string{"/bin/sh", "-c", "sleep 5"}, RunOptions{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatalf("run() error = nil, want CommandTimeoutError")
	}
	if _, ok := err.(*CommandTimeoutError); !ok {
		t.Fatalf("run() error = %T, want *CommandTimeoutError", err)
	}
}

func TestUnitState_FallsBackToCLIWhenBusNotConnected(t *testing.T) {
	h := testHost()
	// h.connected is false: UnitState must use the CLI path. systemctl may
	// not exist in every test sandbox, so this only checks that it attempts
	// the fallback rather than panicking on a nil bus connection.
	_, _ = h.UnitState(context.Background(), "nonexistent.service")
}

func TestListMachines_FallsBackToCLIWhenBusNotConnected(t *testing.T) {
	h := testHost()
	_, _ = h.ListMachines(context.Background())
}

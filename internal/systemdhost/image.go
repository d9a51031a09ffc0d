package systemdhost

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	pullTimeout   = 600 * time.Second
	cloneTimeout  = 600 * time.Second
	removeTimeout = 120 * time.Second
	readyTimeout  = 30 * time.Second
)

// PullImage fetches an image into the host image store. kind selects the
// pull tool (tar or raw); verify is passed through as the verification mode.
func (h *Host) PullImage(ctx context.Context, kind, source, name, verify string) error {
	var cmd []string
	switch kind {
	case "tar":
		cmd = []string{"machinectl", "pull-tar", "--verify=" + verify, source, name}
	case "raw":
		cmd = []string{"machinectl", "pull-raw", "--verify=" + verify, source, name}
	default:
		return fmt.Errorf("pull image %q: unknown kind %q", name, kind)
	}
	_, err := h.run(ctx, cmd, RunOptions{Check: true, Capture: true, Timeout: pullTimeout})
	return err
}

// CleanImage invokes the host's image-clean operation, removing transient
// partial download files.
func (h *Host) CleanImage(ctx context.Context) error {
	_, err := h.run(ctx, []string{"machinectl", "clean"}, RunOptions{Check: true, Capture: true, Timeout: defaultTimeout})
	return err
}

// ImageIsReadOnly reports whether the named image is already marked
// read-only, so MarkImageReadOnly can skip a redundant call.
func (h *Host) ImageIsReadOnly(ctx context.Context, name string) (bool, error) {
	result, err := h.run(ctx, []string{"machinectl", "show-image", name, "--property=ReadOnly", "--value"}, RunOptions{Check: true, Capture: true, Timeout: defaultTimeout})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(result.Stdout) == "yes", nil
}

// MarkImageReadOnly marks the image immutable.
func (h *Host) MarkImageReadOnly(ctx context.Context, name string) error {
	_, err := h.run(ctx, []string{"machinectl", "read-only", name}, RunOptions{Check: true, Capture: true, Timeout: defaultTimeout})
	return err
}

// RemoveImage deletes the named image from the host image store.
func (h *Host) RemoveImage(ctx context.Context, name string) error {
	_, err := h.run(ctx, []string{"machinectl", "remove", name}, RunOptions{Check: true, Capture: true, Timeout: defaultTimeout})
	return err
}

// ImageExists reports whether the host image store has an entry for name.
func (h *Host) ImageExists(ctx context.Context, name string) (bool, error) {
	_, err := h.run(ctx, []string{"machinectl", "show-image", name}, RunOptions{Check: true, Capture: true, Timeout: defaultTimeout})
	if err != nil {
		if isCommandFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CloneMachine clones the named image into a new machine called target.
func (h *Host) CloneMachine(ctx context.Context, image, target string) error {
	_, err := h.run(ctx, []string{"machinectl", "clone", image, target}, RunOptions{Check: true, Capture: true, Timeout: cloneTimeout})
	return err
}

// RemoveMachine removes the named machine, assumed already stopped.
func (h *Host) RemoveMachine(ctx context.Context, name string) error {
	_, err := h.run(ctx, []string{"machinectl", "remove", name}, RunOptions{Check: true, Capture: true, Timeout: removeTimeout})
	return err
}

// Shell invokes argv inside the named machine via the host's shell-into-
// container facility, returning the combined result without raising on a
// non-zero exit: callers inspect ExitCode themselves.
func (h *Host) Shell(ctx context.Context, name string, argv []string) (RunResult, error) {
	cmd := append([]string{"machinectl", "shell", name}, argv...)
	result, err := h.run(ctx, cmd, RunOptions{Check: false, Capture: true, Timeout: defaultTimeout})
	if err != nil {
		return RunResult{}, err
	}
	return result, nil
}

// WaitShellReady polls a cheap shell probe until the container accepts it or
// readyTimeout elapses.
func (h *Host) WaitShellReady(ctx context.Context, name string) error {
	deadline := time.Now().Add(readyTimeout)
	for {
		result, err := h.Shell(ctx, name, []string{"/bin/true"})
		if err == nil && result.ExitCode == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("container %q did not become ready within %s", name, readyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func isCommandFailed(err error) bool {
	_, ok := err.(*CommandFailedError)
	return ok
}

package systemdhost

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// RunResult is the outcome of a subprocess invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunOptions controls how run() invokes a subprocess.
type RunOptions struct {
	// Check raises CommandFailedError on a non-zero exit when true.
	Check bool
	// Capture controls whether stdout/stderr are buffered into the result.
	Capture bool
	// Timeout kills the child and raises CommandTimeoutError when non-zero
	// and exceeded. Zero means no timeout.
	Timeout time.Duration
}

// run invokes cmd[0] with cmd[1:] as arguments, honoring opts. It is the Go
// equivalent of the host driver's run(cmd, {check, capture, timeout}).
func (h *Host) run(ctx context.Context, cmd []string, opts RunOptions) (RunResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	h.logger.Debug("running command", "cmd", cmd)

	c := exec.CommandContext(runCtx, cmd[0], cmd[1:]...)

	var stdout, stderr bytes.Buffer
	if opts.Capture {
		c.Stdout = &stdout
		c.Stderr = &stderr
	}

	err := c.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return RunResult{}, &CommandTimeoutError{Cmd: cmd, Timeout: opts.Timeout.String()}
	}

	result := RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if opts.Check {
			return result, &CommandFailedError{Cmd: cmd, ExitCode: result.ExitCode, Stderr: result.Stderr}
		}
	}

	return result, nil
}

// defaultTimeout bounds CLI-fallback invocations that don't specify one.
const defaultTimeout = 30 * time.Second

// Package systemdhost wraps the host init system's machine and unit
// management surface: a system bus connection with a CLI-subprocess fallback
// for the unit and machine-listing operations, mirroring the dual-path
// reliability strategy the daemon relies on to keep reconciling even when one
// path breaks. The image and machine lifecycle operations (pull, clone,
// remove, shell) invoke the CLI tools directly.
package systemdhost

import (
	"context"
	"fmt"
	"strings"

	systemddbus "github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	hclog "github.com/hashicorp/go-hclog"
)

const (
	machine1Dest = "org.freedesktop.machine1"
	machine1Path = "/org/freedesktop/machine1"
	machine1Mgr  = "org.freedesktop.machine1.Manager"
)

// Machine is one entry from the host's machine registry.
type Machine struct {
	Name    string
	Class   string
	Service string
	Object  string
}

// Host is the single entry point the providers and engine use to mutate and
// query the host init system. The unit operations, UnitState and ListMachines
// attempt the bus path first and fall back to the equivalent CLI invocation
// exactly once if the bus path fails; the operations in image.go use the CLI
// only.
type Host struct {
	logger hclog.Logger

	conn      *systemddbus.Conn
	machine   *godbus.Conn
	connected bool
}

// New constructs a Host. BusConnect must be called before any bus-backed
// operation; until then every call degrades straight to its CLI fallback.
func New(logger hclog.Logger) *Host {
	return &Host{logger: logger.Named("systemdhost")}
}

// BusConnect opens the system bus connections used by the fast path. A
// failure here is not fatal: every subsequent call still works through its
// CLI fallback, so the daemon can run on a host with a locked-down or absent
// bus, just slower.
func (h *Host) BusConnect(ctx context.Context) error {
	conn, err := systemddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		h.logger.Warn("systemd bus connect failed, CLI fallback only", "error", err)
		return err
	}
	h.conn = conn

	machineConn, err := godbus.SystemBus()
	if err != nil {
		h.logger.Warn("machine1 bus connect failed, CLI fallback only", "error", err)
	} else {
		h.machine = machineConn
	}

	h.connected = true
	return nil
}

// Close releases the systemd bus connection, if one was established. The
// machine1 connection is the process-wide shared system bus and is left open.
func (h *Host) Close() {
	if h.conn != nil {
		h.conn.Close()
	}
}

// fallbackOnce runs busCall; if it errors (or the bus was never connected),
// it runs cliCmd exactly once and returns that outcome instead. If both
// fail, the original bus error is what's returned, per the fallback rule:
// the bus error is the one that surfaces.
func (h *Host) fallbackOnce(ctx context.Context, op string, busCall func() error, cliCmd []string) error {
	var busErr error
	if h.connected {
		busErr = busCall()
		if busErr == nil {
			return nil
		}
		h.logger.Error("bus call failed, falling back to CLI", "op", op, "error", busErr)
	} else {
		busErr = fmt.Errorf("%s: bus not connected", op)
	}

	if _, err := h.run(ctx, cliCmd, RunOptions{Check: true, Capture: true, Timeout: defaultTimeout}); err != nil {
		h.logger.Error("CLI fallback also failed", "op", op, "error", err)
		return &BusError{Op: op, Err: busErr}
	}
	return nil
}

// ReloadDaemon reloads the host init system's unit configuration.
func (h *Host) ReloadDaemon(ctx context.Context) error {
	return h.fallbackOnce(ctx, "reload_daemon", func() error {
		return h.conn.ReloadContext(ctx)
	}, []string{"systemctl", "daemon-reload"})
}

// StartUnit starts the named unit, replacing any conflicting queued job.
func (h *Host) StartUnit(ctx context.Context, name string) error {
	return h.fallbackOnce(ctx, "start_unit", func() error {
		ch := make(chan string, 1)
		if _, err := h.conn.StartUnitContext(ctx, name, "replace", ch); err != nil {
			return err
		}
		if result := <-ch; result != "done" {
			return fmt.Errorf("start unit %s: job result %q", name, result)
		}
		return nil
	}, []string{"systemctl", "start", name})
}

// StopUnit stops the named unit.
func (h *Host) StopUnit(ctx context.Context, name string) error {
	return h.fallbackOnce(ctx, "stop_unit", func() error {
		ch := make(chan string, 1)
		if _, err := h.conn.StopUnitContext(ctx, name, "replace", ch); err != nil {
			return err
		}
		if result := <-ch; result != "done" {
			return fmt.Errorf("stop unit %s: job result %q", name, result)
		}
		return nil
	}, []string{"systemctl", "stop", name})
}

// EnableUnit enables the named unit so it starts on boot.
func (h *Host) EnableUnit(ctx context.Context, name string) error {
	return h.fallbackOnce(ctx, "enable_unit", func() error {
		_, _, err := h.conn.EnableUnitFilesContext(ctx, []string{name}, false, true)
		return err
	}, []string{"systemctl", "enable", name})
}

// DisableUnit disables the named unit.
func (h *Host) DisableUnit(ctx context.Context, name string) error {
	return h.fallbackOnce(ctx, "disable_unit", func() error {
		_, err := h.conn.DisableUnitFilesContext(ctx, []string{name}, false)
		return err
	}, []string{"systemctl", "disable", name})
}

// UnitState returns the unit's ActiveState string (e.g. "active", "inactive",
// "failed"). Unlike the other operations, this one prefers reporting the CLI
// result over a bus error since callers treat the returned string itself as
// the signal, not an error.
func (h *Host) UnitState(ctx context.Context, name string) (string, error) {
	if h.connected {
		prop, err := h.conn.GetUnitPropertyContext(ctx, name, "ActiveState")
		if err == nil {
			return strings.Trim(prop.Value.String(), `"`), nil
		}
		h.logger.Debug("unit state via bus failed, falling back to CLI", "unit", name, "error", err)
	}

	result, err := h.run(ctx, []string{"systemctl", "is-active", name}, RunOptions{Check: false, Capture: true, Timeout: defaultTimeout})
	if err != nil {
		return "", &BusError{Op: "unit_state", Err: err}
	}
	return strings.TrimSpace(result.Stdout), nil
}

// ListMachines enumerates the host's registered machines.
func (h *Host) ListMachines(ctx context.Context) ([]Machine, error) {
	if h.machine != nil {
		obj := h.machine.Object(machine1Dest, godbus.ObjectPath(machine1Path))
		call := obj.CallWithContext(ctx, machine1Mgr+".ListMachines", 0)
		if call.Err == nil {
			var raw [][]any
			if err := call.Store(&raw); err == nil {
				machines := make([]Machine, 0, len(raw))
				for _, entry := range raw {
					m := Machine{}
					if len(entry) > 0 {
						m.Name, _ = entry[0].(string)
					}
					if len(entry) > 1 {
						m.Class, _ = entry[1].(string)
					}
					if len(entry) > 2 {
						m.Service, _ = entry[2].(string)
					}
					if len(entry) > 3 {
						if p, ok := entry[3].(godbus.ObjectPath); ok {
							m.Object = string(p)
						}
					}
					machines = append(machines, m)
				}
				return machines, nil
			}
		}
		h.logger.Debug("list machines via bus failed, falling back to CLI", "error", call.Err)
	}

	result, err := h.run(ctx, []string{"machinectl", "list", "--no-legend", "--no-pager"}, RunOptions{Check: true, Capture: true, Timeout: defaultTimeout})
	if err != nil {
		return nil, &BusError{Op: "list_machines", Err: err}
	}

	var machines []Machine
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		machines = append(machines, Machine{Name: fields[0], Class: fields[1]})
	}
	return machines, nil
}

package model

import (
	"fmt"
	"regexp"
)

// Ensure is the container's desired presence.
type Ensure string

const (
	EnsurePresent Ensure = "present"
	EnsureAbsent  Ensure = "absent"
)

// RunState is the container's desired lifecycle state, meaningful only when
// Ensure is EnsurePresent.
type RunState string

const (
	StateRunning RunState = "running"
	StateStopped RunState = "stopped"
)

// DefaultProfile is used when a container doesn't name one.
const DefaultProfile = "isolated"

// machineNamePattern mirrors systemd-nspawn's machine naming rules: a
// hostname-like token, starting and ending with an alphanumeric, allowing
// internal dashes, dots and underscores.
var machineNamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// Container is the identity and attributes of one declared OS container.
type Container struct {
	Name      string     `yaml:"-"`
	Image     string     `yaml:"image"`
	Profile   string     `yaml:"profile"`
	Ensure    Ensure     `yaml:"ensure"`
	State     RunState   `yaml:"state"`
	Autostart *bool      `yaml:"autostart"`
	CloudInit *CloudInit `yaml:"cloud_init,omitempty"`
}

// ProfileOrDefault returns Profile, defaulting to "isolated".
func (c Container) ProfileOrDefault() string {
	if c.Profile == "" {
		return DefaultProfile
	}
	return c.Profile
}

// EnsureOrDefault returns Ensure, defaulting to present.
func (c Container) EnsureOrDefault() Ensure {
	if c.Ensure == "" {
		return EnsurePresent
	}
	return c.Ensure
}

// StateOrDefault returns State, defaulting to running.
func (c Container) StateOrDefault() RunState {
	if c.State == "" {
		return StateRunning
	}
	return c.State
}

// AutostartOrDefault returns Autostart, defaulting to true.
func (c Container) AutostartOrDefault() bool {
	if c.Autostart == nil {
		return true
	}
	return *c.Autostart
}

// ValidateShape performs the structural checks independent of cross-resource
// references: a well-formed name, and an Ensure/State within the allowed
// enums. Reference resolution (image/profile existing) is the engine's job
// during enrichment.
func (c Container) ValidateShape() error {
	if c.Name == "" {
		return fmt.Errorf("container: name is required")
	}
	if !machineNamePattern.MatchString(c.Name) {
		return fmt.Errorf("container %q: name does not satisfy machine naming rules", c.Name)
	}
	if c.Image == "" {
		return fmt.Errorf("container %q: image is required", c.Name)
	}
	switch c.EnsureOrDefault() {
	case EnsurePresent, EnsureAbsent:
	default:
		return fmt.Errorf("container %q: unknown ensure %q", c.Name, c.Ensure)
	}
	switch c.StateOrDefault() {
	case StateRunning, StateStopped:
	default:
		return fmt.Errorf("container %q: unknown state %q", c.Name, c.State)
	}
	return nil
}

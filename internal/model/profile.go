package model

import "fmt"

// Profile supplies the per-container machine config body and unit override
// body that get rendered and dropped onto the host at container creation.
type Profile struct {
	Name              string `yaml:"-"`
	MachineConfigBody string `yaml:"machine_config_body"`
	UnitOverrideBody  string `yaml:"unit_override_body"`
}

// Validate enforces that both bodies are non-empty: a profile missing either
// cannot be materialised for a container.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name is required")
	}
	if p.MachineConfigBody == "" {
		return fmt.Errorf("profile %q: machine_config_body is required", p.Name)
	}
	if p.UnitOverrideBody == "" {
		return fmt.Errorf("profile %q: unit_override_body is required", p.Name)
	}
	return nil
}

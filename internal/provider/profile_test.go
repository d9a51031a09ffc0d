package provider

import (
	"testing"

	"github.com/chimera-project/chimerad/internal/model"
	hclog "github.com/hashicorp/go-hclog"
)

func newTestProfileProvider(t *testing.T) *ProfileProvider {
	t.Helper()
	p := &ProfileProvider{logger: hclog.NewNullLogger()}
	if err := p.Init(nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return p
}

func TestProfileProvider_PresentThenStatus(t *testing.T) {
	p := newTestProfileProvider(t)
	spec := model.Profile{Name: "isolated", MachineConfigBody: "[Exec]\n", UnitOverrideBody: "[Service]\n"}

	if got := p.Status(spec); got != StatusAbsent {
		t.Fatalf("Status() before Present = %q, want %q", got, StatusAbsent)
	}

	if err := p.Present(spec); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	if got := p.Status(spec); got != StatusPresent {
		t.Fatalf("Status() after Present = %q, want %q", got, StatusPresent)
	}

	got, ok := p.Get("isolated")
	if !ok {
		t.Fatalf("Get() ok = false, want true")
	}
	if got.MachineConfigBody != spec.MachineConfigBody {
		t.Fatalf("Get() machine_config_body = %q, want %q", got.MachineConfigBody, spec.MachineConfigBody)
	}
}

func TestProfileProvider_AbsentRemovesRegistration(t *testing.T) {
	p := newTestProfileProvider(t)
	spec := model.Profile{Name: "privileged", MachineConfigBody: "[Exec]\n", UnitOverrideBody: "[Service]\n"}

	if err := p.Present(spec); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if err := p.Absent(spec); err != nil {
		t.Fatalf("Absent() error = %v", err)
	}

	if got := p.Status(spec); got != StatusAbsent {
		t.Fatalf("Status() after Absent = %q, want %q", got, StatusAbsent)
	}
	if _, ok := p.Get("privileged"); ok {
		t.Fatalf("Get() ok = true after Absent, want false")
	}
}

func TestProfileProvider_ValidateRejectsEmptyBodies(t *testing.T) {
	p := newTestProfileProvider(t)

	if err := p.Validate(model.Profile{Name: "x", MachineConfigBody: "", UnitOverrideBody: "y"}); err == nil {
		t.Fatalf("Validate() error = nil, want error for empty machine_config_body")
	}
}

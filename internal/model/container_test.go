package model

import "testing"

func TestContainerValidateShape(t *testing.T) {
	autoFalse := false

	tests := []struct {
		name    string
		c       Container
		wantErr bool
	}{
		{
			name: "minimal valid",
			c:    Container{Name: "web-01", Image: "ubuntu-24.04-cloud-tar"},
		},
		{
			name: "dotted and dashed name",
			c:    Container{Name: "db.primary-01", Image: "debian-12-cloud-raw"},
		},
		{
			name:    "empty name",
			c:       Container{Image: "ubuntu-24.04-cloud-tar"},
			wantErr: true,
		},
		{
			name:    "name with leading dash",
			c:       Container{Name: "-bad", Image: "ubuntu-24.04-cloud-tar"},
			wantErr: true,
		},
		{
			name:    "empty image",
			c:       Container{Name: "web-01"},
			wantErr: true,
		},
		{
			name:    "invalid ensure",
			c:       Container{Name: "web-01", Image: "img", Ensure: "maybe"},
			wantErr: true,
		},
		{
			name:    "invalid state",
			c:       Container{Name: "web-01", Image: "img", State: "paused"},
			wantErr: true,
		},
		{
			name: "explicit ensure and state",
			c:    Container{Name: "web-01", Image: "img", Ensure: EnsureAbsent, State: StateStopped, Autostart: &autoFalse},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.ValidateShape()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateShape() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContainerDefaults(t *testing.T) {
	c := Container{Name: "web-01", Image: "ubuntu-24.04-cloud-tar"}

	if c.ProfileOrDefault() != DefaultProfile {
		t.Fatalf("ProfileOrDefault() = %q, want %q", c.ProfileOrDefault(), DefaultProfile)
	}
	if c.EnsureOrDefault() != EnsurePresent {
		t.Fatalf("EnsureOrDefault() = %q, want %q", c.EnsureOrDefault(), EnsurePresent)
	}
	if c.StateOrDefault() != StateRunning {
		t.Fatalf("StateOrDefault() = %q, want %q", c.StateOrDefault(), StateRunning)
	}
	if !c.AutostartOrDefault() {
		t.Fatalf("AutostartOrDefault() = false, want true")
	}

	off := false
	c.Autostart = &off
	if c.AutostartOrDefault() {
		t.Fatalf("AutostartOrDefault() = true, want false when explicitly set")
	}
}

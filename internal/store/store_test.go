package store

import (
	"os"
	"path/filepath"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestStore_LoadPopulatesAllCatalogs(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "images", "base.yaml"), `
ubuntu-24.04-cloud-tar:
  type: tar
  source: https://example.com/ubuntu.tar.xz
  verify: signature
`)
	writeFile(t, filepath.Join(dir, "profiles", "base.yaml"), `
isolated:
  machine_config_body: "[Exec]\nBoot=on\n"
  unit_override_body: "[Service]\n"
`)
	writeFile(t, filepath.Join(dir, "cloud-init", "templates.yaml"), `
ubuntu_base:
  user_data: "#cloud-config\n"
`)
	writeFile(t, filepath.Join(dir, "nodes", "web.yaml"), `
containers:
  web-01:
    image: ubuntu-24.04-cloud-tar
    profile: isolated
`)

	s := New(hclog.NewNullLogger(), dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := s.GetImage("ubuntu-24.04-cloud-tar"); !ok {
		t.Fatalf("GetImage() ok = false, want true")
	}
	if _, ok := s.GetProfile("isolated"); !ok {
		t.Fatalf("GetProfile() ok = false, want true")
	}
	if _, ok := s.GetCloudInitTemplate("ubuntu_base"); !ok {
		t.Fatalf("GetCloudInitTemplate() ok = false, want true")
	}
	c, ok := s.GetContainer("web-01")
	if !ok {
		t.Fatalf("GetContainer() ok = false, want true")
	}
	if c.Image != "ubuntu-24.04-cloud-tar" {
		t.Fatalf("container image = %q, want %q", c.Image, "ubuntu-24.04-cloud-tar")
	}

	if len(s.ListContainers()) != 1 {
		t.Fatalf("ListContainers() len = %d, want 1", len(s.ListContainers()))
	}

	if s.ChangeToken() == "" {
		t.Fatalf("ChangeToken() = \"\", want non-empty digest")
	}
}

func TestStore_LoadSkipsInvalidResourceButKeepsOthers(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "images", "base.yaml"), `
good-image:
  type: tar
  source: https://example.com/good.tar
bad-image:
  type: qcow2
  source: https://example.com/bad.qcow2
`)

	s := New(hclog.NewNullLogger(), dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := s.GetImage("good-image"); !ok {
		t.Fatalf("GetImage(good-image) ok = false, want true")
	}
	if _, ok := s.GetImage("bad-image"); ok {
		t.Fatalf("GetImage(bad-image) ok = true, want false (should be skipped)")
	}
}

func TestStore_LoadWithMissingSubdirectoriesIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()

	s := New(hclog.NewNullLogger(), dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil for an empty tree", err)
	}

	if len(s.ListContainers()) != 0 {
		t.Fatalf("ListContainers() len = %d, want 0", len(s.ListContainers()))
	}
}

func TestStore_ChangeTokenChangesWhenFileContentChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images", "base.yaml")
	writeFile(t, path, "img-a:\n  type: tar\n  source: https://example.com/a.tar\n")

	s := New(hclog.NewNullLogger(), dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	first := s.ChangeToken()

	writeFile(t, path, "img-a:\n  type: tar\n  source: https://example.com/a-v2.tar\n")
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second := s.ChangeToken()

	if first == second {
		t.Fatalf("ChangeToken() unchanged after file content changed")
	}
}

func TestStore_ListContainersPreservesInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "nodes", "a.yaml"), `
containers:
  zeta:
    image: img
  alpha:
    image: img
`)

	s := New(hclog.NewNullLogger(), dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	containers := s.ListContainers()
	if len(containers) != 2 {
		t.Fatalf("ListContainers() len = %d, want 2", len(containers))
	}
	// within one file, names are sorted for determinism since YAML map
	// order is not preserved by the decoder into a Go map.
	if containers[0].Name != "alpha" || containers[1].Name != "zeta" {
		t.Fatalf("ListContainers() order = [%s, %s], want [alpha, zeta]", containers[0].Name, containers[1].Name)
	}
}

package provider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chimera-project/chimerad/internal/model"
	hclog "github.com/hashicorp/go-hclog"
)

func newTestCloudInitProvider(t *testing.T, machinesDir string) *CloudInitProvider {
	t.Helper()
	cfg := model.AgentConfig{Systemd: model.SystemdPaths{MachinesDir: machinesDir}}
	return &CloudInitProvider{logger: hclog.NewNullLogger(), cfg: cfg}
}

func TestCloudInitProvider_PrepareWritesSeedFiles(t *testing.T) {
	dir := t.TempDir()
	p := newTestCloudInitProvider(t, dir)

	ci := &model.CloudInit{
		MetaData:      map[string]any{"custom": "value"},
		UserData:      "#cloud-config\nusers: []\n",
		NetworkConfig: "version: 2\n",
	}

	if err := p.Prepare("web-01", ci); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	seedDir := filepath.Join(dir, "web-01", seedRelDir)

	metaBytes, err := os.ReadFile(filepath.Join(seedDir, "meta-data"))
	if err != nil {
		t.Fatalf("read meta-data: %v", err)
	}
	if !strings.Contains(string(metaBytes), "local-hostname: web-01") {
		t.Fatalf("meta-data = %q, want local-hostname forced to web-01", metaBytes)
	}
	if !strings.Contains(string(metaBytes), "instance-id: iid-web-01") {
		t.Fatalf("meta-data = %q, want default instance-id", metaBytes)
	}

	userBytes, err := os.ReadFile(filepath.Join(seedDir, "user-data"))
	if err != nil {
		t.Fatalf("read user-data: %v", err)
	}
	if string(userBytes) != ci.UserData {
		t.Fatalf("user-data = %q, want %q", userBytes, ci.UserData)
	}

	networkBytes, err := os.ReadFile(filepath.Join(seedDir, "network-config"))
	if err != nil {
		t.Fatalf("read network-config: %v", err)
	}
	if string(networkBytes) != ci.NetworkConfig {
		t.Fatalf("network-config = %q, want %q", networkBytes, ci.NetworkConfig)
	}

	if got := p.Status("web-01", ci); got != StatusPresent {
		t.Fatalf("Status() = %q, want %q", got, StatusPresent)
	}
}

func TestCloudInitProvider_PrepareWithoutNetworkConfigDisablesIt(t *testing.T) {
	dir := t.TempDir()
	p := newTestCloudInitProvider(t, dir)

	ci := &model.CloudInit{UserData: "#cloud-config\n"}
	if err := p.Prepare("web-01", ci); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	seedDir := filepath.Join(dir, "web-01", seedRelDir)
	if _, err := os.Stat(filepath.Join(seedDir, "network-config")); err == nil {
		t.Fatalf("network-config written despite no NetworkConfig set")
	}

	disablePath := filepath.Join(dir, "web-01", networkDisableRel)
	content, err := os.ReadFile(disablePath)
	if err != nil {
		t.Fatalf("read network-disable stanza: %v", err)
	}
	if string(content) != networkDisableBody {
		t.Fatalf("disable stanza = %q, want %q", content, networkDisableBody)
	}
}

func TestCloudInitProvider_AbsentRemovesCloudDirectory(t *testing.T) {
	dir := t.TempDir()
	p := newTestCloudInitProvider(t, dir)

	ci := &model.CloudInit{UserData: "#cloud-config\n"}
	if err := p.Prepare("web-01", ci); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if err := p.Absent("web-01"); err != nil {
		t.Fatalf("Absent() error = %v", err)
	}

	if got := p.Status("web-01", ci); got != StatusAbsent {
		t.Fatalf("Status() after Absent = %q, want %q", got, StatusAbsent)
	}
}

func TestCloudInitProvider_StatusAbsentWhenNoCloudInit(t *testing.T) {
	p := newTestCloudInitProvider(t, t.TempDir())
	if got := p.Status("web-01", nil); got != StatusAbsent {
		t.Fatalf("Status() = %q, want %q", got, StatusAbsent)
	}
}

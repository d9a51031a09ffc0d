package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chimera-project/chimerad/internal/engine"
	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/provider"
	"github.com/chimera-project/chimerad/internal/store"
	"github.com/chimera-project/chimerad/internal/systemdhost"
	hclog "github.com/hashicorp/go-hclog"
)

func newTestServer(t *testing.T, dir string) *Server {
	t.Helper()
	logger := hclog.NewNullLogger()
	st := store.New(logger, dir)
	if err := st.Load(); err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	host := systemdhost.New(logger)
	reg := provider.New(logger, host, model.AgentConfig{}.Defaults())
	eng := engine.New(logger, st, reg)
	return New(logger, eng, st, reg, model.AgentConfig{}.Defaults())
}

func postCommand(t *testing.T, s *Server, command string, args map[string]any) commandResponse {
	t.Helper()
	body, err := json.Marshal(commandRequest{Command: command, Args: args})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest("POST", "/command", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleCommand(rec, req)

	var resp commandResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestServer_HandleCommand_UnknownCommand(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	resp := postCommand(t, s, "not-a-real-command", nil)
	if resp.Success {
		t.Fatalf("Success = true, want false for unknown command")
	}
}

func TestServer_HandleCommand_StatusWithEmptyCatalog(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	resp := postCommand(t, s, "status", nil)
	if !resp.Success {
		t.Fatalf("Success = false, want true: %s", resp.Error)
	}
}

func TestServer_HandleCommand_PrivilegedCommandDeniedWithoutPeerCredentials(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	resp := postCommand(t, s, "spawn", map[string]any{"name": "web-01"})
	if resp.Success {
		t.Fatalf("Success = true, want false: a request with no peer credentials must be treated as unprivileged")
	}
	if resp.Error == "" {
		t.Fatalf("Error = \"\", want a permission-denied message")
	}
}

func TestServer_HandleCommand_NonPrivilegedCommandsAlwaysAllowed(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	for _, command := range []string{"status", "list", "validate"} {
		resp := postCommand(t, s, command, nil)
		if !resp.Success {
			t.Fatalf("command %q: Success = false, want true: %s", command, resp.Error)
		}
	}
}

func TestServer_HandleCommand_ValidateReportsCatalogCounts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "images", "base.yaml"), "img:\n  type: tar\n  source: https://example.com/a.tar\n")

	s := newTestServer(t, dir)
	resp := postCommand(t, s, "validate", nil)
	if !resp.Success {
		t.Fatalf("Success = false, want true: %s", resp.Error)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["images"] != float64(1) {
		t.Fatalf("Data = %v, want images count 1", resp.Data)
	}
}

func TestServer_HandleCommand_StartWithoutNameIsRejected(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	req := httptest.NewRequest("POST", "/command", bytes.NewReader(mustMarshal(t, commandRequest{Command: "start", Args: map[string]any{}})))
	rec := httptest.NewRecorder()
	s.handleCommand(rec, req)

	var resp commandResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	// denied before reaching the handler's own "name required" check, since
	// start is a privileged command and this request carries no peer creds.
	if resp.Success {
		t.Fatalf("Success = true, want false")
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

package server

import (
	"encoding/json"
	"testing"
)

func TestShellJoinArgv_QuotesArgumentsWithSpaces(t *testing.T) {
	got := shellJoinArgv([]string{"echo", "hello world", ";", "rm", "-rf", "/"})
	want := `echo 'hello world' ';' rm -rf /`
	if got != want {
		t.Fatalf("shellJoinArgv() = %q, want %q", got, want)
	}
}

func TestResizeMessage_ParsesColsAndRows(t *testing.T) {
	var msg resizeMessage
	if err := json.Unmarshal([]byte(`{"type":"resize","cols":100,"rows":40}`), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.Type != "resize" || msg.Cols != 100 || msg.Rows != 40 {
		t.Fatalf("parsed = %+v, want type=resize cols=100 rows=40", msg)
	}
}

func TestResizeMessage_UnknownTypeIsNotResize(t *testing.T) {
	var msg resizeMessage
	if err := json.Unmarshal([]byte(`{"type":"ping"}`), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v: unknown control types must parse, then be ignored", err)
	}
	if msg.Type == "resize" {
		t.Fatalf("type = %q, want non-resize to be ignored by the pump", msg.Type)
	}
}

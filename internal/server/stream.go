package server

import (
	"encoding/json"
	"net/http"
	"os/exec"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
	shellquote "github.com/kballard/go-shellquote"
)

// shellJoinArgv quotes argv into a single shell command line safe to hand
// to `/bin/bash -c`, matching internal/provider's exec-quoting contract.
func shellJoinArgv(argv []string) string {
	return shellquote.Join(argv...)
}

// resizeMessage is the one defined WebSocket text-frame control message;
// any other "type" is ignored.
type resizeMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

func (s *Server) handleStreamExec(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r.Context(), "stream_exec") {
		http.Error(w, "permission denied", http.StatusForbidden)
		return
	}

	name := r.URL.Query().Get("name")
	var command []string
	if raw := r.URL.Query().Get("command"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &command); err != nil {
			http.Error(w, "invalid command array", http.StatusBadRequest)
			return
		}
	}
	s.stream(w, r, name, command)
}

func (s *Server) handleStreamShell(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r.Context(), "stream_shell") {
		http.Error(w, "permission denied", http.StatusForbidden)
		return
	}

	name := r.URL.Query().Get("name")
	s.stream(w, r, name, nil)
}

// stream upgrades to a WebSocket and runs a machinectl shell session in a
// pty, pumping binary frames in both directions. A text frame carrying
// {"type":"resize",...} resizes the pty; every other text frame is ignored.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, containerName string, command []string) {
	if containerName == "" {
		http.Error(w, "container name required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	argv := []string{"machinectl", "shell", containerName}
	if len(command) > 0 {
		argv = append(argv, "/bin/bash", "-c", shellJoinArgv(command))
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		s.logger.Error("failed to start pty session", "container", containerName, "error", err)
		return
	}
	defer func() {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	done := make(chan struct{})
	closeOnce := func() {
		select {
		case <-done:
		default:
			close(done)
		}
	}

	// pty -> websocket
	go func() {
		defer closeOnce()
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				if writeErr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// websocket -> pty, plus resize control frames
	go func() {
		defer closeOnce()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				if _, err := ptmx.Write(data); err != nil {
					return
				}
			case websocket.TextMessage:
				var msg resizeMessage
				if err := json.Unmarshal(data, &msg); err != nil {
					s.logger.Warn("invalid control message", "error", err)
					continue
				}
				if msg.Type != "resize" {
					continue
				}
				if err := pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(msg.Rows), Cols: uint16(msg.Cols)}); err != nil {
					s.logger.Warn("failed to resize pty", "error", err)
				}
			}
		}
	}()

	<-done
}

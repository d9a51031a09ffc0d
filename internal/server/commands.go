package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chimera-project/chimerad/internal/provider"
)

// commandRequest is the REST command envelope's request shape.
type commandRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// commandResponse is the REST command envelope's response shape. HTTP
// status is always 200 for any envelope the server itself produced; 500 is
// reserved for transport/parse failures that never reached a handler.
type commandResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type commandHandler func(ctx context.Context, args map[string]any) (any, error)

func (s *Server) handlers() map[string]commandHandler {
	return map[string]commandHandler{
		"status":     s.handleStatus,
		"list":       s.handleList,
		"spawn":      s.handleSpawn,
		"stop":       s.handleStop,
		"start":      s.handleStart,
		"restart":    s.handleRestart,
		"remove":     s.handleRemove,
		"exec":       s.handleExec,
		"reconcile":  s.handleReconcile,
		"reload":     s.handleReload,
		"image_pull": s.handleImagePull,
		"validate":   s.handleValidate,
	}
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, commandResponse{Success: false, Error: "invalid request body"})
		return
	}

	if !s.authorize(r.Context(), req.Command) {
		s.logger.Warn("denied privileged command", "command", req.Command)
		writeJSON(w, http.StatusOK, commandResponse{Success: false, Error: "permission denied: root privileges required"})
		return
	}

	handler, ok := s.handlers()[req.Command]
	if !ok {
		writeJSON(w, http.StatusOK, commandResponse{Success: false, Error: fmt.Sprintf("unknown command: %s", req.Command)})
		return
	}

	data, err := handler(r.Context(), req.Args)
	if err != nil {
		writeJSON(w, http.StatusOK, commandResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func (s *Server) handleStatus(ctx context.Context, args map[string]any) (any, error) {
	if name := argString(args, "container"); name != "" {
		status, err := s.engine.GetContainerStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		return map[string]any{"containers": map[string]any{name: status}}, nil
	}

	statuses := s.engine.GetAllContainerStatuses(ctx)
	last := s.engine.LastReconciliation()
	var lastStr any
	if !last.IsZero() {
		lastStr = last.Format("2006-01-02T15:04:05Z07:00")
	}
	return map[string]any{
		"agent": map[string]any{
			"running":             true,
			"last_reconciliation": lastStr,
		},
		"containers": statuses,
	}, nil
}

func (s *Server) handleList(ctx context.Context, args map[string]any) (any, error) {
	resourceType := argString(args, "type")
	if resourceType == "" {
		resourceType = "all"
	}

	result := map[string]any{}
	if resourceType == "all" || resourceType == "images" {
		images := map[string]any{}
		for _, img := range s.store.ListImages() {
			images[img.Name] = map[string]any{
				"name":   img.Name,
				"type":   img.Kind,
				"source": img.Source,
				"verify": img.VerifyOrDefault(),
			}
		}
		result["images"] = images
	}
	if resourceType == "all" || resourceType == "containers" {
		result["containers"] = s.engine.GetAllContainerStatuses(ctx)
	}
	if resourceType == "all" || resourceType == "profiles" {
		profiles := map[string]any{}
		for _, p := range s.store.ListProfiles() {
			profiles[p.Name] = map[string]any{
				"name":               p.Name,
				"has_machine_config": p.MachineConfigBody != "",
				"has_unit_override":  p.UnitOverrideBody != "",
			}
		}
		result["profiles"] = profiles
	}
	return result, nil
}

func (s *Server) handleSpawn(ctx context.Context, args map[string]any) (any, error) {
	if argBool(args, "all") {
		results := map[string]any{}
		for _, c := range s.store.ListContainers() {
			if err := s.createAndStart(ctx, c.Name); err != nil {
				results[c.Name] = map[string]any{"success": false, "error": err.Error()}
			} else {
				results[c.Name] = map[string]any{"success": true}
			}
		}
		return map[string]any{"results": results}, nil
	}

	name := argString(args, "name")
	if name == "" {
		return nil, fmt.Errorf("container name required")
	}
	if err := s.createAndStart(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"container": name, "created": true}, nil
}

func (s *Server) createAndStart(ctx context.Context, name string) error {
	if err := s.engine.CreateContainer(ctx, name); err != nil {
		return err
	}
	return s.engine.StartContainer(ctx, name)
}

func (s *Server) handleStop(ctx context.Context, args map[string]any) (any, error) {
	name := argString(args, "name")
	if name == "" {
		return nil, fmt.Errorf("container name required")
	}
	if err := s.engine.StopContainer(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"container": name, "stopped": true}, nil
}

func (s *Server) handleStart(ctx context.Context, args map[string]any) (any, error) {
	name := argString(args, "name")
	if name == "" {
		return nil, fmt.Errorf("container name required")
	}
	if err := s.engine.StartContainer(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"container": name, "started": true}, nil
}

func (s *Server) handleRestart(ctx context.Context, args map[string]any) (any, error) {
	name := argString(args, "name")
	if name == "" {
		return nil, fmt.Errorf("container name required")
	}
	if err := s.engine.RestartContainer(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"container": name, "restarted": true}, nil
}

func (s *Server) handleRemove(ctx context.Context, args map[string]any) (any, error) {
	name := argString(args, "name")
	if name == "" {
		return nil, fmt.Errorf("container name required")
	}
	if err := s.engine.RemoveContainer(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"container": name, "removed": true}, nil
}

func (s *Server) handleExec(ctx context.Context, args map[string]any) (any, error) {
	name := argString(args, "name")
	rawCommand, ok := args["command"].([]any)
	if name == "" || !ok || len(rawCommand) == 0 {
		return nil, fmt.Errorf("container name and command required")
	}
	argv := make([]string, 0, len(rawCommand))
	for _, v := range rawCommand {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("command must be an array of strings")
		}
		argv = append(argv, s)
	}

	stdout, stderr, exit, err := s.engine.ExecuteInContainer(ctx, name, argv)
	if err != nil {
		return nil, err
	}
	return map[string]any{"exit": exit, "stdout": stdout, "stderr": stderr}, nil
}

func (s *Server) handleReconcile(ctx context.Context, args map[string]any) (any, error) {
	if err := s.engine.Reconcile(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"reconciled": true}, nil
}

func (s *Server) handleReload(ctx context.Context, args map[string]any) (any, error) {
	if err := s.store.Load(); err != nil {
		return nil, err
	}
	return map[string]any{"reloaded": true}, nil
}

func (s *Server) handleImagePull(ctx context.Context, args map[string]any) (any, error) {
	name := argString(args, "name")
	if name == "" {
		return nil, fmt.Errorf("image name required")
	}
	img, ok := s.store.GetImage(name)
	if !ok {
		return nil, &provider.NotFoundError{Kind: "image", Name: name}
	}
	if err := s.registry.Image().Present(ctx, img); err != nil {
		return nil, err
	}
	return map[string]any{"image": name, "pulled": true}, nil
}

func (s *Server) handleValidate(ctx context.Context, args map[string]any) (any, error) {
	if err := s.store.Load(); err != nil {
		return map[string]any{"valid": false, "error": err.Error()}, nil
	}
	return map[string]any{
		"valid":      true,
		"images":     len(s.store.ListImages()),
		"profiles":   len(s.store.ListProfiles()),
		"containers": len(s.store.ListContainers()),
	}, nil
}

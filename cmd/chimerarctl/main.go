// Command chimerarctl is a thin reference client for chimerad's control
// server: it posts {command, args} envelopes to /command over the local
// socket and prints the response. Interactive exec/shell streaming is out
// of scope for this reference client; use the WebSocket endpoints directly
// for that.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "chimerarctl",
	Short: "chimerarctl talks to a running chimerad over its local control socket",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "./state/chimerad.sock", "chimerad's local control socket")

	rootCmd.AddCommand(
		newNameCommand("list", "List images, profiles, and containers", nil),
		newNameCommand("status", "Show agent and container status", nil),
		newNameCommand("start", "Start a container", requireName),
		newNameCommand("stop", "Stop a container", requireName),
		newNameCommand("restart", "Restart a container", requireName),
		newNameCommand("remove", "Remove a container", requireName),
		newSpawnCommand(),
		newAgentCommand(),
	)
}

func requireName(cmd *cobra.Command, cmdArgs []string) (map[string]any, error) {
	if len(cmdArgs) != 1 {
		return nil, fmt.Errorf("expected exactly one container name argument")
	}
	return map[string]any{"name": cmdArgs[0]}, nil
}

func newNameCommand(name, short string, argsFn func(cmd *cobra.Command, cmdArgs []string) (map[string]any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			var args map[string]any
			if argsFn != nil {
				a, err := argsFn(cmd, cmdArgs)
				if err != nil {
					return err
				}
				args = a
			}
			return sendCommand(cmd, name, args)
		},
	}
}

func newSpawnCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "spawn [name]",
		Short: "Create and start a container (or every declared container with --all)",
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args := map[string]any{"all": all}
			if len(cmdArgs) == 1 {
				args["name"] = cmdArgs[0]
			} else if !all {
				return fmt.Errorf("expected a container name or --all")
			}
			return sendCommand(cmd, "spawn", args)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "spawn every declared container")
	return cmd
}

func newAgentCommand() *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Control the agent process itself rather than a container",
	}
	agentCmd.AddCommand(
		&cobra.Command{
			Use:   "reconcile",
			Short: "Trigger an out-of-cycle reconciliation pass",
			RunE: func(cmd *cobra.Command, cmdArgs []string) error {
				return sendCommand(cmd, "reconcile", nil)
			},
		},
		&cobra.Command{
			Use:   "reload",
			Short: "Reload the desired-state catalog from disk",
			RunE: func(cmd *cobra.Command, cmdArgs []string) error {
				return sendCommand(cmd, "reload", nil)
			},
		},
	)
	return agentCmd
}

func sendCommand(cmd *cobra.Command, command string, args map[string]any) error {
	body, err := json.Marshal(map[string]any{"command": command, "args": args})
	if err != nil {
		return err
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	req, err := http.NewRequest(http.MethodPost, "http://unix/command", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := req.Write(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty map[string]any
	if err := json.Unmarshal(respBody, &pretty); err == nil {
		encoded, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), string(respBody))
	}

	if success, ok := pretty["success"].(bool); ok && !success {
		os.Exit(1)
	}
	return nil
}

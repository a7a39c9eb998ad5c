// Package cli provides the chronoctl command-line client. It talks to a
// running server over the JSON-over-TCP RPC listener.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/rpc"
)

// Version is set at build time.
var Version = "dev"

const defaultAddr = "localhost:7300"

// Caller is the RPC surface the commands need. *rpc.Client implements it.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
	Close() error
}

// Dialer opens a Caller to addr.
type Dialer func(ctx context.Context, addr string) (Caller, error)

type app struct {
	addr    string
	timeout time.Duration
	dial    Dialer
	out     io.Writer
	client  Caller
}

// NewRootCmd builds the command tree. A nil dial uses rpc.Dial.
func NewRootCmd(dial Dialer) *cobra.Command {
	if dial == nil {
		dial = func(ctx context.Context, addr string) (Caller, error) {
			return rpc.Dial(ctx, addr)
		}
	}
	a := &app{dial: dial}

	root := &cobra.Command{
		Use:   "chronoctl",
		Short: "Command-line client for the Chronologicon engine",
		Long: `chronoctl ingests event files and queries timelines and insights on a
running Chronologicon server through its RPC listener.

The server address comes from --addr, then CHRONO_RPC_ADDR (a .env file in
the working directory is honoured), then ` + defaultAddr + `.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if offline(cmd) {
				return nil
			}
			if a.addr == "" {
				a.addr = defaultAddr
				if v := os.Getenv("CHRONO_RPC_ADDR"); v != "" {
					a.addr = v
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			c, err := a.dial(ctx, a.addr)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", a.addr, err)
			}
			a.client = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.client != nil {
				if err := a.client.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: closing connection: %v\n", err)
				}
			}
		},
	}

	root.PersistentFlags().StringVar(&a.addr, "addr", "", "server RPC address (host:port)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "per-call timeout")

	root.AddCommand(
		newIngestCmd(a),
		newStatusCmd(a),
		newEventCmd(a),
		newTimelineCmd(a),
		newOverlapsCmd(a),
		newGapsCmd(a),
		newInfluenceCmd(a),
	)
	return root
}

// Execute runs chronoctl with the process arguments.
func Execute() error {
	_ = godotenv.Load()
	return NewRootCmd(nil).Execute()
}

// offline reports whether cmd runs without a server connection.
func offline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion":
			return true
		}
	}
	return false
}

func (a *app) call(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.client.Call(ctx, method, params, result)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

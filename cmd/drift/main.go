package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/driftterm/driftterm/internal/appconfig"
	"github.com/driftterm/driftterm/internal/client"
	"github.com/driftterm/driftterm/internal/protocol"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "drift: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "drift",
		Short:         "Attach a terminal to a driftd session",
		Long:          "drift renders daemon-owned terminal sessions in the current window.\nWith no arguments it creates a new session. Detach with Ctrl-\\.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(configPath, "")
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+appconfig.DefaultConfigPath()+")")

	root.AddCommand(&cobra.Command{
		Use:   "attach <session-id>",
		Short: "Attach to an existing session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(configPath, args[0])
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Create and attach a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(configPath, "")
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "kill <session-id>",
		Short: "Destroy a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKill(configPath, args[0])
		},
	})
	return root
}

// clientLogger logs to a file in the state dir; stderr belongs to the
// tcell screen while attached.
func clientLogger(cfg appconfig.Config) pslog.Logger {
	f, err := os.OpenFile(cfg.StateDir+"/drift.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return pslog.NewWithOptions(os.Stderr, pslog.Options{
			Mode:     pslog.ModeStructured,
			NoColor:  true,
			MinLevel: pslog.ErrorLevel,
		})
	}
	return pslog.NewWithOptions(f, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.InfoLevel,
	})
}

func cmdContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	return ctx
}

func runAttach(configPath, sessionID string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}
	app, err := client.NewApp(cfg, clientLogger(cfg))
	if err != nil {
		return err
	}
	return app.Run(cmdContext(), sessionID)
}

func runList(configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := client.Dial(cfg.SocketPath())
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", cfg.SocketPath(), err)
	}
	defer conn.Close()
	if err := conn.List(); err != nil {
		return err
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-conn.Events:
			if !ok {
				return fmt.Errorf("daemon closed connection")
			}
			if ev.Type != protocol.TypeListed {
				continue
			}
			var listed protocol.ListResponse
			if err := json.Unmarshal(ev.Raw, &listed); err != nil {
				return err
			}
			printSessions(listed.Sessions)
			return nil
		case <-timeout:
			return fmt.Errorf("timed out waiting for session list")
		}
	}
}

func printSessions(sessions []protocol.SessionInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPID\tSIZE\tSTATE\tTITLE")
	for _, s := range sessions {
		state := "alive"
		if !s.Alive {
			state = fmt.Sprintf("exited(%d)", s.ExitCode)
		}
		fmt.Fprintf(w, "%s\t%d\t%dx%d\t%s\t%s\n", s.ID, s.Pid, s.Cols, s.Rows, state, s.Title)
	}
	w.Flush()
}

func runKill(configPath, sessionID string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := client.Dial(cfg.SocketPath())
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", cfg.SocketPath(), err)
	}
	defer conn.Close()
	return conn.Destroy(sessionID)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/driftterm/driftterm/internal/appconfig"
	"github.com/driftterm/driftterm/internal/daemon"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("driftd command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "driftd",
		Short:         "Terminal session daemon",
		Long:          "driftd owns PTY sessions and publishes their grids over shared memory.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+appconfig.DefaultConfigPath()+")")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newStartCmd(&configPath))
	root.AddCommand(newStopCmd(&configPath))
	root.AddCommand(newRestartCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	root.AddCommand(newInitCmd(&configPath))
	return root
}

func loadConfig(path string) (appconfig.Config, error) {
	return appconfig.Load(path)
}

func parseLevel(s string) pslog.Level {
	switch s {
	case "trace":
		return pslog.TraceLevel
	case "debug":
		return pslog.DebugLevel
	case "warn":
		return pslog.WarnLevel
	case "error":
		return pslog.ErrorLevel
	default:
		return pslog.InfoLevel
	}
}

// newRunCmd runs the daemon in the foreground, logging to the state
// dir. `driftd start` re-execs this detached from the terminal.
func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
				return err
			}
			logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return err
			}
			defer logFile.Close()
			logger := pslog.NewWithOptions(logFile, pslog.Options{
				Mode:     pslog.ModeStructured,
				NoColor:  true,
				MinLevel: parseLevel(cfg.Logging.Level),
			})
			logger.With("pid", os.Getpid()).Info("starting")

			if err := daemon.WritePidfile(cfg); err != nil {
				return err
			}
			defer daemon.RemovePidfile(cfg)

			return daemon.NewServer(cfg, logger).Run(cmd.Context())
		},
	}
}

func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			runArgs := []string{"run"}
			if *configPath != "" {
				runArgs = append(runArgs, "--config", *configPath)
			}
			if err := daemon.Start(cfg, runArgs); err != nil {
				return err
			}
			fmt.Printf("daemon started (pid %d)\n", daemon.ReadPid(cfg))
			return nil
		},
	}
}

func newStopCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			pid := daemon.ReadPid(cfg)
			if err := daemon.Stop(cfg); err != nil {
				return err
			}
			fmt.Printf("daemon stopped (was pid %d)\n", pid)
			return nil
		},
	}
}

func newRestartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			daemon.Stop(cfg) // best effort; may not be running
			runArgs := []string{"run"}
			if *configPath != "" {
				runArgs = append(runArgs, "--config", *configPath)
			}
			if err := daemon.Start(cfg, runArgs); err != nil {
				return err
			}
			fmt.Printf("daemon started (pid %d)\n", daemon.ReadPid(cfg))
			return nil
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			pid := daemon.ReadPid(cfg)
			if pid == 0 || !daemon.ProcessAlive(pid) {
				return fmt.Errorf("daemon is not running")
			}
			fmt.Printf("daemon is running (pid %d)\n", pid)
			return nil
		},
	}
}

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				path = appconfig.DefaultConfigPath()
			}
			if err := appconfig.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}

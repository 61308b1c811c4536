package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/driftterm/driftterm/internal/appconfig"
)

// WritePidfile records the current process in the state dir.
func WritePidfile(cfg appconfig.Config) error {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(cfg.PidPath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

// RemovePidfile cleans up on shutdown.
func RemovePidfile(cfg appconfig.Config) {
	os.Remove(cfg.PidPath())
}

// ReadPid returns the recorded daemon pid, or 0 if none.
func ReadPid(cfg appconfig.Config) int {
	data, err := os.ReadFile(cfg.PidPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}

// ProcessAlive reports whether pid exists and is signalable.
func ProcessAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Start forks the daemon into the background by re-execing the current
// binary with the given run arguments, detached from the terminal, and
// waits for the control socket to appear.
func Start(cfg appconfig.Config, runArgs []string) error {
	if pid := ReadPid(cfg); pid != 0 {
		if ProcessAlive(pid) {
			return fmt.Errorf("daemon already running (pid %d)", pid)
		}
		os.Remove(cfg.PidPath())
	}
	os.Remove(cfg.SocketPath())

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	cmd := exec.Command(exePath, runArgs...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	cmd.Process.Release()

	for i := 0; i < 50; i++ {
		if _, err := os.Stat(cfg.SocketPath()); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon started but socket not yet available")
}

// Stop terminates the running daemon: SIGTERM first, SIGKILL after a
// five second grace period.
func Stop(cfg appconfig.Config) error {
	pid := ReadPid(cfg)
	if pid == 0 || !ProcessAlive(pid) {
		os.Remove(cfg.PidPath())
		os.Remove(cfg.SocketPath())
		return fmt.Errorf("daemon not running")
	}
	syscall.Kill(pid, syscall.SIGTERM)
	for i := 0; i < 50; i++ {
		if !ProcessAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	syscall.Kill(pid, syscall.SIGKILL)
	time.Sleep(200 * time.Millisecond)
	os.Remove(cfg.PidPath())
	os.Remove(cfg.SocketPath())
	return nil
}

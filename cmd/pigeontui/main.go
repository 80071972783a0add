package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pigeon-chat/pigeon/internal/config"
	"github.com/pigeon-chat/pigeon/internal/profile"
	"github.com/pigeon-chat/pigeon/internal/tui"
	"github.com/pigeon-chat/pigeon/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	addr := cfg.Daemon.ListenAddr

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(addr) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", profileName)
		if err := startDaemon(profileName); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(addr, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	c := client.New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = c.Authenticate(ctx, cfg.UserID, cfg.Auth.BootstrapKey)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "authenticate with daemon: %v\n", err)
		os.Exit(1)
	}

	app := tui.NewApp(c, profileName, cfg.UserID)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// probeDaemon checks if a daemon is responsive on the address. The
// metrics endpoint needs no auth, so it doubles as a health check.
func probeDaemon(addr string) bool {
	c := &http.Client{Timeout: 2 * time.Second}
	resp, err := c.Get("http://" + addr + "/metrics")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func startDaemon(profileName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	pigeond := filepath.Join(filepath.Dir(executable), "pigeond")

	if _, err := os.Stat(pigeond); err != nil {
		pigeond = "pigeond"
	}

	cmd := exec.Command(pigeond, "--profile", profileName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the daemon with a real HTTP probe (not just a TCP
// connect).
func waitForDaemon(addr string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(addr) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}

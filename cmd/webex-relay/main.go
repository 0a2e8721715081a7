// ABOUTME: Entry point for webex-relay, the Webex webhook to Azure OpenAI relay
// ABOUTME: Dispatches the serve, init, health, and version subcommands

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/webex-relay/internal/config"
	"github.com/2389/webex-relay/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _
 __      __ ___ | |__   ___ __  __      _ __  ___ | |  __ _  _   _
 \ \ /\ / // _ \| '_ \ / _ \\ \/ /_____| '__|/ _ \| | / _' || | | |
  \ V  V /|  __/| |_) |  __/ >  <|_____| |  |  __/| || (_| || |_| |
   \_/\_/  \___||_.__/ \___|/_/\_\     |_|   \___||_| \__,_| \__, |
                                                             |___/
`

// getConfigPath returns the path to the relay config file.
// Priority: WEBEX_RELAY_CONFIG env var > XDG_CONFIG_HOME/webex-relay/relay.yaml > ~/.config/webex-relay/relay.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WEBEX_RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "webex-relay", "relay.yaml")
}

// getDataPath returns the directory holding the ledger database.
// Priority: XDG_DATA_HOME/webex-relay > ~/.local/share/webex-relay
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "webex-relay")
}

func usage() {
	fmt.Println("Usage: webex-relay <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the relay server")
	fmt.Println("  init      Create a new config file interactively")
	fmt.Println("  health    Check relay health and readiness")
	fmt.Println("  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "health":
		err = runHealth(ctx)
	case "version", "--version", "-v":
		fmt.Printf("webex-relay %s\n", version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closeLog()

	printStartup(os.Stdout, configPath, cfg)

	logger.Info("starting webex-relay",
		"version", version,
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.Completion.Model,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// printStartup writes the colored summary shown under the banner.
func printStartup(w io.Writer, configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	line := func(label, value string) {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "%-11s%s\n", label+":", value)
	}

	line("Config", configPath)
	if !cfg.Tailscale.Enabled {
		line("HTTP", cfg.Server.HTTPAddr)
	}
	line("Webhook", cfg.Server.WebhookPath)
	line("Model", cfg.Completion.Model)
	line("Sessions", cfg.Sessions.Mode)
	if cfg.Database.Path != "" {
		line("Ledger", cfg.Database.Path)
	}

	if cfg.Tailscale.Enabled {
		green.Fprint(w, "    ▶ ")
		fmt.Fprint(w, "Tailscale: ")
		cyan.Fprint(w, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(w, " [funnel]")
		} else if cfg.Tailscale.HTTPS {
			yellow.Fprint(w, " [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(w, " (ephemeral)")
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
}

// healthBaseURL returns the address the health command should query.
func healthBaseURL(cfg *config.Config) string {
	if !cfg.Tailscale.Enabled {
		return "http://" + cfg.Server.HTTPAddr
	}
	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	base := healthBaseURL(cfg)

	for _, path := range []string{"/health", "/health/ready"} {
		status, body, err := probe(ctx, client, base+path)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("unhealthy: %s returned %d: %s", path, status, body)
		}
	}

	fmt.Println("healthy")
	return nil
}

func probe(ctx context.Context, client *http.Client, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return 0, "", fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

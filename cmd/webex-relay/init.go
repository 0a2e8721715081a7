// ABOUTME: Interactive "init" command that writes a starter relay config
// ABOUTME: Generates the webhook secret and a default system prompt file

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/webex-relay/internal/config"
)

const defaultSystemPrompt = `You are a helpful assistant answering questions from colleagues in Webex.
Keep answers short and use plain markdown.
`

// initAnswers holds everything the init command asks for.
type initAnswers struct {
	HTTPAddr      string
	WebhookSecret string

	TokenURL     string
	ClientID     string
	ClientSecret string

	Endpoint   string
	APIVersion string
	Model      string
	AppKey     string
	PromptFile string

	BotName  string
	BotEmail string
	BotToken string

	DBPath string

	Tailscale         bool
	TailscaleHostname string
	Funnel            bool

	LogLevel  string
	LogFormat string
}

// generateSecret returns a random URL-safe webhook secret.
func generateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating webhook secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "webex-relay configuration setup")
	fmt.Fprintln(out, "===============================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}
	configDir := filepath.Dir(outputFile)

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	var a initAnswers

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", config.DefaultHTTPAddr)
	a.WebhookSecret = prompt(reader, out, "Webhook secret (Authorization header)", secret)

	fmt.Fprintln(out, "\n--- OAuth Configuration ---")
	a.TokenURL = prompt(reader, out, "Token URL", "")
	a.ClientID = prompt(reader, out, "Client ID", "")
	a.ClientSecret = prompt(reader, out, "Client secret", "${WEBEX_RELAY_CLIENT_SECRET}")

	fmt.Fprintln(out, "\n--- Completion Configuration ---")
	a.Endpoint = prompt(reader, out, "Azure OpenAI endpoint", "")
	a.APIVersion = prompt(reader, out, "API version", "2024-06-01")
	a.Model = prompt(reader, out, "Deployment name", "gpt-4o")
	a.AppKey = prompt(reader, out, "App key", "")
	a.PromptFile = prompt(reader, out, "System prompt file", filepath.Join(configDir, "prompt.txt"))

	fmt.Fprintln(out, "\n--- Webex Configuration ---")
	a.BotName = prompt(reader, out, "Bot display name", "")
	a.BotEmail = prompt(reader, out, "Bot email", "")
	a.BotToken = prompt(reader, out, "Bot access token", "${WEBEX_BOT_TOKEN}")

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	a.DBPath = prompt(reader, out, "SQLite ledger path (empty to disable)", filepath.Join(getDataPath(), "relay.db"))

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	a.Tailscale = yes(prompt(reader, out, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TailscaleHostname = prompt(reader, out, "Tailscale hostname", config.DefaultTailscaleHost)
		a.Funnel = yes(prompt(reader, out, "Enable Funnel (public HTTPS for Webex)?", "yes"))
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds secrets.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if _, err := os.Stat(a.PromptFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(a.PromptFile), 0755); err != nil {
			return fmt.Errorf("creating prompt directory: %w", err)
		}
		if err := os.WriteFile(a.PromptFile, []byte(defaultSystemPrompt), 0644); err != nil {
			return fmt.Errorf("writing prompt file: %w", err)
		}
		fmt.Fprintf(out, "\nPrompt written to %s\n", a.PromptFile)
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Register your Webex webhook with secret: %s\n", a.WebhookSecret)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  webex-relay serve")

	return nil
}

// renderConfig produces the YAML config file for a.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	w := func(format string, args ...any) { fmt.Fprintf(&b, format, args...) }

	w("# webex-relay configuration\n")
	w("# Generated by webex-relay init\n\n")

	w("server:\n")
	w("  http_addr: %q\n", a.HTTPAddr)
	w("  webhook_path: %q\n\n", config.DefaultWebhookPath)

	w("webhook:\n")
	w("  secret: %q\n\n", a.WebhookSecret)

	w("oauth:\n")
	w("  token_url: %q\n", a.TokenURL)
	w("  client_id: %q\n", a.ClientID)
	w("  client_secret: %q\n", a.ClientSecret)
	w("  timeout: \"30s\"\n\n")

	w("completion:\n")
	w("  endpoint: %q\n", a.Endpoint)
	w("  api_version: %q\n", a.APIVersion)
	w("  model: %q\n", a.Model)
	w("  app_key: %q\n", a.AppKey)
	w("  prompt_file: %q\n", a.PromptFile)
	w("  timeout: \"30s\"\n\n")

	w("webex:\n")
	w("  bot_name: %q\n", a.BotName)
	w("  bot_email: %q\n", a.BotEmail)
	w("  bot_token: %q\n", a.BotToken)
	w("  markdown: true\n\n")

	w("sessions:\n")
	w("  mode: %q\n", config.SessionModeConversation)
	w("  ttl: %q\n", config.DefaultSessionTTL.String())
	w("  max_sessions: %d\n\n", config.DefaultMaxSessions)

	w("database:\n")
	w("  path: %q\n\n", a.DBPath)

	w("tailscale:\n")
	w("  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		w("  hostname: %q\n", a.TailscaleHostname)
		w("  funnel: %t\n", a.Funnel)
	}
	w("\n")

	w("logging:\n")
	w("  level: %q\n", a.LogLevel)
	w("  format: %q\n", a.LogFormat)

	return b.String()
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

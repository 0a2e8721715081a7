// ABOUTME: Configuration loading and parsing for webex-relay
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Session modes control whether conversation state survives between webhook events.
const (
	SessionModeConversation = "conversation" // one transcript per room or person
	SessionModePerEvent     = "per_event"    // fresh transcript for every event
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultHTTPAddr       = "127.0.0.1:5000"
	DefaultWebhookPath    = "/webhook"
	DefaultMessagesURL    = "https://webexapis.com/v1/messages"
	DefaultRequestTimeout = 30 * time.Second
	DefaultSessionTTL     = 30 * time.Minute
	DefaultMaxSessions    = 1000
	DefaultDedupeTTL      = 10 * time.Minute
	DefaultDedupeMaxSize  = 10_000
	DefaultTailscaleHost  = "webex-relay"
)

// Config represents the complete webex-relay configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	OAuth      OAuthConfig      `yaml:"oauth" toml:"oauth"`
	Completion CompletionConfig `yaml:"completion" toml:"completion"`
	Webex      WebexConfig      `yaml:"webex" toml:"webex"`
	Webhook    WebhookConfig    `yaml:"webhook" toml:"webhook"`
	Sessions   SessionsConfig   `yaml:"sessions" toml:"sessions"`
	Dedupe     DedupeConfig     `yaml:"dedupe" toml:"dedupe"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr" toml:"http_addr"`
	WebhookPath string `yaml:"webhook_path" toml:"webhook_path"`
	Debug       bool   `yaml:"debug" toml:"debug"` // Forces debug logging regardless of logging.level
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve HTTPS with Tailscale-issued certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Public HTTPS so Webex can reach the webhook
}

// OAuthConfig holds the client-credentials grant used to authorize the model endpoint
type OAuthConfig struct {
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	TokenURL     string `yaml:"token_url" toml:"token_url"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// CompletionConfig holds the chat-completion endpoint settings
type CompletionConfig struct {
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	APIVersion string `yaml:"api_version" toml:"api_version"`
	Model      string `yaml:"model" toml:"model"`
	AppKey     string `yaml:"app_key" toml:"app_key"`
	MaxRetries int    `yaml:"max_retries" toml:"max_retries"`

	// PromptFile holds the system prompt that opens every transcript
	PromptFile string `yaml:"prompt_file" toml:"prompt_file"`
	// ResetPrompt, when set, replaces the prompt file content after a reset command
	ResetPrompt string `yaml:"reset_prompt" toml:"reset_prompt"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// WebexConfig holds the messaging platform settings
type WebexConfig struct {
	MessagesURL string `yaml:"messages_url" toml:"messages_url"`
	BotToken    string `yaml:"bot_token" toml:"bot_token"`
	BotName     string `yaml:"bot_name" toml:"bot_name"`
	BotEmail    string `yaml:"bot_email" toml:"bot_email"`
	Markdown    bool   `yaml:"markdown" toml:"markdown"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// WebhookConfig holds inbound webhook authentication
type WebhookConfig struct {
	// Secret must match the Authorization header of every webhook call
	Secret string `yaml:"secret" toml:"secret"`
	// SigningSecret enables X-Spark-Signature verification when set
	SigningSecret string `yaml:"signing_secret" toml:"signing_secret"`
}

// SessionsConfig controls conversation retention
type SessionsConfig struct {
	Mode        string        `yaml:"mode" toml:"mode"`
	MaxSessions int           `yaml:"max_sessions" toml:"max_sessions"`
	TTL         time.Duration `yaml:"-" toml:"-"`
	TTLRaw      string        `yaml:"ttl" toml:"ttl"`
}

// DedupeConfig controls suppression of redelivered webhook events
type DedupeConfig struct {
	Disabled bool          `yaml:"disabled" toml:"disabled"`
	MaxSize  int           `yaml:"max_size" toml:"max_size"`
	TTL      time.Duration `yaml:"-" toml:"-"`
	TTLRaw   string        `yaml:"ttl" toml:"ttl"`
}

// DatabaseConfig holds the relay ledger location. An empty path disables the ledger.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"` // Optional; logs go to stdout when empty
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills in every optional field left empty.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = DefaultWebhookPath
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		c.Server.WebhookPath = "/" + c.Server.WebhookPath
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = DefaultTailscaleHost
	}

	if c.Webex.MessagesURL == "" {
		c.Webex.MessagesURL = DefaultMessagesURL
	}
	c.Webex.MessagesURL = strings.TrimSuffix(c.Webex.MessagesURL, "/")

	for _, d := range []*time.Duration{&c.OAuth.Timeout, &c.Completion.Timeout, &c.Webex.Timeout} {
		if *d == 0 {
			*d = DefaultRequestTimeout
		}
	}

	if c.Sessions.Mode == "" {
		c.Sessions.Mode = SessionModeConversation
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = DefaultSessionTTL
	}
	if c.Sessions.MaxSessions == 0 {
		c.Sessions.MaxSessions = DefaultMaxSessions
	}

	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = DefaultDedupeTTL
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = DefaultDedupeMaxSize
	}

	if c.Server.Debug {
		c.Logging.Level = "debug"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required")
	}

	if c.OAuth.ClientID == "" {
		return fmt.Errorf("oauth.client_id is required")
	}
	if c.OAuth.ClientSecret == "" {
		return fmt.Errorf("oauth.client_secret is required")
	}
	if err := validateHTTPURL("oauth.token_url", c.OAuth.TokenURL); err != nil {
		return err
	}

	if err := validateHTTPURL("completion.endpoint", c.Completion.Endpoint); err != nil {
		return err
	}
	if c.Completion.APIVersion == "" {
		return fmt.Errorf("completion.api_version is required")
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("completion.model is required")
	}
	if c.Completion.PromptFile == "" {
		return fmt.Errorf("completion.prompt_file is required")
	}
	if c.Completion.MaxRetries < 0 {
		return fmt.Errorf("completion.max_retries must not be negative")
	}

	if err := validateHTTPURL("webex.messages_url", c.Webex.MessagesURL); err != nil {
		return err
	}
	if c.Webex.BotToken == "" {
		return fmt.Errorf("webex.bot_token is required")
	}
	if c.Webex.BotName == "" {
		return fmt.Errorf("webex.bot_name is required")
	}
	if c.Webex.BotEmail == "" {
		return fmt.Errorf("webex.bot_email is required")
	}

	switch c.Sessions.Mode {
	case SessionModeConversation, SessionModePerEvent:
	default:
		return fmt.Errorf("sessions.mode must be %q or %q, got %q", SessionModeConversation, SessionModePerEvent, c.Sessions.Mode)
	}
	if c.Sessions.MaxSessions < 0 {
		return fmt.Errorf("sessions.max_sessions must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// validateHTTPURL requires a non-empty absolute http(s) URL.
func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"oauth.timeout", cfg.OAuth.TimeoutRaw, &cfg.OAuth.Timeout},
		{"completion.timeout", cfg.Completion.TimeoutRaw, &cfg.Completion.Timeout},
		{"webex.timeout", cfg.Webex.TimeoutRaw, &cfg.Webex.Timeout},
		{"sessions.ttl", cfg.Sessions.TTLRaw, &cfg.Sessions.TTL},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("parsing %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}

// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML/TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  http_addr: "0.0.0.0:5000"
  webhook_path: "/webhook"

oauth:
  client_id: "client-1"
  client_secret: "secret-1"
  token_url: "https://auth.example.com/oauth2/token"
  timeout: "5s"

completion:
  endpoint: "https://llm.example.com"
  api_version: "2024-02-01"
  model: "gpt-4o"
  app_key: "app-1"
  prompt_file: "./prompt.txt"
  timeout: "90s"

webex:
  bot_token: "bot-token"
  bot_name: "Helper"
  bot_email: "helper@webex.bot"

webhook:
  secret: "shared-secret"

sessions:
  mode: "per_event"
  ttl: "1h"
  max_sessions: 50

database:
  path: "./ledger.db"

logging:
  level: "debug"
  format: "json"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "relay.yaml", validYAML))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Server.HTTPAddr)
	assert.Equal(t, "/webhook", cfg.Server.WebhookPath)

	assert.Equal(t, "client-1", cfg.OAuth.ClientID)
	assert.Equal(t, "secret-1", cfg.OAuth.ClientSecret)
	assert.Equal(t, 5*time.Second, cfg.OAuth.Timeout)

	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	assert.Equal(t, "app-1", cfg.Completion.AppKey)
	assert.Equal(t, 90*time.Second, cfg.Completion.Timeout)

	assert.Equal(t, "Helper", cfg.Webex.BotName)
	assert.Equal(t, DefaultMessagesURL, cfg.Webex.MessagesURL)
	assert.Equal(t, DefaultRequestTimeout, cfg.Webex.Timeout)

	assert.Equal(t, SessionModePerEvent, cfg.Sessions.Mode)
	assert.Equal(t, time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 50, cfg.Sessions.MaxSessions)

	assert.Equal(t, "./ledger.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ValidTOML(t *testing.T) {
	content := `
[oauth]
client_id = "client-1"
client_secret = "secret-1"
token_url = "https://auth.example.com/oauth2/token"

[completion]
endpoint = "https://llm.example.com"
api_version = "2024-02-01"
model = "gpt-4o"
prompt_file = "./prompt.txt"

[webex]
bot_token = "bot-token"
bot_name = "Helper"
bot_email = "helper@webex.bot"
markdown = true
timeout = "12s"

[webhook]
secret = "shared-secret"
signing_secret = "sign-me"
`
	cfg, err := Load(writeConfig(t, "relay.toml", content))
	require.NoError(t, err)

	assert.Equal(t, "client-1", cfg.OAuth.ClientID)
	assert.True(t, cfg.Webex.Markdown)
	assert.Equal(t, 12*time.Second, cfg.Webex.Timeout)
	assert.Equal(t, "sign-me", cfg.Webhook.SigningSecret)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
}

func TestLoad_Defaults(t *testing.T) {
	content := strings.Replace(validYAML, `  mode: "per_event"
  ttl: "1h"
  max_sessions: 50`, "  max_sessions: 0", 1)
	content = strings.Replace(content, `  webhook_path: "/webhook"`, `  webhook_path: "hooks/webex"`, 1)

	cfg, err := Load(writeConfig(t, "relay.yaml", content))
	require.NoError(t, err)

	assert.Equal(t, SessionModeConversation, cfg.Sessions.Mode)
	assert.Equal(t, DefaultSessionTTL, cfg.Sessions.TTL)
	assert.Equal(t, DefaultMaxSessions, cfg.Sessions.MaxSessions)
	assert.Equal(t, DefaultDedupeTTL, cfg.Dedupe.TTL)
	assert.Equal(t, DefaultDedupeMaxSize, cfg.Dedupe.MaxSize)
	assert.Equal(t, "/hooks/webex", cfg.Server.WebhookPath)
}

func TestLoad_ServerDebugForcesDebugLogging(t *testing.T) {
	content := strings.Replace(validYAML, `  webhook_path: "/webhook"`, `  webhook_path: "/webhook"
  debug: true`, 1)
	content = strings.Replace(content, `level: "debug"`, `level: "warn"`, 1)

	cfg, err := Load(writeConfig(t, "relay.yaml", content))
	require.NoError(t, err)

	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyDefaults_LogLevelWithoutDebug(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "warn"}}
	cfg.ApplyDefaults()
	assert.Equal(t, "warn", cfg.Logging.Level)

	cfg = &Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "from-env")
	t.Setenv("TEST_CHATBOT_TOKEN", "hook-from-env")

	content := strings.Replace(validYAML, `client_secret: "secret-1"`, `client_secret: "${TEST_CLIENT_SECRET}"`, 1)
	content = strings.Replace(content, `secret: "shared-secret"`, `secret: "${TEST_CHATBOT_TOKEN}"`, 1)

	cfg, err := Load(writeConfig(t, "relay.yaml", content))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OAuth.ClientSecret)
	assert.Equal(t, "hook-from-env", cfg.Webhook.Secret)
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("TEST_UNSET_WEBHOOK_SECRET")

	content := strings.Replace(validYAML, `secret: "shared-secret"`, `secret: "${TEST_UNSET_WEBHOOK_SECRET}"`, 1)

	_, err := Load(writeConfig(t, "relay.yaml", content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook.secret is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "relay.yaml", "server: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "relay.toml", "[server\nhttp_addr = "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := strings.Replace(validYAML, `ttl: "1h"`, `ttl: "soon"`, 1)

	_, err := Load(writeConfig(t, "relay.yaml", content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sessions.ttl")
}

func TestLoad_NegativeDuration(t *testing.T) {
	content := strings.Replace(validYAML, `timeout: "5s"`, `timeout: "-5s"`, 1)

	_, err := Load(writeConfig(t, "relay.yaml", content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oauth.timeout")
}

func validConfig() *Config {
	cfg := &Config{
		OAuth: OAuthConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			TokenURL:     "https://auth.example.com/token",
		},
		Completion: CompletionConfig{
			Endpoint:   "https://llm.example.com",
			APIVersion: "2024-02-01",
			Model:      "gpt-4o",
			PromptFile: "prompt.txt",
		},
		Webex: WebexConfig{
			BotToken: "bot",
			BotName:  "Helper",
			BotEmail: "helper@webex.bot",
		},
		Webhook: WebhookConfig{Secret: "s"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"webhook secret", func(c *Config) { c.Webhook.Secret = "" }, "webhook.secret is required"},
		{"client id", func(c *Config) { c.OAuth.ClientID = "" }, "oauth.client_id is required"},
		{"client secret", func(c *Config) { c.OAuth.ClientSecret = "" }, "oauth.client_secret is required"},
		{"token url", func(c *Config) { c.OAuth.TokenURL = "" }, "oauth.token_url is required"},
		{"token url scheme", func(c *Config) { c.OAuth.TokenURL = "ftp://auth.example.com" }, "oauth.token_url must use http or https"},
		{"endpoint host", func(c *Config) { c.Completion.Endpoint = "https://" }, "completion.endpoint must include a host"},
		{"api version", func(c *Config) { c.Completion.APIVersion = "" }, "completion.api_version is required"},
		{"model", func(c *Config) { c.Completion.Model = "" }, "completion.model is required"},
		{"prompt file", func(c *Config) { c.Completion.PromptFile = "" }, "completion.prompt_file is required"},
		{"max retries", func(c *Config) { c.Completion.MaxRetries = -1 }, "completion.max_retries"},
		{"bot token", func(c *Config) { c.Webex.BotToken = "" }, "webex.bot_token is required"},
		{"bot name", func(c *Config) { c.Webex.BotName = "" }, "webex.bot_name is required"},
		{"bot email", func(c *Config) { c.Webex.BotEmail = "" }, "webex.bot_email is required"},
		{"session mode", func(c *Config) { c.Sessions.Mode = "forever" }, "sessions.mode"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_TailscaleHostnameDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Tailscale.Enabled = true
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultTailscaleHost, cfg.Tailscale.Hostname)
	assert.NoError(t, cfg.Validate())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RELAY_TEST_A", "alpha")
	t.Setenv("RELAY_TEST_B", "beta")

	tests := []struct {
		input string
		want  string
	}{
		{"no vars", "no vars"},
		{"${RELAY_TEST_A}", "alpha"},
		{"${RELAY_TEST_A}-${RELAY_TEST_B}", "alpha-beta"},
		{"prefix ${RELAY_TEST_MISSING} suffix", "prefix  suffix"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnvVars(tt.input))
		})
	}
}

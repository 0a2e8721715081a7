// Package config handles configuration loading for webex-relay.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion. Defaults are applied before validation, so
// a minimal file only carries credentials and bot identity.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WEBEX_RELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/webex-relay/relay.yaml
//  3. ~/.config/webex-relay/relay.yaml
//
// # Environment Variable Expansion
//
// Secrets are usually kept out of the file:
//
//	oauth:
//	  client_id: "${CLIENT_ID}"
//	  client_secret: "${CLIENT_SECRET}"
//	  token_url: "${OAUTH_URL}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:5000"
//	  webhook_path: "/webhook"
//
//	completion:
//	  endpoint: "https://example.openai.azure.com"
//	  api_version: "2024-02-01"
//	  model: "gpt-4o"
//	  app_key: "${APP_KEY}"
//	  prompt_file: "./prompt.txt"
//	  timeout: "60s"
//
//	webex:
//	  bot_token: "${WEBEX_BOT_ACCESS_TOKEN}"
//	  bot_name: "Helper"
//	  bot_email: "helper@webex.bot"
//
//	webhook:
//	  secret: "${CHATBOT_TOKEN}"
//
//	sessions:
//	  mode: "conversation"   # conversation, per_event
//	  ttl: "30m"
//	  max_sessions: 1000
//
//	database:
//	  path: "/var/lib/webex-relay/ledger.db"   # empty disables the ledger
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # stdout when empty
//
// Duration values use Go's time.ParseDuration syntax.
package config

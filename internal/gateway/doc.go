// Package gateway builds the webex-relay server from configuration and runs it.
//
// # Overview
//
// New wires every component: the OAuth token provider, the Azure chat
// completion client, the conversation session store, the Webex messages
// client, the dedupe window, and the optional SQLite ledger. Run then serves
// HTTP until its context is canceled.
//
// # Routes
//
//	POST {server.webhook_path}  Webex webhook (shared secret, optional signature)
//	GET  /health                liveness, always "OK"
//	GET  /health/ready          200 when the ledger answers a ping
//	GET  /api/usage             token usage totals (shared secret)
//	GET  /api/events            recent relay events (shared secret)
//
// # Listeners
//
// Without Tailscale the server listens on server.http_addr. With
// tailscale.enabled the gateway joins the tailnet as its own node through
// tsnet and listens on :80, on :443 with tailnet certificates (https), or on
// a public Funnel (funnel) so Webex can reach the webhook without a reverse
// proxy.
//
// # Shutdown
//
// Shutdown drains the HTTP server, leaves the tailnet, stops the session and
// dedupe sweepers, and closes the ledger. Errors from each step are joined.
package gateway

// ABOUTME: Gateway orchestrator that builds the relay from config and serves it over HTTP
// ABOUTME: Manages listeners (TCP or Tailscale), health endpoints, and component lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/webex-relay/internal/auth"
	"github.com/2389/webex-relay/internal/completion"
	"github.com/2389/webex-relay/internal/config"
	"github.com/2389/webex-relay/internal/conversation"
	"github.com/2389/webex-relay/internal/dedupe"
	"github.com/2389/webex-relay/internal/relay"
	"github.com/2389/webex-relay/internal/store"
	"github.com/2389/webex-relay/internal/webex"
)

// shutdownTimeout bounds draining of in-flight webhook calls.
const shutdownTimeout = 5 * time.Second

// sessionStore is a session provider that owns background resources.
type sessionStore interface {
	relay.SessionProvider
	Close()
}

// Gateway wires the webhook dispatcher to its dependencies and serves it.
type Gateway struct {
	config      *config.Config
	dispatcher  *relay.Dispatcher
	sessions    sessionStore
	ledger      store.Ledger // nil when database.path is empty
	dedupe      *dedupe.Window
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initLedger opens the SQLite ledger. It returns nil when no database path is configured.
func initLedger(cfg *config.Config, logger *slog.Logger) (store.Ledger, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("WEBEX_RELAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}

	s, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing ledger: %w", err)
	}
	return s, nil
}

// buildSessions creates the session provider for the configured mode.
func buildSessions(cfg *config.Config, logger *slog.Logger) sessionStore {
	tokens := auth.NewTokenProvider(context.Background(), auth.TokenProviderConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     cfg.OAuth.TokenURL,
		Timeout:      cfg.OAuth.Timeout,
	}, logger)

	completer := completion.New(completion.Config{
		Endpoint:   cfg.Completion.Endpoint,
		APIVersion: cfg.Completion.APIVersion,
		Model:      cfg.Completion.Model,
		AppKey:     cfg.Completion.AppKey,
		MaxRetries: cfg.Completion.MaxRetries,
		Timeout:    cfg.Completion.Timeout,
	}, logger)

	factoryCfg := conversation.FactoryConfig{
		Tokens:       tokens,
		NewCompleter: completer.WithTokens,
		SystemPrompt: conversation.FilePrompt(cfg.Completion.PromptFile),
		Logger:       logger,
	}
	if cfg.Completion.ResetPrompt != "" {
		factoryCfg.ResetPrompt = conversation.StaticPrompt(cfg.Completion.ResetPrompt)
	}
	factory := conversation.NewFactory(factoryCfg)

	if cfg.Sessions.Mode == config.SessionModePerEvent {
		return conversation.NewEphemeral(factory)
	}
	return conversation.NewStore(factory, cfg.Sessions.TTL, cfg.Sessions.MaxSessions, logger)
}

// New creates a gateway from cfg. Nothing is contacted until the first webhook
// arrives; the prompt file is read when a session is created.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	ledger, err := initLedger(cfg, logger)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:   cfg,
		ledger:   ledger,
		sessions: buildSessions(cfg, logger),
		logger:   logger,
	}

	dispatcherCfg := relay.Config{
		BotName:  cfg.Webex.BotName,
		BotEmail: cfg.Webex.BotEmail,
		Messages: webex.NewClient(webex.ClientConfig{
			BaseURL:  cfg.Webex.MessagesURL,
			BotToken: cfg.Webex.BotToken,
			Markdown: cfg.Webex.Markdown,
			Timeout:  cfg.Webex.Timeout,
		}, logger),
		Sessions: gw.sessions,
		Logger:   logger,
	}
	if ledger != nil {
		dispatcherCfg.Ledger = ledger
	}
	if !cfg.Dedupe.Disabled {
		gw.dedupe = dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)
		dispatcherCfg.Dedupe = gw.dedupe
	}
	gw.dispatcher = relay.NewDispatcher(dispatcherCfg)

	gw.httpServer = &http.Server{
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("relay configured",
		"webhook_path", cfg.Server.WebhookPath,
		"session_mode", cfg.Sessions.Mode,
		"dedupe", !cfg.Dedupe.Disabled,
		"ledger", ledger != nil,
		"signature_check", cfg.Webhook.SigningSecret != "",
	)
	return gw, nil
}

// routes builds the HTTP mux.
func (g *Gateway) routes() http.Handler {
	webhookAuth := auth.WebhookAuthMiddleware(g.config.Webhook.Secret, g.config.Webhook.SigningSecret, g.logger)

	mux := http.NewServeMux()
	mux.Handle("POST "+g.config.Server.WebhookPath, webhookAuth(g.dispatcher))
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	g.registerAPIRoutes(mux)
	return mux
}

func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" && g.config.Server.HTTPAddr != config.DefaultHTTPAddr {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "webhook_path", g.config.Server.WebhookPath)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// Run serves webhooks until ctx is canceled or the server fails, then shuts
// everything down. Returns nil on a clean shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "webex-relay", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and returns the webhook listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.createTailscaleListener(tsCfg)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, err
	}
	return ln, nil
}

// logTailscaleStatus logs the node address and the public webhook URL when known.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	if url := webhookURL(dnsName, g.config.Tailscale, g.config.Server.WebhookPath); url != "" {
		g.logger.Info("register this URL as the Webex webhook target", "url", url)
	}
}

// webhookURL renders the address Webex should deliver to. Empty when the node
// has no DNS name yet.
func webhookURL(dnsName string, tsCfg config.TailscaleConfig, path string) string {
	if dnsName == "" {
		return ""
	}
	host := strings.TrimSuffix(dnsName, ".")
	scheme := "http"
	if tsCfg.Funnel || tsCfg.HTTPS {
		scheme = "https"
	}
	return scheme + "://" + host + path
}

// createTailscaleListener picks Funnel, tailnet HTTPS, or plain tailnet HTTP.
func (g *Gateway) createTailscaleListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases every component.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	g.sessions.Close()
	if g.dedupe != nil {
		g.dedupe.Close()
	}
	if g.ledger != nil {
		errs = appendCloseError(errs, "ledger close", g.ledger.Close())
	}

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 when the ledger answers a ping, or when there is no ledger.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.ledger == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready (no ledger)"))
		return
	}
	if err := g.ledger.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("ledger unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

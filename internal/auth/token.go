// ABOUTME: OAuth client-credentials token provider for the completion endpoint
// ABOUTME: Exchanges client id/secret for a bearer token and caches it until expiry

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenError reports a token endpoint response that did not carry a token.
// Body holds the raw response body exactly as the endpoint returned it.
type TokenError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token request failed: %v", e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// TokenProviderConfig holds the client-credentials grant settings.
type TokenProviderConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	HTTPClient   *http.Client // optional; built from Timeout when nil
}

// TokenProvider fetches bearer tokens with the OAuth client-credentials grant.
// Tokens are reused until the expiry reported by the endpoint.
type TokenProvider struct {
	source oauth2.TokenSource
	logger *slog.Logger
}

// NewTokenProvider creates a provider. ctx scopes the underlying HTTP client and
// should live as long as the provider.
func NewTokenProvider(ctx context.Context, cfg TokenProviderConfig, logger *slog.Logger) *TokenProvider {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	return &TokenProvider{
		source: oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx)),
		logger: logger.With("component", "token-provider"),
	}
}

// Token returns a valid access token, fetching a new one when the cached token
// is missing or expired. Non-2xx responses are returned as *TokenError.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tok, err := p.source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			p.logger.Error("token endpoint rejected credentials",
				"status", retrieveErr.Response.StatusCode,
				"body", string(retrieveErr.Body),
			)
			return "", &TokenError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
				Err:        err,
			}
		}
		p.logger.Error("token request failed", "error", err)
		return "", &TokenError{Err: err}
	}

	p.logger.Debug("access token ready", "expiry", tok.Expiry)
	return tok.AccessToken, nil
}

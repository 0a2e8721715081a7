// ABOUTME: HTTP middleware guarding the webhook endpoint with a shared secret
// ABOUTME: Optionally verifies the Webex X-Spark-Signature HMAC of the request body

package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA1 of the raw webhook body.
const SignatureHeader = "X-Spark-Signature"

// UnauthorizedMessage is the body field returned to unauthenticated callers.
const UnauthorizedMessage = "Unauthorised - The sender is not authenticated."

var (
	ErrMissingSecret    = errors.New("missing authorization header")
	ErrSecretMismatch   = errors.New("authorization header does not match")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// maxSignedBody bounds how much of a request is buffered for signature checks.
const maxSignedBody = 1 << 20

// CheckSharedSecret compares the Authorization header against the configured secret
// in constant time.
func CheckSharedSecret(secret, header string) error {
	if header == "" {
		return ErrMissingSecret
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(header)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

// VerifySignature validates a Webex webhook signature against the raw body.
func VerifySignature(signingSecret, signature string, body []byte) error {
	if signature == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha1.New, []byte(signingSecret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// WebhookAuthMiddleware rejects requests whose Authorization header does not equal
// secret. When signingSecret is non-empty the body signature is verified as well and
// the body is restored for the next handler.
func WebhookAuthMiddleware(secret, signingSecret string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "webhook-auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := CheckSharedSecret(secret, r.Header.Get("Authorization")); err != nil {
				logger.Warn("rejected webhook call", "remote", r.RemoteAddr, "reason", err)
				writeUnauthorized(w)
				return
			}

			if signingSecret != "" {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
				if err != nil {
					logger.Warn("reading webhook body", "error", err)
					writeUnauthorized(w)
					return
				}
				if err := VerifySignature(signingSecret, r.Header.Get(SignatureHeader), body); err != nil {
					logger.Warn("rejected webhook signature", "remote", r.RemoteAddr, "reason", err)
					writeUnauthorized(w)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			logger.Debug("authenticated webhook call", "remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"ERROR": UnauthorizedMessage})
}

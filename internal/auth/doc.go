// Package auth holds the two credentials webex-relay deals with.
//
// Outbound, TokenProvider runs the OAuth client-credentials grant (HTTP Basic
// client authentication, grant_type=client_credentials) and caches the access
// token until the expiry the endpoint reports. A rejected grant surfaces as a
// *TokenError that keeps the endpoint's raw response body.
//
// Inbound, WebhookAuthMiddleware requires the Authorization header of every
// webhook call to equal the configured shared secret and, when a signing
// secret is configured, checks the X-Spark-Signature HMAC-SHA1 of the body.
// Rejected calls get 401 with {"ERROR": "Unauthorised - The sender is not
// authenticated."} and never reach the wrapped handler.
package auth

package mcpgateway

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
)

// staticBearerVerifier builds an auth.TokenVerifier that accepts exactly one
// process-wide shared secret. It never consults an external identity
// provider or carries scopes — a single static token is all it checks.
func staticBearerVerifier(expected string) auth.TokenVerifier {
	return func(ctx context.Context, token string, req *http.Request) (*auth.TokenInfo, error) {
		if token == "" || token != expected {
			return nil, auth.ErrInvalidToken
		}
		return &auth.TokenInfo{Expiration: time.Now().Add(100 * 365 * 24 * time.Hour)}, nil
	}
}

// wrapWithAuth guards handler with bearer-token verification when the
// gateway was configured with one, and returns handler unmodified otherwise.
// A missing or mismatched token yields the structured 401 response
// auth.RequireBearerToken produces; the gateway itself never hand-rolls that
// response shape.
func wrapWithAuth(handler http.Handler, verifier auth.TokenVerifier) http.Handler {
	if verifier == nil {
		return handler
	}
	return auth.RequireBearerToken(verifier, &auth.RequireBearerTokenOptions{})(handler)
}

// Package identity resolves the authenticated user of an incoming request.
// Credential checks belong to the account service; this package only reads
// what that service (or a proxy in front of the gateway) has asserted.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Resolver returns the user id behind r or ErrUnauthenticated.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver trusts a header set by an authenticating proxy.
type HeaderResolver struct {
	Header string
}

func (h HeaderResolver) Resolve(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(h.Header))
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// TokenResolver validates an access token from the Authorization header or,
// since browsers cannot set headers on WebSocket upgrades, a query parameter.
type TokenResolver struct {
	verifier   *jwt.Verifier
	queryParam string
}

func NewTokenResolver(verifier *jwt.Verifier, queryParam string) *TokenResolver {
	return &TokenResolver{verifier: verifier, queryParam: queryParam}
}

func (t *TokenResolver) Resolve(r *http.Request) (string, error) {
	token := middleware.BearerToken(r)
	if token == "" && t.queryParam != "" {
		token = r.URL.Query().Get(t.queryParam)
	}
	if token == "" {
		return "", ErrUnauthenticated
	}

	claims, err := t.verifier.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims.UserID, nil
}

// New builds the resolver selected by cfg.Mode.
func New(cfg config.AuthConfig) (Resolver, error) {
	switch cfg.Mode {
	case "header", "":
		header := cfg.Header
		if header == "" {
			header = "X-User-ID"
		}
		return HeaderResolver{Header: header}, nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, errors.New("auth.jwt_secret is required in jwt mode")
		}
		return NewTokenResolver(jwt.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), cfg.QueryParam), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

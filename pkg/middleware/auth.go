package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"go.uber.org/zap"
)

// PrincipalKey is the Context value key under which Auth stores the
// authenticated principal.
const PrincipalKey = "auth.principal"

// AuthProvider authenticates a request. On success it returns the principal
// the credentials belong to.
type AuthProvider interface {
	Authenticate(r *http.Request) (principal string, ok bool)
}

// BasicAuthProvider provides HTTP Basic Authentication.
type BasicAuthProvider struct {
	Credentials map[string]string // username -> password
}

func (p *BasicAuthProvider) Authenticate(r *http.Request) (string, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", false
	}
	expected, exists := p.Credentials[username]
	if !exists || subtle.ConstantTimeCompare([]byte(password), []byte(expected)) != 1 {
		return "", false
	}
	return username, true
}

// BearerTokenProvider validates Bearer tokens. Validator, when set, maps a
// token to its principal; otherwise Tokens is used.
type BearerTokenProvider struct {
	Tokens    map[string]string // token -> principal
	Validator func(token string) (string, bool)
}

func (p *BearerTokenProvider) Authenticate(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	if p.Validator != nil {
		return p.Validator(token)
	}
	principal, ok := p.Tokens[token]
	return principal, ok
}

// APIKeyProvider validates an API key sent in a header or query parameter.
type APIKeyProvider struct {
	Keys   map[string]string // key -> principal
	Header string            // e.g. "X-API-Key"
	Query  string            // e.g. "api_key"
}

func (p *APIKeyProvider) Authenticate(r *http.Request) (string, bool) {
	var key string
	if p.Header != "" {
		key = r.Header.Get(p.Header)
	}
	if key == "" && p.Query != "" {
		key = r.URL.Query().Get(p.Query)
	}
	if key == "" {
		return "", false
	}
	principal, ok := p.Keys[key]
	return principal, ok
}

// Auth is a pre hook rejecting unauthenticated requests with 401.
type Auth struct {
	provider  AuthProvider
	challenge string
	logger    *zap.Logger
}

// NewAuth creates an Auth hook. challenge is sent in WWW-Authenticate on
// rejection when non-empty, e.g. `Bearer realm="api"`.
func NewAuth(provider AuthProvider, challenge string, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{provider: provider, challenge: challenge, logger: logger}
}

func (a *Auth) OnPreRequest(ctx *common.Context) error {
	r := ctx.Request.Server
	if r != nil {
		if principal, ok := a.provider.Authenticate(r); ok {
			ctx.Set(PrincipalKey, principal)
			return nil
		}
	}

	a.logger.Warn("Authentication failed",
		zap.String("route", ctx.RouteName()),
		zap.String("url", ctx.Request.URL),
		zap.String("client_ip", ClientIPOf(ctx)),
	)
	if a.challenge != "" {
		ctx.Response.Header.Set("WWW-Authenticate", a.challenge)
	}
	return common.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
}

func (a *Auth) OnPostRequest(*common.Context) error {
	return nil
}

// Principal returns the principal stored by Auth.
func Principal(ctx *common.Context) (string, bool) {
	v, ok := ctx.Get(PrincipalKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

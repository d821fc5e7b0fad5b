// Package taskauth implements the authorization surface of spec §6.2: a process-wide mode of
// "none" or "token-based" JWT, and the scope/task-id enforcement shared by every HTTP handler.
package taskauth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

// Mode is the process-wide authorization mode.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeToken Mode = "jwt"
)

// Algorithm is the accepted JWT signing algorithm.
type Algorithm string

const (
	AlgHS256 Algorithm = "HS256"
	AlgRS256 Algorithm = "RS256"
)

// Config configures a token-based Authorizer.
type Config struct {
	Algorithm Algorithm
	Secret    []byte         // HS256
	PublicKey *rsa.PublicKey // RS256; nil for HS256
	Issuer    string
	Audience  string
}

// Claims is the decoded payload of a Taskcast bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Sub     string                    `json:"sub,omitempty"`
	TaskIDs any                       `json:"taskIds,omitempty"` // "*" (or any string) or []string
	Scope   []taskcast.PermissionScope `json:"scope,omitempty"`
}

// AuthContext is the resolved identity/authorization context for one request.
type AuthContext struct {
	Subject string
	AllTask bool // true if taskIds is "*" (or any other string, per the source's permissive decode)
	TaskIDs map[string]bool
	Scopes  map[taskcast.PermissionScope]bool
}

// anyTaskContext is the ambient context used in ModeNone: every task, every scope.
func anyTaskContext() AuthContext {
	return AuthContext{AllTask: true, Scopes: map[taskcast.PermissionScope]bool{taskcast.ScopeAll: true}}
}

// Authorizer validates bearer tokens (or, in ModeNone, always authorizes) and answers scope
// checks.
type Authorizer struct {
	mode Mode
	cfg  Config
}

// NewNoneAuthorizer builds an Authorizer that authorizes every request.
func NewNoneAuthorizer() *Authorizer {
	return &Authorizer{mode: ModeNone}
}

// NewTokenAuthorizer builds a JWT-validating Authorizer.
func NewTokenAuthorizer(cfg Config) *Authorizer {
	return &Authorizer{mode: ModeToken, cfg: cfg}
}

// Authenticate extracts and validates the bearer token from an Authorization header value (the
// full header, e.g. "Bearer xyz"). In ModeNone it ignores the header and always succeeds.
func (a *Authorizer) Authenticate(authHeader string) (AuthContext, error) {
	if a.mode == ModeNone {
		return anyTaskContext(), nil
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return AuthContext{}, taskcast.Unauthenticated("missing bearer token")
	}
	raw := strings.TrimPrefix(authHeader, prefix)

	claims := &Claims{}
	parserOpts := []jwt.ParserOption{}
	if a.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		switch a.cfg.Algorithm {
		case AlgHS256:
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
			}
			return a.cfg.Secret, nil
		case AlgRS256:
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
			}
			return a.cfg.PublicKey, nil
		default:
			return nil, fmt.Errorf("unsupported algorithm %q", a.cfg.Algorithm)
		}
	}, parserOpts...)
	if err != nil || !token.Valid {
		return AuthContext{}, taskcast.Unauthenticated("invalid token")
	}

	ctx := AuthContext{
		Subject: claims.Sub,
		TaskIDs: make(map[string]bool),
		Scopes:  make(map[taskcast.PermissionScope]bool),
	}
	switch v := claims.TaskIDs.(type) {
	case string:
		// Any string value (not only the literal "*") is treated as "all task ids", matching the
		// reference implementation's permissive claim decoding (see SPEC_FULL.md §6.2).
		ctx.AllTask = true
		_ = v
	case []any:
		for _, id := range v {
			if s, ok := id.(string); ok {
				ctx.TaskIDs[s] = true
			}
		}
	}
	for _, s := range claims.Scope {
		ctx.Scopes[s] = true
	}
	return ctx, nil
}

// Allow reports whether ctx is authorized for scope on taskID (taskID may be empty for
// task-less operations such as task creation).
func Allow(ctx AuthContext, scope taskcast.PermissionScope, taskID string) bool {
	taskOK := ctx.AllTask || taskID == "" || ctx.TaskIDs[taskID]
	scopeOK := ctx.Scopes[taskcast.ScopeAll] || ctx.Scopes[scope]
	return taskOK && scopeOK
}

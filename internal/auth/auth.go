package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"

	"billing-mcp/internal/config"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity is the authenticated operator of a request.
type Identity struct {
	Subject string
	Email   string
	Scopes  []string
}

// Name returns the best human-readable identifier for the operator.
func (i *Identity) Name() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// HasScope reports whether the identity was granted scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored in ctx, if any.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

// devIdentity is used for every request when auth is bypassed.
var devIdentity = Identity{Subject: "dev", Email: "dev@localhost", Scopes: AllScopes}

// Auth verifies bearer access tokens issued by an Okta tenant.
type Auth struct {
	verifier   *oidc.IDTokenVerifier
	logger     Logger
	authBypass bool
}

// New creates a new Auth object using values from the application
// configuration. Outside of bypass mode it discovers the provider and
// prepares an access token verifier.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	isDev := strings.ToUpper(cfg.Environment) == "DEV"
	if isDev && cfg.DevModeBypass {
		if logger != nil {
			logger.Info("auth bypass enabled", "identity", devIdentity.Email)
		}
		return &Auth{logger: logger, authBypass: true}, nil
	}

	if cfg.Auth.OktaDomain == "" {
		return nil, errors.New("auth configuration is incomplete")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
	if err != nil {
		return nil, err
	}

	// Access tokens usually carry an API audience, not the client ID.
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return &Auth{verifier: verifier, logger: logger}, nil
}

// Bypassed reports whether requests are let through without a token.
func (a *Auth) Bypassed() bool {
	return a.authBypass
}

// RequireAuth is middleware that ensures a valid bearer token is present and
// stores the caller's Identity in the request context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authBypass {
			id := devIdentity
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &id)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			w.Header().Set("WWW-Authenticate", `Bearer realm="billing-mcp"`)
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		token, err := a.verifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if a.logger != nil {
				a.logger.Debug("token verification failed", "error", err)
			}
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		var claims struct {
			Email string   `json:"email"`
			Scp   []string `json:"scp"`
			Scope string   `json:"scope"`
		}
		if err := token.Claims(&claims); err != nil {
			http.Error(w, "failed to parse token claims", http.StatusUnauthorized)
			return
		}

		scopes := claims.Scp
		if len(scopes) == 0 && claims.Scope != "" {
			scopes = strings.Fields(claims.Scope)
		}
		id := &Identity{Subject: token.Subject, Email: claims.Email, Scopes: scopes}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/isdelr/chirp-be/internal/apperr"
	"github.com/isdelr/chirp-be/internal/logger"
)

// Rejection messages of the gate, one per failed transition.
const (
	MsgMissingAuthHeader     = "Authorization header missing"
	MsgMissingToken          = "Token missing"
	MsgInvalidOrExpiredToken = "Invalid or expired token"
)

type contextKey string

const identityKey = contextKey("identity")

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity attached by the gate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Verifier is the part of TokenService the gate needs.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// Gate authenticates requests from their Authorization header.
type Gate struct {
	tokens Verifier
}

// NewGate creates a Gate backed by tokens.
func NewGate(tokens Verifier) *Gate {
	return &Gate{tokens: tokens}
}

// Authenticate resolves an Authorization header value to an identity.
func (g *Gate) Authenticate(header string) (Identity, *apperr.Error) {
	if header == "" {
		return Identity{}, apperr.Auth(MsgMissingAuthHeader)
	}

	// "<scheme> <token>" split on single spaces; the scheme itself is not
	// inspected. An empty second field, as in "Bearer  tok", is a missing token.
	parts := strings.Split(header, " ")
	if len(parts) < 2 || parts[1] == "" {
		return Identity{}, apperr.Auth(MsgMissingToken)
	}
	return g.VerifyToken(parts[1])
}

// VerifyToken checks a bare token, as sent by clients that cannot set headers.
func (g *Gate) VerifyToken(token string) (Identity, *apperr.Error) {
	id, err := g.tokens.Verify(token)
	if err != nil {
		return Identity{}, apperr.Auth(MsgInvalidOrExpiredToken)
	}
	return id, nil
}

// Require is a middleware that rejects unauthenticated requests and passes
// the identity down via context.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, appErr := g.Authenticate(r.Header.Get("Authorization"))
		if appErr != nil {
			logger.Ctx(r.Context()).Debug().Str("reason", appErr.Message).Msg("Rejected unauthenticated request")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(appErr.HTTPStatus())
			json.NewEncoder(w).Encode(map[string]string{"message": appErr.Message})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Permit allows access only when the caller owns the resource.
func Permit(id Identity, ownerID string) error {
	if id.ID == "" || id.ID != ownerID {
		return apperr.Forbidden("Forbidden")
	}
	return nil
}

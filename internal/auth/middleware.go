package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/store"
)

// CookieName is the session cookie.
const CookieName = "medminder_session"

type ctxKey struct{}

// UserFrom returns the authenticated user stored by Middleware, or nil.
func UserFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKey{}).(*model.User)
	return u
}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// Authenticator resolves requests to users.
type Authenticator struct {
	sessions *Sessions
	users    store.Users
	logger   *slog.Logger
	secure   bool
}

// NewAuthenticator wires session verification to the user store. secure
// marks cookies Secure, which production deployments behind TLS need.
func NewAuthenticator(sessions *Sessions, users store.Users, logger *slog.Logger, secure bool) *Authenticator {
	return &Authenticator{sessions: sessions, users: users, logger: logger, secure: secure}
}

// Sessions exposes the token issuer for the login handlers.
func (a *Authenticator) Sessions() *Sessions { return a.sessions }

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Resolve returns the user behind the request's session.
func (a *Authenticator) Resolve(r *http.Request) (*model.User, error) {
	token := tokenFrom(r)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := a.sessions.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := a.users.GetUser(r.Context(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Middleware rejects requests without a valid session with 401 and stores
// the user in the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Resolve(r)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				a.logger.Error("Session lookup failed", "error", err)
				respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve session")
				return
			}
			respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please login")
			return
		}

		now := time.Now()
		if err := a.users.TouchSignIn(r.Context(), u.ID, now); err != nil {
			a.logger.Warn("Failed to update last sign-in", "user_id", u.ID, "error", err)
		}
		u.LastSignedIn = now

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// SetCookie writes the session cookie.
func (a *Authenticator) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

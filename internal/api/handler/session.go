package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/store"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// SessionResponse is returned by register and login. The token is also set
// as the session cookie; clients without cookies send it as a Bearer token.
type SessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u *model.User, status int) {
	token, expires, err := h.auth.Sessions().Issue(u)
	if err != nil {
		h.writeErr(w, r, err, "session")
		return
	}
	h.auth.SetCookie(w, token, expires)
	respond.WriteJSONObject(w, status, SessionResponse{User: u, Token: token})
}

// Register creates an account and signs it in.
// @Summary Register
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} SessionResponse
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		h.writeErr(w, r, &model.ValidationError{Field: "username", Message: "username is required"}, "user")
		return
	}
	if in.Password == "" {
		h.writeErr(w, r, &model.ValidationError{Field: "password", Message: "password is required"}, "user")
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		h.writeErr(w, r, err, "user")
		return
	}
	now := h.now()
	u := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		LastSignedIn: now,
	}
	id, err := h.store.CreateUser(r.Context(), u)
	if err != nil {
		h.writeErr(w, r, err, "username")
		return
	}
	u.ID = id
	h.logger.Info("User registered", "user_id", id)
	h.startSession(w, r, u, http.StatusCreated)
}

// Login checks credentials and sets the session cookie.
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} respond.ErrorResponse
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	u, err := h.store.GetUserByUsername(r.Context(), strings.TrimSpace(in.Username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.writeErr(w, r, err, "user")
		return
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, in.Password) {
		respond.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
		return
	}

	now := h.now()
	if err := h.store.TouchSignIn(r.Context(), u.ID, now); err != nil {
		h.logger.Warn("Failed to update last sign-in", "user_id", u.ID, "error", err)
	}
	u.LastSignedIn = now
	h.startSession(w, r, u, http.StatusOK)
}

// Logout clears the session cookie.
// @Summary Logout
// @Tags auth
// @Produce json
// @Success 200 {object} respond.Success
// @Router /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearCookie(w)
	respond.WriteSuccess(w)
}

// Me returns the signed-in user, or null.
// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} model.User
// @Router /api/auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.Resolve(r)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			h.logger.Warn("Session lookup failed", "error", err)
		}
		respond.WriteJSONObject(w, http.StatusOK, nil)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, u)
}

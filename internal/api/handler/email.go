package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/email"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/store"
)

// EmailStatus reports whether the user saved SMTP settings. The password is
// never returned.
type EmailStatus struct {
	Configured bool `json:"configured"`
	*model.EmailSettings
}

// GetEmailSettings returns the user's SMTP settings status.
// @Summary Email settings status
// @Tags email
// @Produce json
// @Success 200 {object} EmailStatus
// @Router /api/v1/email-settings [get]
func (h *Handler) GetEmailSettings(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	s, err := h.store.GetEmailSettings(r.Context(), u.ID)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteJSONObject(w, http.StatusOK, EmailStatus{})
		return
	}
	if err != nil {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, EmailStatus{Configured: true, EmailSettings: s})
}

// SaveEmailSettings creates or replaces the user's SMTP settings.
// @Summary Save email settings
// @Tags email
// @Accept json
// @Produce json
// @Param body body model.SMTPInput true "SMTP account"
// @Success 200 {object} respond.Success
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/email-settings [put]
func (h *Handler) SaveEmailSettings(w http.ResponseWriter, r *http.Request) {
	var in model.SMTPInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	u := auth.UserFrom(r.Context())
	if err := h.store.UpsertEmailSettings(r.Context(), in.Settings(u.ID)); err != nil {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	respond.WriteSuccess(w)
}

// DeleteEmailSettings removes the user's SMTP settings.
// @Summary Delete email settings
// @Tags email
// @Produce json
// @Success 200 {object} respond.Success
// @Router /api/v1/email-settings [delete]
func (h *Handler) DeleteEmailSettings(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	if err := h.store.DeleteEmailSettings(r.Context(), u.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	respond.WriteSuccess(w)
}

type testConfigRequest struct {
	model.SMTPInput
	TestEmail string `json:"testEmail"`
}

// TestEmailConfig sends a test email with unsaved SMTP settings.
// @Summary Test SMTP settings
// @Tags email
// @Accept json
// @Produce json
// @Param body body testConfigRequest true "SMTP account and test recipient"
// @Success 200 {object} respond.Success
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/email-settings/test [post]
func (h *Handler) TestEmailConfig(w http.ResponseWriter, r *http.Request) {
	var in testConfigRequest
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	if err := model.ValidateEmail("testEmail", in.TestEmail); err != nil {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	u := auth.UserFrom(r.Context())
	settings := in.Settings(u.ID)
	settings.IsEnabled = true
	h.sendTest(w, r, settings, strings.TrimSpace(in.TestEmail))
}

type testSavedRequest struct {
	Email string `json:"email"`
}

// TestSavedEmail sends a test email with the saved SMTP settings.
// @Summary Test saved SMTP settings
// @Tags email
// @Accept json
// @Produce json
// @Param body body testSavedRequest true "Test recipient"
// @Success 200 {object} respond.Success
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/email-settings/test-saved [post]
func (h *Handler) TestSavedEmail(w http.ResponseWriter, r *http.Request) {
	var in testSavedRequest
	if !decode(w, r, &in) {
		return
	}
	if err := model.ValidateEmail("email", in.Email); err != nil {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	u := auth.UserFrom(r.Context())
	settings, err := h.store.GetEmailSettings(r.Context(), u.ID)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusBadRequest, "EMAIL_NOT_CONFIGURED", "Save SMTP settings before sending a test email")
		return
	}
	if err != nil {
		h.writeErr(w, r, err, "Email settings")
		return
	}
	h.sendTest(w, r, settings, strings.TrimSpace(in.Email))
}

func (h *Handler) sendTest(w http.ResponseWriter, r *http.Request, settings *model.EmailSettings, to string) {
	err := h.sender.Send(r.Context(), settings, email.ConfigTestMessage(to))
	switch {
	case err == nil:
		respond.WriteSuccess(w)
	case errors.Is(err, email.ErrNotConfigured):
		respond.WriteError(w, http.StatusBadRequest, "EMAIL_NOT_CONFIGURED", "Email notifications are disabled")
	default:
		h.logger.Warn("Test email failed", "host", settings.SMTPHost, "error", err)
		respond.WriteErrorDetail(w, http.StatusBadRequest, "EMAIL_SEND_FAILED",
			"Failed to send email, check the SMTP settings", err.Error())
	}
}

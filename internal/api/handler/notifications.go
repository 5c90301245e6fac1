package handler

import (
	"net/http"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/reminder"
	"github.com/albapepper/medminder/internal/store"
)

// ListNotifications returns the user's latest in-app notifications.
// @Summary Notification inbox
// @Tags notifications
// @Produce json
// @Success 200 {array} model.Notification
// @Router /api/v1/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	list, err := h.store.ListNotifications(r.Context(), u.ID, store.DefaultNotificationLimit)
	if err != nil {
		h.writeErr(w, r, err, "Notifications")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, orEmpty(list))
}

// MarkNotificationRead flags one notification as read.
// @Summary Mark notification read
// @Tags notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} respond.Success
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/notifications/{id}/read [post]
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u := auth.UserFrom(r.Context())
	if err := h.store.MarkNotificationRead(r.Context(), u.ID, id); err != nil {
		h.writeErr(w, r, err, "Notification")
		return
	}
	respond.WriteSuccess(w)
}

// CheckLowStock runs the low-stock fan-out for the signed-in user: in-app
// notices to the user and opted-in contacts, then one email per contact.
// @Summary Check stock and notify
// @Tags notifications
// @Produce json
// @Param daysThreshold query int false "Horizon in days" default(7)
// @Success 200 {object} notifications.Result
// @Router /api/v1/notifications/check [post]
func (h *Handler) CheckLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, ok := daysThreshold(w, r, h.cfg.LowStockDays)
	if !ok {
		return
	}
	u := auth.UserFrom(r.Context())
	res, err := h.checker.CheckWithin(r.Context(), u, threshold)
	if err != nil {
		h.writeErr(w, r, err, "Notifications")
		return
	}
	h.logger.Info("Low-stock check complete",
		"user_id", u.ID,
		"low_stock", res.LowStockCount,
		"notifications", res.NotificationsSent,
		"emails", res.EmailsSent)
	respond.WriteJSONObject(w, http.StatusOK, res)
}

// DueReminders is the polling endpoint clients call every 30 seconds. Each
// reminder is returned at most once per day by this process.
// @Summary Due reminders
// @Tags reminders
// @Produce json
// @Success 200 {object} DueResponse
// @Router /api/v1/reminders/due [get]
func (h *Handler) DueReminders(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	now := h.now()
	meds, err := h.store.ListMedications(r.Context(), u.ID)
	if err != nil {
		h.writeErr(w, r, err, "Medications")
		return
	}
	start, end := reminder.DayBounds(now)
	logs, err := h.store.ListLogs(r.Context(), u.ID, model.LogFilter{Start: start, End: end})
	if err != nil {
		h.writeErr(w, r, err, "Logs")
		return
	}

	due := h.matcher.Due(now, meds, logs)
	resp := DueResponse{Reminders: orEmpty(due)}
	if len(due) > 0 {
		s := reminder.Summarize(due)
		resp.Summary = &s
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}

// DueResponse lists reminders due now and, when any, their combined message.
type DueResponse struct {
	Reminders []reminder.Reminder `json:"reminders"`
	Summary   *reminder.Summary   `json:"summary"`
}

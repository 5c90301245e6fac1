package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/reminder"
)

// CreateLog records a dose. Taken and late doses draw down the remaining
// quantity.
// @Summary Record a dose
// @Tags logs
// @Accept json
// @Produce json
// @Param body body model.NewLog true "Dose"
// @Success 201 {object} respond.Created
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/logs [post]
func (h *Handler) CreateLog(w http.ResponseWriter, r *http.Request) {
	var in model.NewLog
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	u := auth.UserFrom(r.Context())
	id, err := h.store.CreateLog(r.Context(), in.Log(u.ID))
	if err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	if in.Status.ConsumesStock() {
		h.invalidate(u.ID)
	}
	respond.WriteJSONObject(w, http.StatusCreated, respond.Created{ID: id})
}

// TodayLogs lists the doses recorded during the current calendar day.
// @Summary Today's doses
// @Tags logs
// @Produce json
// @Success 200 {array} model.MedicationLog
// @Router /api/v1/logs/today [get]
func (h *Handler) TodayLogs(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	start, end := reminder.DayBounds(h.now())
	logs, err := h.store.ListLogs(r.Context(), u.ID, model.LogFilter{Start: start, End: end})
	if err != nil {
		h.writeErr(w, r, err, "Logs")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, orEmpty(logs))
}

// ListLogs returns dose history, newest first.
// @Summary Dose history
// @Tags logs
// @Produce json
// @Param medicationId query int false "Only this medication"
// @Param startTs query int false "Earliest takenAt, unix milliseconds"
// @Param endTs query int false "Latest takenAt, unix milliseconds"
// @Success 200 {array} model.MedicationLog
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/logs [get]
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f model.LogFilter
	for _, p := range []struct {
		name string
		set  func(int64)
	}{
		{"medicationId", func(v int64) { f.MedicationID = v }},
		{"startTs", func(v int64) { f.Start = time.UnixMilli(v) }},
		{"endTs", func(v int64) { f.End = time.UnixMilli(v) }},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAMETER", p.name+" must be a non-negative integer")
			return
		}
		p.set(v)
	}

	u := auth.UserFrom(r.Context())
	logs, err := h.store.ListLogs(r.Context(), u.ID, f)
	if err != nil {
		h.writeErr(w, r, err, "Logs")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, orEmpty(logs))
}

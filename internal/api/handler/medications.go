package handler

import (
	"net/http"
	"strconv"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/cache"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/stock"
)

// ListMedications returns the user's active medications with supply forecasts.
// @Summary List medications
// @Description Active medications, newest first, each with dailyUsage, daysRemaining and predictedExhaustDate.
// @Tags medications
// @Produce json
// @Param If-None-Match header string false "ETag from previous response"
// @Success 200 {array} stock.Forecast
// @Success 304 "Not Modified"
// @Router /api/v1/medications [get]
func (h *Handler) ListMedications(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	h.serveCached(w, r, cache.MedicationsKey(u.ID), func() (any, error) {
		meds, err := h.store.ListMedications(r.Context(), u.ID)
		if err != nil {
			return nil, err
		}
		return stock.Forecasts(meds, h.now()), nil
	}, "medications")
}

// GetMedication returns one medication with its forecast.
// @Summary Get medication
// @Tags medications
// @Produce json
// @Param id path int true "Medication ID"
// @Success 200 {object} stock.Forecast
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/medications/{id} [get]
func (h *Handler) GetMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u := auth.UserFrom(r.Context())
	m, err := h.store.GetMedication(r.Context(), u.ID, id)
	if err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, stock.Forecast{Medication: *m, Prediction: stock.Predict(*m, h.now())})
}

// CreateMedication adds a medication.
// @Summary Create medication
// @Tags medications
// @Accept json
// @Produce json
// @Param body body model.NewMedication true "Medication"
// @Success 201 {object} respond.Created
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/medications [post]
func (h *Handler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var in model.NewMedication
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	u := auth.UserFrom(r.Context())
	id, err := h.store.CreateMedication(r.Context(), in.Medication(u.ID))
	if err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	h.invalidate(u.ID)
	respond.WriteJSONObject(w, http.StatusCreated, respond.Created{ID: id})
}

// UpdateMedication applies a partial update.
// @Summary Update medication
// @Tags medications
// @Accept json
// @Produce json
// @Param id path int true "Medication ID"
// @Param body body model.MedicationPatch true "Fields to change"
// @Success 200 {object} respond.Success
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/medications/{id} [patch]
func (h *Handler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch model.MedicationPatch
	if !decode(w, r, &patch) {
		return
	}
	if err := patch.Validate(); err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	u := auth.UserFrom(r.Context())
	if err := h.store.UpdateMedication(r.Context(), u.ID, id, patch); err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	h.invalidate(u.ID)
	respond.WriteSuccess(w)
}

// DeleteMedication deactivates a medication. Its logs are kept.
// @Summary Delete medication
// @Tags medications
// @Produce json
// @Param id path int true "Medication ID"
// @Success 200 {object} respond.Success
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/medications/{id} [delete]
func (h *Handler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u := auth.UserFrom(r.Context())
	if err := h.store.DeactivateMedication(r.Context(), u.ID, id); err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	h.invalidate(u.ID)
	respond.WriteSuccess(w)
}

type refillRequest struct {
	AddQuantity int `json:"addQuantity"`
}

// RefillMedication adds units to both remaining and total quantity.
// @Summary Refill medication
// @Tags medications
// @Accept json
// @Produce json
// @Param id path int true "Medication ID"
// @Param body body refillRequest true "Units added"
// @Success 200 {object} respond.Success
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/medications/{id}/refill [post]
func (h *Handler) RefillMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in refillRequest
	if !decode(w, r, &in) {
		return
	}
	if in.AddQuantity < 1 {
		h.writeErr(w, r, &model.ValidationError{Field: "addQuantity", Message: "must be at least 1"}, "Medication")
		return
	}
	u := auth.UserFrom(r.Context())
	m, err := h.store.RefillMedication(r.Context(), u.ID, id, in.AddQuantity)
	if err != nil {
		h.writeErr(w, r, err, "Medication")
		return
	}
	h.invalidate(u.ID)
	h.logger.Info("Medication refilled",
		"user_id", u.ID,
		"medication_id", id,
		"added", in.AddQuantity,
		"remaining", m.RemainingQuantity)
	respond.WriteSuccess(w)
}

// LowStock lists medications running out within daysThreshold days.
// @Summary Low-stock medications
// @Tags medications
// @Produce json
// @Param daysThreshold query int false "Horizon in days" default(7)
// @Success 200 {array} stock.Forecast
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/medications/low-stock [get]
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold, ok := daysThreshold(w, r, h.cfg.LowStockDays)
	if !ok {
		return
	}
	u := auth.UserFrom(r.Context())
	h.serveCached(w, r, cache.LowStockKey(u.ID, threshold), func() (any, error) {
		meds, err := h.store.ListMedications(r.Context(), u.ID)
		if err != nil {
			return nil, err
		}
		return stock.LowStock(meds, threshold, h.now()), nil
	}, "medications")
}

func daysThreshold(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("daysThreshold")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAMETER", "daysThreshold must be a non-negative integer")
		return 0, false
	}
	return n, true
}

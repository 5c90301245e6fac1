package handler

import (
	"net/http"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/model"
)

// ListContacts returns the user's active family contacts.
// @Summary List family contacts
// @Tags family
// @Produce json
// @Success 200 {array} model.FamilyContact
// @Router /api/v1/family [get]
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	contacts, err := h.store.ListContacts(r.Context(), u.ID)
	if err != nil {
		h.writeErr(w, r, err, "Family contacts")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, orEmpty(contacts))
}

// CreateContact binds a family contact, up to five per user.
// @Summary Add family contact
// @Tags family
// @Accept json
// @Produce json
// @Param body body model.NewContact true "Contact"
// @Success 201 {object} respond.Created
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/family [post]
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in model.NewContact
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.writeErr(w, r, err, "Family contact")
		return
	}
	u := auth.UserFrom(r.Context())
	id, err := h.store.CreateContact(r.Context(), in.Contact(u.ID))
	if err != nil {
		h.writeErr(w, r, err, "Family contact")
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, respond.Created{ID: id})
}

// UpdateContact applies a partial update.
// @Summary Update family contact
// @Tags family
// @Accept json
// @Produce json
// @Param id path int true "Contact ID"
// @Param body body model.ContactPatch true "Fields to change"
// @Success 200 {object} respond.Success
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/family/{id} [patch]
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch model.ContactPatch
	if !decode(w, r, &patch) {
		return
	}
	if err := patch.Validate(); err != nil {
		h.writeErr(w, r, err, "Family contact")
		return
	}
	u := auth.UserFrom(r.Context())
	if err := h.store.UpdateContact(r.Context(), u.ID, id, patch); err != nil {
		h.writeErr(w, r, err, "Family contact")
		return
	}
	respond.WriteSuccess(w)
}

// DeleteContact deactivates a family contact.
// @Summary Remove family contact
// @Tags family
// @Produce json
// @Param id path int true "Contact ID"
// @Success 200 {object} respond.Success
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/family/{id} [delete]
func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u := auth.UserFrom(r.Context())
	if err := h.store.DeactivateContact(r.Context(), u.ID, id); err != nil {
		h.writeErr(w, r, err, "Family contact")
		return
	}
	respond.WriteSuccess(w)
}

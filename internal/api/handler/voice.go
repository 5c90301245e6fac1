package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/albapepper/medminder/internal/api/respond"
	"github.com/albapepper/medminder/internal/llm"
	"github.com/albapepper/medminder/internal/voice"
)

// Transcribe converts a base64 recording into text. Audio is not stored.
// @Summary Transcribe speech
// @Tags voice
// @Accept json
// @Produce json
// @Param body body voice.Request true "Base64 audio"
// @Success 200 {object} voice.Result
// @Failure 400 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/voice/transcribe [post]
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if !h.voice.Enabled() {
		respond.WriteError(w, http.StatusServiceUnavailable, "VOICE_UNAVAILABLE", "Speech-to-text is not configured")
		return
	}

	// Base64 inflates by 4/3; leave room for the JSON envelope.
	limit := int64(h.cfg.VoiceMaxBytes)/3*4 + 64*1024
	var req voice.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respond.WriteError(w, http.StatusBadRequest, "AUDIO_TOO_LARGE", voice.ErrTooLarge.Error())
			return
		}
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err.Error())
		return
	}

	res, err := h.voice.Transcribe(r.Context(), req)
	switch {
	case err == nil:
		respond.WriteJSONObject(w, http.StatusOK, res)
	case errors.Is(err, voice.ErrInvalidAudio):
		respond.WriteError(w, http.StatusBadRequest, "INVALID_AUDIO", err.Error())
	case errors.Is(err, voice.ErrTooLarge):
		respond.WriteError(w, http.StatusBadRequest, "AUDIO_TOO_LARGE", err.Error())
	case errors.Is(err, voice.ErrEmpty):
		respond.WriteError(w, http.StatusUnprocessableEntity, "NO_SPEECH", "No speech was recognized, please try again")
	default:
		h.logger.Error("Transcription failed", "error", err)
		respond.WriteError(w, http.StatusBadGateway, "TRANSCRIBE_FAILED", "Speech recognition failed")
	}
}

type parseRequest struct {
	Text string `json:"text"`
}

// ParseMedication extracts medication form fields from free text.
// @Summary Parse medication description
// @Tags voice
// @Accept json
// @Produce json
// @Param body body parseRequest true "Transcript"
// @Success 200 {object} llm.MedicationDraft
// @Failure 400 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/voice/parse [post]
func (h *Handler) ParseMedication(w http.ResponseWriter, r *http.Request) {
	if !h.parser.Enabled() {
		respond.WriteError(w, http.StatusServiceUnavailable, "PARSE_UNAVAILABLE", "Text parsing is not configured")
		return
	}
	var in parseRequest
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Text) == "" {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "VALIDATION_FAILED", "text is required", "text")
		return
	}

	draft, err := h.parser.Parse(r.Context(), in.Text)
	switch {
	case err == nil:
		respond.WriteJSONObject(w, http.StatusOK, draft)
	case errors.Is(err, llm.ErrBadOutput):
		h.logger.Warn("Model returned unusable output", "error", err)
		respond.WriteError(w, http.StatusBadGateway, "PARSE_FAILED", "Could not understand the model's reply")
	default:
		h.logger.Error("Parse failed", "error", err)
		respond.WriteError(w, http.StatusBadGateway, "PARSE_FAILED", "Text parsing failed")
	}
}

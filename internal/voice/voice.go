// Package voice transcribes spoken medication descriptions. Audio is decoded,
// size-checked, transcribed, and discarded; nothing is stored.
package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

const (
	DefaultMimeType = "audio/webm"
	DefaultLanguage = "zh"
	DefaultMaxBytes = 16 * 1024 * 1024
)

var (
	ErrNotConfigured = errors.New("speech-to-text is not configured")
	ErrInvalidAudio  = errors.New("audio is not valid base64")
	ErrTooLarge      = errors.New("audio exceeds the size limit")
	ErrEmpty         = errors.New("no speech recognized")
)

// Model turns audio into text.
type Model interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error)
}

// Request is the transcription payload.
type Request struct {
	AudioBase64 string `json:"audioBase64"`
	MimeType    string `json:"mimeType"`
	Language    string `json:"language"`
}

// Result is the recognized text.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Service validates requests and delegates to a Model. A nil model means
// transcription is disabled.
type Service struct {
	model    Model
	maxBytes int
	logger   *slog.Logger
}

// NewService creates a transcription service. maxBytes <= 0 uses
// DefaultMaxBytes.
func NewService(model Model, maxBytes int, logger *slog.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{model: model, maxBytes: maxBytes, logger: logger}
}

// Enabled reports whether a model is configured.
func (s *Service) Enabled() bool { return s != nil && s.model != nil }

// Transcribe decodes and transcribes req.
func (s *Service) Transcribe(ctx context.Context, req Request) (Result, error) {
	if !s.Enabled() {
		return Result{}, ErrNotConfigured
	}
	if req.MimeType == "" {
		req.MimeType = DefaultMimeType
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}

	// Decoded size is at most 3/4 of the encoded length; reject early
	// without allocating.
	if base64.StdEncoding.DecodedLen(len(req.AudioBase64)) > s.maxBytes+2 {
		return Result{}, fmt.Errorf("%w: max %d MB", ErrTooLarge, s.maxBytes/(1024*1024))
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil || len(audio) == 0 {
		return Result{}, ErrInvalidAudio
	}
	if len(audio) > s.maxBytes {
		return Result{}, fmt.Errorf("%w: max %d MB", ErrTooLarge, s.maxBytes/(1024*1024))
	}

	requestID := uuid.NewString()
	s.logger.Debug("Transcribing audio",
		"request_id", requestID, "bytes", len(audio), "mime_type", req.MimeType, "language", req.Language)

	text, err := s.model.Transcribe(ctx, audio, req.MimeType, req.Language)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe %s: %w", requestID, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmpty
	}
	return Result{Text: text, Language: req.Language}, nil
}

// --------------------------------------------------------------------------
// Gemini
// --------------------------------------------------------------------------

const transcribePrompt = `Transcribe this recording verbatim in language %q. It is a person describing a medication and may contain drug names, dosages, and how often the medication is taken. Output only the transcript.`

// Gemini implements Model with Gemini audio understanding.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini transcriber.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(transcribePrompt, language)),
		genai.NewPartFromBytes(audio, mimeType),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// Package llm extracts structured medication fields from free text with a
// language model.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/albapepper/medminder/internal/cache"
)

var (
	ErrNotConfigured = errors.New("text parsing is not configured")
	// ErrBadOutput is returned when the model reply holds no valid JSON object.
	ErrBadOutput = errors.New("model returned malformed output")
)

const maxTokens = 1024

const systemPrompt = `You extract medication information from a user's spoken description and reply with a single JSON object and nothing else.
Use null for any field you cannot determine.
Fields:
- name: medication name (string)
- dosage: amount per dose as written, e.g. "1 tablet", "2 capsules", "5ml" (string)
- frequency: how often, as written, e.g. "three times daily" (string)
- timesPerDay: doses per day (number)
- dosagePerTime: units per dose (number)
- totalQuantity: total units on hand, if mentioned (number)
- notes: anything else relevant (string)`

// MedicationDraft is the extracted form prefill. Nil fields were not found.
type MedicationDraft struct {
	Name          *string `json:"name"`
	Dosage        *string `json:"dosage"`
	Frequency     *string `json:"frequency"`
	TimesPerDay   *int    `json:"timesPerDay"`
	DosagePerTime *int    `json:"dosagePerTime"`
	TotalQuantity *int    `json:"totalQuantity"`
	Notes         *string `json:"notes"`
}

// Completer sends one system+user exchange and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Anthropic implements Completer with the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic creates a completer for model.
func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}, nil
}

func (a *Anthropic) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// Parser turns free text into a MedicationDraft, caching by text.
type Parser struct {
	completer Completer
	cache     *cache.Cache
}

// NewParser creates a parser. completer may be nil (disabled); c may be nil.
func NewParser(completer Completer, c *cache.Cache) *Parser {
	return &Parser{completer: completer, cache: c}
}

// Enabled reports whether a model is configured.
func (p *Parser) Enabled() bool { return p != nil && p.completer != nil }

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "voice_parse:" + hex.EncodeToString(sum[:])
}

// Parse extracts medication fields from text.
func (p *Parser) Parse(ctx context.Context, text string) (*MedicationDraft, error) {
	if !p.Enabled() {
		return nil, ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	key := cacheKey(text)
	if p.cache != nil {
		if data, _, ok := p.cache.Get(key); ok {
			var draft MedicationDraft
			if err := json.Unmarshal(data, &draft); err == nil {
				return &draft, nil
			}
		}
	}

	reply, err := p.completer.Complete(ctx, systemPrompt, text)
	if err != nil {
		return nil, err
	}
	draft, raw, err := decodeDraft(reply)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Set(key, raw, cache.TTLVoiceParse)
	}
	return draft, nil
}

// decodeDraft pulls the first JSON object out of reply, tolerating code
// fences or prose around it.
func decodeDraft(reply string) (*MedicationDraft, []byte, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, nil, ErrBadOutput
	}
	raw := []byte(reply[start : end+1])
	var draft MedicationDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	normalized, err := json.Marshal(draft)
	if err != nil {
		return nil, nil, err
	}
	return &draft, normalized, nil
}

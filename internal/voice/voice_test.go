package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	text     string
	err      error
	gotBytes []byte
	gotMime  string
	gotLang  string
}

func (f *fakeModel) Transcribe(_ context.Context, audio []byte, mimeType, language string) (string, error) {
	f.gotBytes, f.gotMime, f.gotLang = audio, mimeType, language
	return f.text, f.err
}

func newService(m Model, max int) *Service {
	return NewService(m, max, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTranscribe_Defaults(t *testing.T) {
	m := &fakeModel{text: "  aspirin one tablet twice a day \n"}
	s := newService(m, 0)

	res, err := s.Transcribe(context.Background(), Request{AudioBase64: base64.StdEncoding.EncodeToString([]byte("RIFF"))})
	require.NoError(t, err)
	assert.Equal(t, Result{Text: "aspirin one tablet twice a day", Language: "zh"}, res)
	assert.Equal(t, []byte("RIFF"), m.gotBytes)
	assert.Equal(t, "audio/webm", m.gotMime)
}

func TestTranscribe_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := newService(nil, 0).Transcribe(ctx, Request{AudioBase64: "AAAA"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = newService(&fakeModel{text: "x"}, 0).Transcribe(ctx, Request{AudioBase64: "not base64!"})
	assert.ErrorIs(t, err, ErrInvalidAudio)

	big := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", 2048)))
	_, err = newService(&fakeModel{text: "x"}, 1024).Transcribe(ctx, Request{AudioBase64: big})
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = newService(&fakeModel{text: "   "}, 0).Transcribe(ctx, Request{AudioBase64: "AAAA"})
	assert.ErrorIs(t, err, ErrEmpty)

	upstream := errors.New("quota exceeded")
	_, err = newService(&fakeModel{err: upstream}, 0).Transcribe(ctx, Request{AudioBase64: "AAAA"})
	assert.ErrorIs(t, err, upstream)
}

func TestTranscribe_ExactLimitAccepted(t *testing.T) {
	m := &fakeModel{text: "ok"}
	audio := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", 1024)))
	_, err := newService(m, 1024).Transcribe(context.Background(), Request{AudioBase64: audio, Language: "en"})
	require.NoError(t, err)
	assert.Len(t, m.gotBytes, 1024)
	assert.Equal(t, "en", m.gotLang)
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "gemini-2.0-flash")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

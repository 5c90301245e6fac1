package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/albapepper/medminder/internal/api/handler"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/cache"
	"github.com/albapepper/medminder/internal/config"
	"github.com/albapepper/medminder/internal/email"
	"github.com/albapepper/medminder/internal/llm"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/store/sqlite"
	"github.com/albapepper/medminder/internal/voice"
)

func init() {
	auth.HashCost = bcrypt.MinCost
}

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (f *fakeSender) Send(_ context.Context, s *model.EmailSettings, msg email.Message) error {
	if s == nil || !s.IsEnabled {
		return email.ErrNotConfigured
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

type fakeModel struct{}

func (fakeModel) Transcribe(context.Context, []byte, string, string) (string, error) {
	return "aspirin one tablet twice a day", nil
}

type fakeCompleter struct{ reply string }

func (f fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return f.reply, nil
}

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	sender *fakeSender
}

var testNow = time.Date(2026, 3, 10, 8, 1, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(st.Close)

	c := cache.New(true)
	t.Cleanup(c.Close)

	cfg := &config.Config{
		StoreDriver:      config.DriverSQLite,
		CORSAllowOrigins: []string{"http://localhost:5173"},
		SessionSecret:    "test-secret",
		SessionTTL:       time.Hour,
		Location:         time.UTC,
		LowStockDays:     7,
		ReminderWindow:   2 * time.Minute,
		VoiceMaxBytes:    1024,
		CacheEnabled:     true,
	}
	authn := auth.NewAuthenticator(auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL), st, logger, false)
	sender := &fakeSender{}
	h := handler.New(handler.Deps{
		Store:  st,
		Cache:  c,
		Config: cfg,
		Auth:   authn,
		Sender: sender,
		Voice:  voice.NewService(fakeModel{}, cfg.VoiceMaxBytes, logger),
		Parser: llm.NewParser(fakeCompleter{reply: `{"name":"Aspirin","timesPerDay":2}`}, c),
		Logger: logger,
		Now:    func() time.Time { return testNow },
	})

	srv := httptest.NewServer(NewRouter(h, authn, cfg, logger))
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, sender: sender}
}

func (s *testServer) do(method, path, token string, body any, header ...string) *http.Response {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decodeBody[map[string]map[string]string](t, resp)
	return body["error"]["code"]
}

func (s *testServer) register(username string) string {
	s.t.Helper()
	resp := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "password": "pw-" + username, "name": username,
	})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	return decodeBody[handler.SessionResponse](s.t, resp).Token
}

func (s *testServer) createMedication(token string, remaining int) int64 {
	s.t.Helper()
	resp := s.do(http.MethodPost, "/api/v1/medications", token, map[string]any{
		"name":              "Aspirin",
		"dosage":            "1 tablet",
		"frequency":         "twice daily",
		"timesPerDay":       2,
		"reminderTimes":     []string{"08:00", "20:00"},
		"totalQuantity":     30,
		"remainingQuantity": remaining,
		"startDate":         "2026-01-01T00:00:00Z",
	})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	return decodeBody[map[string]int64](s.t, resp)["id"]
}

func TestHealthAndDocs(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Process-Time"))

	resp = s.do(http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/docs/doc.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "3.0.3", doc["openapi"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")

	resp := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, resp))

	resp = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "pw-alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/api/auth/me", nil)
	req.AddCookie(cookie)
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	user := decodeBody[model.User](t, me)
	assert.Equal(t, "alice", user.Username)

	resp = s.do(http.MethodGet, "/api/auth/me", "", nil)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "null", string(bytes.TrimSpace(body)))

	resp = s.do(http.MethodGet, "/api/v1/medications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp))
}

func TestMedicationsAndLogs(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")
	id := s.createMedication(token, 10)
	path := "/api/v1/medications/" + strconv.FormatInt(id, 10)

	resp := s.do(http.MethodGet, "/api/v1/medications", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	list := decodeBody[[]map[string]any](t, resp)
	require.Len(t, list, 1)
	assert.EqualValues(t, 2, list[0]["dailyUsage"])
	assert.EqualValues(t, 5, list[0]["daysRemaining"])

	resp = s.do(http.MethodGet, "/api/v1/medications", token, nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/medications/low-stock?daysThreshold=7", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]map[string]any](t, resp), 1)

	resp = s.do(http.MethodGet, "/api/v1/medications/low-stock?daysThreshold=3", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]map[string]any](t, resp))

	// A taken dose draws down stock and invalidates the cached list.
	resp = s.do(http.MethodPost, "/api/v1/logs", token, map[string]any{
		"medicationId": id, "takenAt": testNow, "scheduledTime": "08:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/medications", token, nil, "If-None-Match", etag)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.EqualValues(t, 9, decodeBody[[]map[string]any](t, resp)[0]["remainingQuantity"])

	resp = s.do(http.MethodPost, "/api/v1/logs", token, map[string]any{
		"medicationId": id, "takenAt": testNow, "scheduledTime": "20:00", "quantity": 50,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", errorCode(t, resp))

	resp = s.do(http.MethodPost, "/api/v1/logs", token, map[string]any{
		"medicationId": 999, "takenAt": testNow, "scheduledTime": "08:00",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/logs/today", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]model.MedicationLog](t, resp), 1)

	resp = s.do(http.MethodGet, "/api/v1/logs?medicationId="+strconv.FormatInt(id, 10)+"&startTs=0", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]model.MedicationLog](t, resp), 1)

	resp = s.do(http.MethodGet, "/api/v1/logs?startTs=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Refill, patch, delete.
	resp = s.do(http.MethodPost, path+"/refill", token, map[string]int{"addQuantity": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = s.do(http.MethodPost, path+"/refill", token, map[string]int{"addQuantity": 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodPatch, path, token, map[string]any{"name": "Aspirin 100mg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "Aspirin 100mg", got["name"])
	assert.EqualValues(t, 29, got["remainingQuantity"])
	assert.EqualValues(t, 50, got["totalQuantity"])

	other := s.register("mallory")
	resp = s.do(http.MethodGet, path, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(http.MethodGet, "/api/v1/medications", token, nil)
	assert.Empty(t, decodeBody[[]map[string]any](t, resp))
}

func TestCreateMedication_Validation(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")

	resp := s.do(http.MethodPost, "/api/v1/medications", token, map[string]any{
		"name": "Aspirin", "dosage": "1", "frequency": "daily", "timesPerDay": 1,
		"reminderTimes": []string{"25:00"}, "totalQuantity": 1, "startDate": "2026-01-01T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, resp))

	resp = s.do(http.MethodPost, "/api/v1/medications", token, "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFamilyEmailAndNotifications(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")
	s.createMedication(token, 10)

	for i := 0; i < model.MaxFamilyContacts; i++ {
		resp := s.do(http.MethodPost, "/api/v1/family", token, map[string]any{
			"contactName": "Contact " + strconv.Itoa(i), "contactEmail": "c" + strconv.Itoa(i) + "@example.com",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := s.do(http.MethodPost, "/api/v1/family", token, map[string]any{
		"contactName": "One too many", "contactEmail": "extra@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "CONTACT_LIMIT", errorCode(t, resp))

	resp = s.do(http.MethodGet, "/api/v1/email-settings", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeBody[map[string]any](t, resp)["configured"])

	resp = s.do(http.MethodPut, "/api/v1/email-settings", token, map[string]any{
		"smtpHost": "smtp.example.com", "smtpUser": "alice@example.com", "smtpPass": "secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/email-settings", token, nil)
	status := decodeBody[map[string]any](t, resp)
	assert.Equal(t, true, status["configured"])
	assert.EqualValues(t, 465, status["smtpPort"])
	assert.NotContains(t, status, "smtpPass")

	resp = s.do(http.MethodPost, "/api/v1/notifications/check", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 1, res["lowStockCount"])
	assert.Equal(t, 1+model.MaxFamilyContacts, res["notificationsSent"])
	assert.Equal(t, model.MaxFamilyContacts, res["emailsSent"])
	assert.Len(t, s.sender.sent, model.MaxFamilyContacts)

	resp = s.do(http.MethodGet, "/api/v1/notifications", token, nil)
	inbox := decodeBody[[]model.Notification](t, resp)
	require.Len(t, inbox, 1+model.MaxFamilyContacts)

	resp = s.do(http.MethodPost, "/api/v1/notifications/"+strconv.FormatInt(inbox[0].ID, 10)+"/read", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(http.MethodPost, "/api/v1/notifications/99999/read", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/email-settings/test-saved", token, map[string]string{"email": "me@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, email.ConfigTestSubject, s.sender.sent[len(s.sender.sent)-1].Subject)

	resp = s.do(http.MethodPost, "/api/v1/email-settings/test", token, map[string]any{
		"smtpHost": "smtp.example.com", "smtpUser": "u", "smtpPass": "p", "testEmail": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodDelete, "/api/v1/email-settings", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(http.MethodPost, "/api/v1/email-settings/test-saved", token, map[string]string{"email": "me@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDueReminders_FireOnce(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")
	s.createMedication(token, 10)

	resp := s.do(http.MethodGet, "/api/v1/reminders/due", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	due := decodeBody[handler.DueResponse](t, resp)
	require.Len(t, due.Reminders, 1)
	assert.Equal(t, "08:00", due.Reminders[0].Time)
	require.NotNil(t, due.Summary)
	assert.Equal(t, "Time to take your medication!", due.Summary.Title)

	resp = s.do(http.MethodGet, "/api/v1/reminders/due", token, nil)
	due = decodeBody[handler.DueResponse](t, resp)
	assert.Empty(t, due.Reminders)
	assert.Nil(t, due.Summary)
}

func TestVoice(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")

	resp := s.do(http.MethodPost, "/api/v1/voice/transcribe", token, map[string]string{"audioBase64": "UklGRg=="})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[voice.Result](t, resp)
	assert.Equal(t, "aspirin one tablet twice a day", res.Text)
	assert.Equal(t, voice.DefaultLanguage, res.Language)

	resp = s.do(http.MethodPost, "/api/v1/voice/transcribe", token, map[string]string{"audioBase64": "%%%"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/voice/parse", token, map[string]string{"text": "aspirin twice a day"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	draft := decodeBody[llm.MedicationDraft](t, resp)
	require.NotNil(t, draft.Name)
	assert.Equal(t, "Aspirin", *draft.Name)
	assert.Nil(t, draft.Dosage)

	resp = s.do(http.MethodPost, "/api/v1/voice/parse", token, map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

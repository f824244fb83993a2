package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/handler"
	"github.com/unclebandit/marketing-dashboard/internal/queue"
)

type fakeUnsubscriber struct {
	valid map[string]bool
	err   error
}

func (f *fakeUnsubscriber) Unsubscribe(_ context.Context, token string) error {
	if f.err != nil {
		return f.err
	}
	if !f.valid[token] {
		return appErrors.Validation("token", "this unsubscribe link is invalid or has already been used")
	}
	f.valid[token] = false
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type recorder struct {
	mu     sync.Mutex
	bodies []string
}

func (r *recorder) handle(_ context.Context, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, string(body))
	return nil
}

func router(h *handler.PublicHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Get("/unsubscribe/{token}", h.UnsubscribePage)
	r.Post("/unsubscribe/{token}", h.Unsubscribe)
	r.Post("/webhooks/email", h.EmailWebhook)
	return r
}

func serve(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	rr := serve(router(handler.NewPublicHandler(nil, nil, fakePinger{}, "", nil)), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = serve(router(handler.NewPublicHandler(nil, nil, fakePinger{err: errors.New("down")}, "", nil)), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestUnsubscribe(t *testing.T) {
	contacts := &fakeUnsubscriber{valid: map[string]bool{"tok-1": true, "tok-2": true}}
	r := router(handler.NewPublicHandler(contacts, nil, nil, "", nil))

	t.Run("link page", func(t *testing.T) {
		rr := serve(r, http.MethodGet, "/unsubscribe/tok-1", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rr.Body.String(), "You have been unsubscribed")

		rr = serve(r, http.MethodGet, "/unsubscribe/tok-1", "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "invalid or has already been used")
	})

	t.Run("one click", func(t *testing.T) {
		rr := serve(r, http.MethodPost, "/unsubscribe/tok-2", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true,"data":{"unsubscribed":true}}`, rr.Body.String())

		rr = serve(r, http.MethodPost, "/unsubscribe/unknown", "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error":"validation"`)
	})

	t.Run("store failure hides details", func(t *testing.T) {
		r := router(handler.NewPublicHandler(&fakeUnsubscriber{err: appErrors.Internal("unsubscribe", errors.New("conn reset"))}, nil, nil, "", nil))
		rr := serve(r, http.MethodGet, "/unsubscribe/tok", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "conn reset")
	})
}

func TestEmailWebhook(t *testing.T) {
	q := queue.NewInMemoryQueue(0, nil)
	rec := &recorder{}
	require.NoError(t, q.Subscribe(queue.TopicEmailEvents, rec.handle))
	r := router(handler.NewPublicHandler(nil, q, nil, "s3cret", nil))

	event := `{"type":"email.opened","created_at":"2026-01-02T03:04:05Z","data":{"email_id":"msg-1","to":["a@example.com"]}}`
	secret := map[string]string{handler.WebhookSecretHeader: "s3cret"}

	t.Run("wrong secret", func(t *testing.T) {
		rr := serve(r, http.MethodPost, "/webhooks/email", event, map[string]string{handler.WebhookSecretHeader: "guess"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		rr = serve(r, http.MethodPost, "/webhooks/email", event, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed event", func(t *testing.T) {
		rr := serve(r, http.MethodPost, "/webhooks/email", `{"type":"email.opened"}`, secret)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		rr = serve(r, http.MethodPost, "/webhooks/email", `not json`, secret)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("queued", func(t *testing.T) {
		rr := serve(r, http.MethodPost, "/webhooks/email", event, secret)
		assert.Equal(t, http.StatusAccepted, rr.Code)
		q.Wait()
		rec.mu.Lock()
		defer rec.mu.Unlock()
		require.Len(t, rec.bodies, 1)
		assert.JSONEq(t, event, rec.bodies[0])
	})

	t.Run("empty configured secret rejects everything", func(t *testing.T) {
		r := router(handler.NewPublicHandler(nil, q, nil, "", nil))
		rr := serve(r, http.MethodPost, "/webhooks/email", event, map[string]string{handler.WebhookSecretHeader: ""})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

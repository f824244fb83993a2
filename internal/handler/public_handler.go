package handler

import (
	"context"
	"crypto/subtle"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/marketing-dashboard/internal/controller"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/queue"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

// WebhookSecretHeader carries the shared secret configured on the provider side.
const WebhookSecretHeader = "X-Webhook-Secret"

const maxWebhookBytes = 256 << 10

type Unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// PublicHandler serves the unauthenticated endpoints: health, unsubscribe links and provider webhooks.
type PublicHandler struct {
	Contacts      Unsubscriber
	Events        queue.Queue
	DB            Pinger
	WebhookSecret string
	Log           *slog.Logger
}

func NewPublicHandler(contacts Unsubscriber, events queue.Queue, db Pinger, webhookSecret string, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{
		Contacts:      contacts,
		Events:        events,
		DB:            db,
		WebhookSecret: webhookSecret,
		Log:           logger.With("module", "public"),
	}
}

func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			h.Log.Error("health check failed", "event", "health.db_unreachable", "error", err)
			controller.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Unsubscribe</title></head>
<body><p>{{.}}</p></body></html>
`))

// UnsubscribePage handles the link in the email footer and answers with a small HTML page.
func (h *PublicHandler) UnsubscribePage(w http.ResponseWriter, r *http.Request) {
	msg := "You have been unsubscribed and will no longer receive marketing emails."
	status := http.StatusOK
	if err := h.Contacts.Unsubscribe(r.Context(), chi.URLParam(r, "token")); err != nil {
		status = http.StatusBadRequest
		msg = "This unsubscribe link is invalid or has already been used."
		if appErrors.KindOf(err) == appErrors.KindInternal {
			h.Log.Error("unsubscribe failed", "event", "contact.unsubscribe_failed", "error", err)
			status = http.StatusInternalServerError
			msg = "Something went wrong, please try again later."
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = unsubscribePage.Execute(w, msg)
}

// Unsubscribe is the one-click (List-Unsubscribe-Post) variant.
func (h *PublicHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.Contacts.Unsubscribe(r.Context(), chi.URLParam(r, "token")); err != nil {
		controller.Fail(w, r, err)
		return
	}
	controller.Success(w, http.StatusOK, map[string]bool{"unsubscribed": true})
}

// EmailWebhook checks the shared secret, validates the event and queues it for the worker.
func (h *PublicHandler) EmailWebhook(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(WebhookSecretHeader)
	if h.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) != 1 {
		controller.Fail(w, r, appErrors.Unauthorized("invalid webhook secret"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		controller.Fail(w, r, appErrors.Validation("body", "unreadable payload"))
		return
	}
	ev, err := service.DecodeEmailEvent(body)
	if err != nil {
		controller.Fail(w, r, err)
		return
	}
	if err := h.Events.Publish(r.Context(), queue.TopicEmailEvents, body); err != nil {
		controller.Fail(w, r, appErrors.Internal("publish email event", err))
		return
	}
	h.Log.Debug("email event queued", "event", "email_event.queued", "type", ev.Type, "message_id", ev.Data.EmailID)
	controller.Success(w, http.StatusAccepted, map[string]bool{"queued": true})
}

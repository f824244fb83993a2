package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/metrics"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/queue"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

// EmailEvent is one provider webhook delivery, e.g. {"type":"email.opened","data":{"email_id":"..."}}.
type EmailEvent struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      struct {
		EmailID string   `json:"email_id"`
		To      []string `json:"to"`
	} `json:"data"`
}

// LogStatus maps the event type onto a send-record status. Unknown types report false.
func (e EmailEvent) LogStatus() (model.LogStatus, bool) {
	status := model.LogStatus(strings.TrimPrefix(e.Type, "email."))
	if _, ok := model.LogStampColumns[status]; !ok {
		return "", false
	}
	return status, true
}

// DecodeEmailEvent parses and checks one webhook body.
func DecodeEmailEvent(body []byte) (*EmailEvent, error) {
	var ev EmailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, appErrors.Validation("body", "malformed event payload")
	}
	if ev.Type == "" {
		return nil, appErrors.Validation("type", "is required")
	}
	if ev.Data.EmailID == "" {
		return nil, appErrors.Validation("data.email_id", "is required")
	}
	return &ev, nil
}

var (
	eventStats = map[model.LogStatus]model.CampaignStat{
		model.LogSent:      model.StatSent,
		model.LogDelivered: model.StatDelivered,
		model.LogOpened:    model.StatOpened,
		model.LogClicked:   model.StatClicked,
		model.LogBounced:   model.StatBounced,
	}
	eventEngagement = map[model.LogStatus]model.EngagementLevel{
		model.LogSent:    model.EngagementSent,
		model.LogOpened:  model.EngagementOpened,
		model.LogClicked: model.EngagementClicked,
	}
	eventContactStatus = map[model.LogStatus]model.ContactStatus{
		model.LogBounced:    model.ContactBounced,
		model.LogComplained: model.ContactComplained,
	}
)

// EventService applies provider events to send records, campaign counters and contacts.
type EventService struct {
	LogRepo      repository.CampaignLogRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	Log          *slog.Logger
}

func NewEventService(
	logs repository.CampaignLogRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	logger *slog.Logger,
) *EventService {
	return &EventService{LogRepo: logs, CampaignRepo: campaigns, ContactRepo: contacts, Log: moduleLogger(logger, "events")}
}

// ApplyEvent records one event. Events for messages that were not sent by a campaign
// still update the recipient contact.
func (s *EventService) ApplyEvent(ctx context.Context, ev *EmailEvent) error {
	status, ok := ev.LogStatus()
	if !ok {
		s.Log.Debug("event ignored", "event", "email_event.ignored", "type", ev.Type)
		return nil
	}

	entry, err := s.LogRepo.ApplyEvent(ctx, ev.Data.EmailID, status)
	if err != nil {
		return appErrors.Internal("apply event to log", err)
	}

	recipient := ""
	if len(ev.Data.To) > 0 {
		recipient = model.NormalizeEmail(ev.Data.To[0])
	}
	templateCode := ""
	if entry != nil {
		recipient = entry.ContactEmail
		if stat, ok := eventStats[status]; ok {
			if err := s.CampaignRepo.IncrementStat(ctx, entry.CampaignID, stat); err != nil && !appErrors.Is(err, appErrors.KindNotFound) {
				return appErrors.Internal("increment campaign stat", err)
			}
		}
		if c, err := s.CampaignRepo.GetByID(ctx, entry.CampaignID); err == nil && c.TemplateCode != nil {
			templateCode = *c.TemplateCode
		}
	}

	if recipient != "" {
		if level, ok := eventEngagement[status]; ok {
			if _, err := s.ContactRepo.UpdateEngagement(ctx, recipient, level, templateCode); err != nil {
				return appErrors.Internal("update engagement", err)
			}
		}
		if cs, ok := eventContactStatus[status]; ok {
			if err := s.ContactRepo.SetStatusByEmail(ctx, recipient, cs); err != nil {
				return appErrors.Internal("update contact status", err)
			}
		}
	}

	metrics.RecordEmailEvent(string(status))
	s.Log.Info("event applied", "event", "email_event.applied", "type", status, "message_id", ev.Data.EmailID, "campaign_log", entry != nil)
	return nil
}

// Handle is the queue handler for TopicEmailEvents.
func (s *EventService) Handle(ctx context.Context, body []byte) error {
	ev, err := DecodeEmailEvent(body)
	if err != nil {
		s.Log.Warn("dropping malformed event", "event", "email_event.malformed", "error", err)
		return err
	}
	return s.ApplyEvent(ctx, ev)
}

// Subscribe attaches the service to the event topic of q.
func (s *EventService) Subscribe(q queue.Queue) error {
	return q.Subscribe(queue.TopicEmailEvents, s.Handle)
}

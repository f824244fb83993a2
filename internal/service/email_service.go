// internal/service/email_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/unclebandit/marketing-dashboard/internal/email"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/metrics"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

// BatchSize is the largest batch handed to the provider in one call.
const BatchSize = 100

type EmailService struct {
	Provider      email.Provider
	Templates     *TemplateService
	CampaignRepo  repository.CampaignRepositoryInterface
	LogRepo       repository.CampaignLogRepositoryInterface
	TemplateRepo  repository.TemplateRepositoryInterface
	DefaultFrom   string
	PublicBaseURL string
	Log           *slog.Logger
}

func NewEmailService(
	provider email.Provider,
	templates *TemplateService,
	campaigns repository.CampaignRepositoryInterface,
	logs repository.CampaignLogRepositoryInterface,
	defaultFrom, publicBaseURL string,
	logger *slog.Logger,
) *EmailService {
	s := &EmailService{
		Provider:      provider,
		Templates:     templates,
		CampaignRepo:  campaigns,
		LogRepo:       logs,
		DefaultFrom:   defaultFrom,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		Log:           moduleLogger(logger, "email"),
	}
	if templates != nil {
		s.TemplateRepo = templates.Repo
	}
	return s
}

// SendRequest is a one-off send. To, Names and Cc are comma-separated lists;
// Names pairs with To by position.
type SendRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	Names          string `json:"names,omitempty"`
	Cc             string `json:"cc,omitempty"`
	Subject        string `json:"subject"`
	HTML           string `json:"html"`
	Text           string `json:"text,omitempty"`
	SaveAsTemplate bool   `json:"save_as_template,omitempty"`
}

type RecipientResult struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r RecipientResult) OK() bool { return r.Error == "" }

type SendResult struct {
	Sent         int               `json:"sent"`
	Failed       int               `json:"failed"`
	Results      []RecipientResult `json:"results"`
	TemplateCode string            `json:"template_code,omitempty"`
}

func (r *SendResult) add(rr RecipientResult) {
	if rr.OK() {
		r.Sent++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, rr)
}

type CampaignSendResult struct {
	CampaignID string `json:"campaign_id"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

type recipient struct {
	Email string
	Name  string
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseRecipients pairs addresses with names by index. Missing trailing names are empty.
func parseRecipients(to, names string) []recipient {
	addrs := splitList(to)
	var nameList []string
	if strings.TrimSpace(names) != "" {
		nameList = strings.Split(names, ",")
	}
	out := make([]recipient, len(addrs))
	for i, a := range addrs {
		out[i] = recipient{Email: a}
		if i < len(nameList) {
			out[i].Name = strings.TrimSpace(nameList[i])
		}
	}
	return out
}

var fromNamedPattern = regexp.MustCompile(`^([^<>]+?)\s*<([^<>]+)>$`)

// ValidFrom accepts "email@domain" or "Display Name <email@domain>".
func ValidFrom(from string) bool {
	from = strings.TrimSpace(from)
	if m := fromNamedPattern.FindStringSubmatch(from); m != nil {
		return ValidEmail(m[2])
	}
	return ValidEmail(from)
}

func (s *EmailService) validateSend(req SendRequest, recipients []recipient, cc []string) error {
	var errs appErrors.ValidationErrors
	if !ValidFrom(req.From) {
		errs = append(errs, appErrors.FieldError{Field: "from", Value: req.From, Message: "must be an email or 'Name <email>'"})
	}
	if len(recipients) == 0 {
		errs = append(errs, appErrors.FieldError{Field: "to", Message: "at least one recipient is required"})
	}
	for i, r := range recipients {
		if !ValidEmail(r.Email) {
			errs = append(errs, appErrors.FieldError{Row: i + 1, Field: "to", Value: r.Email, Message: "invalid email address"})
		}
	}
	for i, c := range cc {
		if !ValidEmail(c) {
			errs = append(errs, appErrors.FieldError{Row: i + 1, Field: "cc", Value: c, Message: "invalid email address"})
		}
	}
	if strings.TrimSpace(req.Subject) == "" {
		errs = append(errs, appErrors.FieldError{Field: "subject", Message: "is required"})
	}
	if strings.TrimSpace(req.HTML) == "" {
		errs = append(errs, appErrors.FieldError{Field: "html", Message: "is required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func renderMessage(from string, cc []string, subject, html, text string, data map[string]string, to string) email.Message {
	m := email.Message{
		From:    from,
		To:      []string{to},
		Cc:      cc,
		Subject: RenderTemplate(subject, data),
		HTML:    RenderTemplate(html, data),
	}
	if text != "" {
		m.Text = RenderTemplate(text, data)
	}
	return m
}

// Send validates every address before calling the provider; one bad address fails the whole request.
// One recipient goes through Send, several through SendBatch in chunks of BatchSize.
func (s *EmailService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.From) == "" {
		req.From = s.DefaultFrom
	}
	recipients := parseRecipients(req.To, req.Names)
	cc := splitList(req.Cc)
	if err := s.validateSend(req, recipients, cc); err != nil {
		return nil, err
	}

	result := &SendResult{Results: make([]RecipientResult, 0, len(recipients))}
	if req.SaveAsTemplate && s.Templates != nil {
		code, err := s.Templates.SaveContent(ctx, req.Subject, req.HTML)
		if err != nil {
			s.Log.Warn("save as template failed", "event", "email.save_template_failed", "error", err)
		} else {
			result.TemplateCode = code
		}
	}

	if len(recipients) == 1 {
		r := recipients[0]
		msg := renderMessage(req.From, cc, req.Subject, req.HTML, req.Text, RecipientData(r.Email, r.Name), r.Email)
		rr := RecipientResult{Email: r.Email, Name: r.Name}
		id, err := s.Provider.Send(ctx, msg)
		if err != nil {
			rr.Error = err.Error()
		} else {
			rr.MessageID = id
		}
		result.add(rr)
	} else {
		for start := 0; start < len(recipients); start += BatchSize {
			end := min(start+BatchSize, len(recipients))
			chunk := recipients[start:end]
			msgs := make([]email.Message, len(chunk))
			for i, r := range chunk {
				msgs[i] = renderMessage(req.From, cc, req.Subject, req.HTML, req.Text, RecipientData(r.Email, r.Name), r.Email)
			}
			for i, br := range s.sendBatch(ctx, msgs) {
				rr := RecipientResult{Email: chunk[i].Email, Name: chunk[i].Name, MessageID: br.ID}
				if br.Err != nil {
					rr.Error = br.Err.Error()
				}
				result.add(rr)
			}
		}
	}

	metrics.RecordEmails("sent", result.Sent)
	metrics.RecordEmails("failed", result.Failed)
	s.Log.Info("emails sent", "event", "email.sent", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

// sendBatch always returns one result per message. A transport error, or a response whose
// length does not match the submission, fails every message of the batch.
func (s *EmailService) sendBatch(ctx context.Context, msgs []email.Message) []email.BatchResult {
	results, err := s.Provider.SendBatch(ctx, msgs)
	if err == nil && len(results) != len(msgs) {
		err = fmt.Errorf("provider returned %d results for %d messages", len(results), len(msgs))
	}
	if err != nil {
		s.Log.Error("batch send failed", "event", "email.batch_failed", "size", len(msgs), "error", err)
		failed := make([]email.BatchResult, len(msgs))
		for i := range failed {
			failed[i] = email.BatchResult{Err: err}
		}
		return failed
	}
	return results
}

func stalled(queued []model.QueuedRecipient, seen map[string]bool) bool {
	for _, q := range queued {
		if seen[q.LogID] {
			return true
		}
	}
	return false
}

func (s *EmailService) unsubscribeURL(token string) string {
	return s.PublicBaseURL + "/unsubscribe/" + token
}

// SendCampaign delivers every queued log row of a sending campaign using its template.
// Rows leave the queued state whatever the outcome, so each loop sees fresh rows.
func (s *EmailService) SendCampaign(ctx context.Context, campaignID, from string) (*CampaignSendResult, error) {
	if strings.TrimSpace(from) == "" {
		from = s.DefaultFrom
	}
	if !ValidFrom(from) {
		return nil, appErrors.Validation("from", "must be an email or 'Name <email>'")
	}

	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignSending {
		return nil, appErrors.StateGuard("cannot send a campaign in status %s (allowed from: %s)", c.Status, model.CampaignSending)
	}
	if c.TemplateCode == nil {
		return nil, appErrors.StateGuard("campaign has no template")
	}
	tpl, err := s.TemplateRepo.GetByCode(ctx, *c.TemplateCode)
	if err != nil {
		return nil, err
	}

	result := &CampaignSendResult{CampaignID: campaignID}
	seen := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		queued, err := s.LogRepo.ListQueued(ctx, campaignID, BatchSize)
		if err != nil {
			return result, appErrors.Internal("list queued recipients", err)
		}
		if len(queued) == 0 {
			break
		}
		// A row that stays queued after being marked means writes are failing; stop instead of resending.
		if stalled(queued, seen) {
			s.Log.Error("queued rows not advancing", "event", "campaign.send_stalled", "campaign_id", campaignID)
			break
		}

		msgs := make([]email.Message, len(queued))
		for i, q := range queued {
			seen[q.LogID] = true
			name := model.Contact{Email: q.Email, FirstName: q.FirstName, LastName: q.LastName}.DisplayName()
			data := RecipientData(q.Email, name)
			data["unsubscribe_url"] = s.unsubscribeURL(q.UnsubscribeToken)
			msgs[i] = renderMessage(from, nil, tpl.Subject, tpl.HTMLBody, "", data, q.Email)
		}

		for i, br := range s.sendBatch(ctx, msgs) {
			q := queued[i]
			if br.Err != nil {
				result.Failed++
				if err := s.LogRepo.MarkFailed(ctx, q.LogID, br.Err.Error()); err != nil {
					s.Log.Error("mark failed", "event", "campaign.log_write_failed", "log_id", q.LogID, "error", err)
				}
				continue
			}
			result.Sent++
			if err := s.LogRepo.MarkSent(ctx, q.LogID, br.ID); err != nil {
				s.Log.Error("mark sent", "event", "campaign.log_write_failed", "log_id", q.LogID, "error", err)
			}
		}
	}

	metrics.RecordEmails("sent", result.Sent)
	metrics.RecordEmails("failed", result.Failed)
	s.Log.Info("campaign batch sent", "event", "campaign.sent", "campaign_id", campaignID, "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

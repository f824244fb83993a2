package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendClient sends through the Resend API.
type ResendClient struct {
	client *resend.Client
}

// NewResendClient builds a client for apiKey. baseURL overrides the API host
// when set, which is how tests and Resend-compatible relays are reached.
func NewResendClient(apiKey, baseURL string) (*ResendClient, error) {
	c := resend.NewClient(apiKey)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		c.BaseURL = u
	}
	return &ResendClient{client: c}, nil
}

func toResend(m Message) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    m.From,
		To:      m.To,
		Cc:      m.Cc,
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.Text,
	}
}

func (c *ResendClient) Send(ctx context.Context, m Message) (string, error) {
	sent, err := c.client.Emails.SendWithContext(ctx, toResend(m))
	if err != nil {
		return "", fmt.Errorf("email provider: %w", err)
	}
	return sent.Id, nil
}

// SendBatch submits every message in one call. The API answers with ids in request order.
func (c *ResendClient) SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyBatch
	}
	reqs := make([]*resend.SendEmailRequest, len(msgs))
	for i, m := range msgs {
		reqs[i] = toResend(m)
	}
	out, err := c.client.Batch.SendWithContext(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("email provider: %w", err)
	}
	results := make([]BatchResult, len(out.Data))
	for i, d := range out.Data {
		results[i] = BatchResult{ID: d.Id}
	}
	return results, nil
}

var _ Provider = (*ResendClient)(nil)

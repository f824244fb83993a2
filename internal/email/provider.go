package email

import (
	"context"
	"errors"
)

// Message is one fully rendered email.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// BatchResult is the outcome of one message of a batch, in submission order.
type BatchResult struct {
	ID  string
	Err error
}

// Provider delivers rendered messages. Implementations never retry.
type Provider interface {
	Send(ctx context.Context, m Message) (string, error)
	SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error)
}

var ErrEmptyBatch = errors.New("email: empty batch")

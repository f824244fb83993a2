package model

import "time"

// EmailTemplate is keyed by a human-assigned code that never changes after creation.
type EmailTemplate struct {
	Code        string    `db:"code" json:"code"`
	Subject     string    `db:"subject" json:"subject"`
	HTMLBody    string    `db:"html_body" json:"html_body"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

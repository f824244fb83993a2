// internal/model/contact.go
package model

import (
	"strings"
	"time"
)

type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
)

func (s ContactStatus) Valid() bool {
	switch s {
	case ContactActive, ContactUnsubscribed, ContactBounced, ContactComplained:
		return true
	}
	return false
}

// EngagementLevel is the strongest interaction ever recorded for a contact.
type EngagementLevel string

const (
	EngagementNone    EngagementLevel = "none"
	EngagementSent    EngagementLevel = "sent"
	EngagementOpened  EngagementLevel = "opened"
	EngagementClicked EngagementLevel = "clicked"
)

// EngagementLevels is ordered by rank.
var EngagementLevels = []EngagementLevel{EngagementNone, EngagementSent, EngagementOpened, EngagementClicked}

// Rank orders levels none=0 < sent=1 < opened=2 < clicked=3. Unknown levels rank as none.
func (l EngagementLevel) Rank() int {
	for i, v := range EngagementLevels {
		if v == l {
			return i
		}
	}
	return 0
}

func (l EngagementLevel) Valid() bool {
	for _, v := range EngagementLevels {
		if v == l {
			return true
		}
	}
	return false
}

// UpgradeEngagement never lets a level regress.
func UpgradeEngagement(current, next EngagementLevel) EngagementLevel {
	if next.Rank() > current.Rank() {
		return next
	}
	return current
}

type Contact struct {
	ID                string          `db:"id" json:"id"`
	Email             string          `db:"email" json:"email"`
	FirstName         *string         `db:"first_name" json:"first_name,omitempty"`
	LastName          *string         `db:"last_name" json:"last_name,omitempty"`
	Source            string          `db:"source" json:"source"`
	Tags              []string        `db:"tags" json:"tags"`
	Status            ContactStatus   `db:"status" json:"status"`
	EngagementLevel   EngagementLevel `db:"engagement_level" json:"engagement_level"`
	TemplatesReceived []string        `db:"templates_received" json:"templates_received"`
	UnsubscribeToken  string          `db:"unsubscribe_token" json:"-"`
	LastEmailAt       *time.Time      `db:"last_email_at" json:"last_email_at,omitempty"`
	LastOpenedAt      *time.Time      `db:"last_opened_at" json:"last_opened_at,omitempty"`
	LastClickedAt     *time.Time      `db:"last_clicked_at" json:"last_clicked_at,omitempty"`
	UnsubscribedAt    *time.Time      `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// DisplayName is "First Last", falling back to the email local-part.
func (c Contact) DisplayName() string {
	var parts []string
	if c.FirstName != nil && strings.TrimSpace(*c.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*c.FirstName))
	}
	if c.LastName != nil && strings.TrimSpace(*c.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*c.LastName))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return LocalPart(c.Email)
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalPart returns the text before "@".
func LocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// MergeTags returns existing plus every tag from add that is not already present.
func MergeTags(existing, add []string) []string {
	out := make([]string, 0, len(existing)+len(add))
	seen := make(map[string]bool, len(existing)+len(add))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range add {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// RemoveTags drops every occurrence of each tag in remove.
func RemoveTags(existing, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[t] = true
	}
	out := make([]string, 0, len(existing))
	for _, t := range existing {
		if !drop[t] {
			out = append(out, t)
		}
	}
	return out
}

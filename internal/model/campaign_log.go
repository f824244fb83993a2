// internal/model/campaign_log.go
package model

import "time"

// LogStatus mirrors the provider's webhook event names, plus queued/failed.
type LogStatus string

const (
	LogQueued     LogStatus = "queued"
	LogSent       LogStatus = "sent"
	LogDelivered  LogStatus = "delivered"
	LogOpened     LogStatus = "opened"
	LogClicked    LogStatus = "clicked"
	LogBounced    LogStatus = "bounced"
	LogComplained LogStatus = "complained"
	LogFailed     LogStatus = "failed"
)

var LogStatuses = []LogStatus{LogQueued, LogSent, LogDelivered, LogOpened, LogClicked, LogBounced, LogComplained, LogFailed}

func (s LogStatus) Valid() bool {
	for _, v := range LogStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// LogStampColumns maps a status to the per-stage timestamp it sets.
var LogStampColumns = map[LogStatus]string{
	LogSent:       "sent_at",
	LogDelivered:  "delivered_at",
	LogOpened:     "opened_at",
	LogClicked:    "clicked_at",
	LogBounced:    "bounced_at",
	LogComplained: "complained_at",
}

// CampaignLog is the send record of one contact within one campaign.
type CampaignLog struct {
	ID           string     `db:"id" json:"id"`
	CampaignID   string     `db:"campaign_id" json:"campaign_id"`
	ContactID    string     `db:"contact_id" json:"contact_id"`
	ContactEmail string     `db:"email" json:"email,omitempty"`
	MessageID    *string    `db:"message_id" json:"message_id,omitempty"`
	Status       LogStatus  `db:"status" json:"status"`
	Error        *string    `db:"error" json:"error,omitempty"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt     *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt    *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	BouncedAt    *time.Time `db:"bounced_at" json:"bounced_at,omitempty"`
	ComplainedAt *time.Time `db:"complained_at" json:"complained_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// QueuedRecipient is a queued log row joined with what rendering needs.
type QueuedRecipient struct {
	LogID            string
	ContactID        string
	Email            string
	FirstName        *string
	LastName         *string
	UnsubscribeToken string
}

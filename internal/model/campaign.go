// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignArchived  CampaignStatus = "archived"
)

var CampaignStatuses = []CampaignStatus{
	CampaignDraft, CampaignScheduled, CampaignSending, CampaignPaused, CampaignCompleted, CampaignArchived,
}

func (s CampaignStatus) Valid() bool {
	for _, v := range CampaignStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// CampaignAction names a lifecycle operation guarded by the current status.
type CampaignAction string

const (
	ActionUpdate   CampaignAction = "update"
	ActionDelete   CampaignAction = "delete"
	ActionStart    CampaignAction = "start"
	ActionPause    CampaignAction = "pause"
	ActionResume   CampaignAction = "resume"
	ActionArchive  CampaignAction = "archive"
	ActionComplete CampaignAction = "complete"
)

// campaignTransitions lists the statuses each action may be taken from.
var campaignTransitions = map[CampaignAction][]CampaignStatus{
	ActionUpdate:   {CampaignDraft, CampaignScheduled, CampaignPaused},
	ActionDelete:   {CampaignDraft},
	ActionStart:    {CampaignDraft, CampaignScheduled},
	ActionPause:    {CampaignSending},
	ActionResume:   {CampaignPaused},
	ActionArchive:  {CampaignCompleted, CampaignPaused},
	ActionComplete: {CampaignSending},
}

// actionTargets is the status an action leaves the campaign in.
var actionTargets = map[CampaignAction]CampaignStatus{
	ActionStart:    CampaignSending,
	ActionPause:    CampaignPaused,
	ActionResume:   CampaignSending,
	ActionArchive:  CampaignArchived,
	ActionComplete: CampaignCompleted,
}

// AllowedFrom returns the statuses action may be taken from.
func AllowedFrom(action CampaignAction) []CampaignStatus {
	return campaignTransitions[action]
}

// CanTransition reports whether action is permitted while in status from.
func CanTransition(action CampaignAction, from CampaignStatus) bool {
	for _, s := range campaignTransitions[action] {
		if s == from {
			return true
		}
	}
	return false
}

// TargetStatus is the status a status-changing action moves to.
func TargetStatus(action CampaignAction) (CampaignStatus, bool) {
	s, ok := actionTargets[action]
	return s, ok
}

// AudienceFilter selects contacts for a campaign. Stored as JSONB.
type AudienceFilter struct {
	Tags             []string          `json:"tags,omitempty"`
	Statuses         []ContactStatus   `json:"status,omitempty"`
	EngagementLevels []EngagementLevel `json:"engagement_level,omitempty"`
	ExcludeTemplates []string          `json:"exclude_templates,omitempty"`
}

func (f AudienceFilter) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *AudienceFilter) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = AudienceFilter{}
		return nil
	case []byte:
		if len(v) == 0 {
			*f = AudienceFilter{}
			return nil
		}
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return errors.New("audience filter: unsupported column type")
	}
}

// CampaignStat is one of the five webhook-driven counters.
type CampaignStat string

const (
	StatSent      CampaignStat = "sent"
	StatDelivered CampaignStat = "delivered"
	StatOpened    CampaignStat = "opened"
	StatClicked   CampaignStat = "clicked"
	StatBounced   CampaignStat = "bounced"
)

// StatColumns maps counters to their columns. Only these names are ever spliced into SQL.
var StatColumns = map[CampaignStat]string{
	StatSent:      "stats_sent",
	StatDelivered: "stats_delivered",
	StatOpened:    "stats_opened",
	StatClicked:   "stats_clicked",
	StatBounced:   "stats_bounced",
}

type Campaign struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Objective       *string        `db:"objective" json:"objective,omitempty"`
	Status          CampaignStatus `db:"status" json:"status"`
	TemplateCode    *string        `db:"template_code" json:"template_code,omitempty"`
	ScheduledAt     *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt       *time.Time     `db:"started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
	AudienceFilter  AudienceFilter `db:"audience_filter" json:"audience_filter"`
	TotalRecipients int            `db:"total_recipients" json:"total_recipients"`
	StatsSent       int            `db:"stats_sent" json:"stats_sent"`
	StatsDelivered  int            `db:"stats_delivered" json:"stats_delivered"`
	StatsOpened     int            `db:"stats_opened" json:"stats_opened"`
	StatsClicked    int            `db:"stats_clicked" json:"stats_clicked"`
	StatsBounced    int            `db:"stats_bounced" json:"stats_bounced"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// CampaignRates are derived from the counters and never stored.
type CampaignRates struct {
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
	BounceRate   float64 `json:"bounce_rate"`
}

// Rate is 100*numerator/sent, or 0 when nothing was sent.
func Rate(numerator, sent int) float64 {
	if sent == 0 {
		return 0
	}
	return 100 * float64(numerator) / float64(sent)
}

func RatesFor(sent, delivered, opened, clicked, bounced int) CampaignRates {
	return CampaignRates{
		DeliveryRate: Rate(delivered, sent),
		OpenRate:     Rate(opened, sent),
		ClickRate:    Rate(clicked, sent),
		BounceRate:   Rate(bounced, sent),
	}
}

func (c Campaign) Rates() CampaignRates {
	return RatesFor(c.StatsSent, c.StatsDelivered, c.StatsOpened, c.StatsClicked, c.StatsBounced)
}

// CampaignWithRates is the list/detail view of a campaign.
type CampaignWithRates struct {
	Campaign
	CampaignRates
}

func WithRates(c Campaign) CampaignWithRates {
	return CampaignWithRates{Campaign: c, CampaignRates: c.Rates()}
}

package model

import "time"

type DashboardSummary struct {
	TotalContacts      int                     `json:"total_contacts"`
	ContactsByStatus   map[ContactStatus]int   `json:"contacts_by_status"`
	ContactsByLevel    map[EngagementLevel]int `json:"contacts_by_engagement"`
	TotalCampaigns     int                     `json:"total_campaigns"`
	CampaignsByStatus  map[CampaignStatus]int  `json:"campaigns_by_status"`
	TotalTemplates     int                     `json:"total_templates"`
	EmailsSent         int                     `json:"emails_sent"`
	EmailsDelivered    int                     `json:"emails_delivered"`
	EmailsOpened       int                     `json:"emails_opened"`
	EmailsClicked      int                     `json:"emails_clicked"`
	EmailsBounced      int                     `json:"emails_bounced"`
	CampaignRates
}

type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

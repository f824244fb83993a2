package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/marketing-dashboard/internal/model"
)

type DashboardRepositoryInterface interface {
	Summary(ctx context.Context) (*model.DashboardSummary, error)
	ContactGrowth(ctx context.Context, days int) ([]model.DailyCount, error)
	TopCampaigns(ctx context.Context, limit int) ([]*model.Campaign, error)
}

// DashboardRepository runs read-only aggregates. It never writes.
type DashboardRepository struct {
	DB *sql.DB
}

func NewDashboardRepository(pool *sql.DB) *DashboardRepository {
	return &DashboardRepository{DB: pool}
}

func (r *DashboardRepository) Summary(ctx context.Context) (*model.DashboardSummary, error) {
	s := &model.DashboardSummary{
		ContactsByStatus:  map[model.ContactStatus]int{},
		ContactsByLevel:   map[model.EngagementLevel]int{},
		CampaignsByStatus: map[model.CampaignStatus]int{},
	}

	if err := r.groupCount(ctx, `SELECT status, COUNT(*) FROM marketing_contacts GROUP BY status`, func(k string, n int) {
		s.ContactsByStatus[model.ContactStatus(k)] = n
		s.TotalContacts += n
	}); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, `SELECT engagement_level, COUNT(*) FROM marketing_contacts GROUP BY engagement_level`, func(k string, n int) {
		s.ContactsByLevel[model.EngagementLevel(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, `SELECT status, COUNT(*) FROM marketing_campaigns GROUP BY status`, func(k string, n int) {
		s.CampaignsByStatus[model.CampaignStatus(k)] = n
		s.TotalCampaigns += n
	}); err != nil {
		return nil, err
	}

	err := r.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(stats_sent), 0), COALESCE(SUM(stats_delivered), 0), COALESCE(SUM(stats_opened), 0),
		       COALESCE(SUM(stats_clicked), 0), COALESCE(SUM(stats_bounced), 0)
		FROM marketing_campaigns
	`).Scan(&s.EmailsSent, &s.EmailsDelivered, &s.EmailsOpened, &s.EmailsClicked, &s.EmailsBounced)
	if err != nil {
		return nil, err
	}
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_templates`).Scan(&s.TotalTemplates); err != nil {
		return nil, err
	}

	s.CampaignRates = model.RatesFor(s.EmailsSent, s.EmailsDelivered, s.EmailsOpened, s.EmailsClicked, s.EmailsBounced)
	return s, nil
}

func (r *DashboardRepository) groupCount(ctx context.Context, query string, fn func(key string, n int)) error {
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}

// ContactGrowth returns one row per day for the last `days` days, zero-filled.
func (r *DashboardRepository) ContactGrowth(ctx context.Context, days int) ([]model.DailyCount, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT d.day, COUNT(c.id)
		FROM generate_series(CURRENT_DATE - ($1::int - 1), CURRENT_DATE, INTERVAL '1 day') AS d(day)
		LEFT JOIN marketing_contacts c ON c.created_at::date = d.day::date
		GROUP BY d.day
		ORDER BY d.day
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.DailyCount{}
	for rows.Next() {
		var dc model.DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (r *DashboardRepository) TopCampaigns(ctx context.Context, limit int) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM marketing_campaigns
		WHERE stats_sent > 0
		ORDER BY stats_opened DESC, stats_clicked DESC, created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

var _ DashboardRepositoryInterface = (*DashboardRepository)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

// ErrStatusChanged is returned when a guarded write finds the campaign no longer in an allowed status.
var ErrStatusChanged = appErrors.StateGuard("campaign status changed, reload and try again")

type CampaignListFilter struct {
	Status model.CampaignStatus
	Search string
	Sort   db.Sort
	Page   db.Page
}

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	List(ctx context.Context, f CampaignListFilter) ([]*model.Campaign, int, error)
	Update(ctx context.Context, c *model.Campaign, allowedFrom []model.CampaignStatus) error
	TransitionStatus(ctx context.Context, id string, to model.CampaignStatus, allowedFrom []model.CampaignStatus) error
	DeleteDraft(ctx context.Context, id string) error
	Start(ctx context.Context, id string, filter model.AudienceFilter) (int, error)
	IncrementStat(ctx context.Context, id string, stat model.CampaignStat) error
	ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

func NewCampaignRepository(pool *sql.DB) *CampaignRepository {
	return &CampaignRepository{DB: pool}
}

var campaignSortColumns = db.SortColumns{
	"name":             "name",
	"status":           "status",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
	"scheduled_at":     "scheduled_at",
	"started_at":       "started_at",
	"total_recipients": "total_recipients",
	"stats_sent":       "stats_sent",
	"stats_opened":     "stats_opened",
	"stats_clicked":    "stats_clicked",
}

const campaignColumns = `id, name, objective, status, template_code, scheduled_at, started_at, finished_at,
	audience_filter, total_recipients, stats_sent, stats_delivered, stats_opened, stats_clicked, stats_bounced,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.Objective, &c.Status, &c.TemplateCode, &c.ScheduledAt, &c.StartedAt, &c.FinishedAt,
		&c.AudienceFilter, &c.TotalRecipients, &c.StatsSent, &c.StatsDelivered, &c.StatsOpened, &c.StatsClicked, &c.StatsBounced,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
		INSERT INTO marketing_campaigns (id, name, objective, status, template_code, scheduled_at, audience_filter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.DB.QueryRowContext(ctx, query,
		c.ID, c.Name, c.Objective, c.Status, c.TemplateCode, c.ScheduledAt, c.AudienceFilter,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM marketing_campaigns WHERE id = $1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(ctx context.Context, f CampaignListFilter) ([]*model.Campaign, int, error) {
	var args db.Args
	var where db.Where
	if f.Status != "" {
		where.And("status = " + args.Add(f.Status))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where.And("name ILIKE " + args.Add("%"+s+"%"))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM marketing_campaigns` + where.String()
	if err := r.DB.QueryRowContext(ctx, countQuery, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM marketing_campaigns` + where.String() +
		db.OrderBy(f.Sort, campaignSortColumns, "created_at") + f.Page.Limit(&args)

	rows, err := r.DB.QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

// Update writes the editable fields, provided the stored status is still in allowedFrom.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign, allowedFrom []model.CampaignStatus) error {
	query := `
		UPDATE marketing_campaigns
		SET name = $1, objective = $2, status = $3, template_code = $4, scheduled_at = $5, audience_filter = $6, updated_at = NOW()
		WHERE id = $7 AND status = ANY($8)
		RETURNING updated_at
	`
	err := r.DB.QueryRowContext(ctx, query,
		c.Name, c.Objective, c.Status, c.TemplateCode, c.ScheduledAt, c.AudienceFilter, c.ID, pq.Array(campaignStatusStrings(allowedFrom)),
	).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStatusChanged
	}
	return err
}

// TransitionStatus moves the campaign to `to` only while it is in one of allowedFrom.
// Completing also stamps finished_at.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id string, to model.CampaignStatus, allowedFrom []model.CampaignStatus) error {
	query := `
		UPDATE marketing_campaigns
		SET status = $1::text,
		    finished_at = CASE WHEN $1::text = 'completed' THEN NOW() ELSE finished_at END,
		    updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`
	res, err := r.DB.ExecContext(ctx, query, string(to), id, pq.Array(campaignStatusStrings(allowedFrom)))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *CampaignRepository) DeleteDraft(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM marketing_campaigns WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// Start queues the audience and flips the campaign to sending in one transaction.
// Contacts already queued for this campaign are skipped by the (campaign_id, contact_id) constraint,
// so the returned count is only the rows this call inserted.
func (r *CampaignRepository) Start(ctx context.Context, id string, filter model.AudienceFilter) (int, error) {
	var queued int
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		n, err := queueAudience(ctx, tx, id, filter)
		if err != nil {
			return fmt.Errorf("queue audience: %w", err)
		}
		queued = int(n)

		res, err := tx.ExecContext(ctx, `
			UPDATE marketing_campaigns
			SET status = 'sending', started_at = NOW(), total_recipients = $2, updated_at = NOW()
			WHERE id = $1 AND status = ANY($3)
		`, id, queued, pq.Array(campaignStatusStrings(model.AllowedFrom(model.ActionStart))))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrStatusChanged
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return queued, nil
}

func queueAudience(ctx context.Context, q db.Querier, campaignID string, filter model.AudienceFilter) (int64, error) {
	var args db.Args
	campaignParam := args.Add(campaignID)
	where := audienceWhere(filter, ScopeStart, "c", &args)

	query := `
		INSERT INTO marketing_campaign_logs (id, campaign_id, contact_id, status, created_at, updated_at)
		SELECT gen_random_uuid(), ` + campaignParam + `, c.id, 'queued', NOW(), NOW()
		FROM marketing_contacts c` + where.String() + `
		ON CONFLICT (campaign_id, contact_id) DO NOTHING`

	res, err := q.ExecContext(ctx, query, args.Values()...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IncrementStat bumps one counter with a single col = col + 1 statement.
func (r *CampaignRepository) IncrementStat(ctx context.Context, id string, stat model.CampaignStat) error {
	col, ok := model.StatColumns[stat]
	if !ok {
		return appErrors.Validation("stat", fmt.Sprintf("unknown campaign stat %q", stat))
	}
	query := fmt.Sprintf(`UPDATE marketing_campaigns SET %s = %s + 1, updated_at = NOW() WHERE id = $1`, col, col)
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM marketing_campaigns
		WHERE status = 'scheduled' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

func campaignStatusStrings(in []model.CampaignStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

type CampaignLogRepositoryInterface interface {
	ListByCampaign(ctx context.Context, campaignID string, status model.LogStatus, page db.Page) ([]*model.CampaignLog, int, error)
	StatusCounts(ctx context.Context, campaignID string) (map[model.LogStatus]int, error)
	ListQueued(ctx context.Context, campaignID string, limit int) ([]model.QueuedRecipient, error)
	MarkSent(ctx context.Context, logID, messageID string) error
	MarkFailed(ctx context.Context, logID, reason string) error
	ApplyEvent(ctx context.Context, messageID string, status model.LogStatus) (*model.CampaignLog, error)
}

type CampaignLogRepository struct {
	DB *sql.DB
}

func NewCampaignLogRepository(pool *sql.DB) *CampaignLogRepository {
	return &CampaignLogRepository{DB: pool}
}

// logStatusRank orders provider events so a late "delivered" never overwrites "clicked".
var logStatusRank = []model.LogStatus{
	model.LogQueued, model.LogSent, model.LogDelivered, model.LogOpened, model.LogClicked, model.LogBounced, model.LogComplained,
}

func logRankSQL(expr string) string {
	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(expr)
	for i, s := range logStatusRank {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", s, i)
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

func logRank(s model.LogStatus) int {
	for i, v := range logStatusRank {
		if v == s {
			return i
		}
	}
	return 0
}

const logColumns = `l.id, l.campaign_id, l.contact_id, c.email, l.message_id, l.status, l.error,
	l.sent_at, l.delivered_at, l.opened_at, l.clicked_at, l.bounced_at, l.complained_at, l.created_at, l.updated_at`

func scanLog(row rowScanner) (*model.CampaignLog, error) {
	var l model.CampaignLog
	err := row.Scan(
		&l.ID, &l.CampaignID, &l.ContactID, &l.ContactEmail, &l.MessageID, &l.Status, &l.Error,
		&l.SentAt, &l.DeliveredAt, &l.OpenedAt, &l.ClickedAt, &l.BouncedAt, &l.ComplainedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *CampaignLogRepository) ListByCampaign(ctx context.Context, campaignID string, status model.LogStatus, page db.Page) ([]*model.CampaignLog, int, error) {
	var args db.Args
	var where db.Where
	where.And("l.campaign_id = " + args.Add(campaignID))
	if status != "" {
		where.And("l.status = " + args.Add(status))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM marketing_campaign_logs l` + where.String()
	if err := r.DB.QueryRowContext(ctx, countQuery, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + logColumns + `
		FROM marketing_campaign_logs l
		JOIN marketing_contacts c ON c.id = l.contact_id` + where.String() +
		` ORDER BY l.updated_at DESC` + page.Limit(&args)
	rows, err := r.DB.QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := []*model.CampaignLog{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

// StatusCounts groups the campaign's send records by status.
func (r *CampaignLogRepository) StatusCounts(ctx context.Context, campaignID string) (map[model.LogStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM marketing_campaign_logs WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.LogStatus]int, len(model.LogStatuses))
	for _, s := range model.LogStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status model.LogStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *CampaignLogRepository) ListQueued(ctx context.Context, campaignID string, limit int) ([]model.QueuedRecipient, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT l.id, c.id, c.email, c.first_name, c.last_name, c.unsubscribe_token
		FROM marketing_campaign_logs l
		JOIN marketing_contacts c ON c.id = l.contact_id
		WHERE l.campaign_id = $1 AND l.status = 'queued' AND c.status = 'active'
		ORDER BY l.created_at, l.id
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueuedRecipient
	for rows.Next() {
		var q model.QueuedRecipient
		if err := rows.Scan(&q.LogID, &q.ContactID, &q.Email, &q.FirstName, &q.LastName, &q.UnsubscribeToken); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *CampaignLogRepository) MarkSent(ctx context.Context, logID, messageID string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE marketing_campaign_logs
		SET message_id = $2, status = 'sent', sent_at = NOW(), error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'queued'
	`, logID, messageID)
	return err
}

func (r *CampaignLogRepository) MarkFailed(ctx context.Context, logID, reason string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE marketing_campaign_logs
		SET status = 'failed', error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'queued'
	`, logID, reason)
	return err
}

// ApplyEvent records a provider event against the log row owning messageID.
// The stage timestamp keeps its first value and the status never moves backwards.
// A failed send stays failed whatever arrives later.
// It returns nil, nil for message ids that did not come from a campaign.
func (r *CampaignLogRepository) ApplyEvent(ctx context.Context, messageID string, status model.LogStatus) (*model.CampaignLog, error) {
	stamp, ok := model.LogStampColumns[status]
	if !ok {
		return nil, appErrors.Validation("status", fmt.Sprintf("unsupported event status %q", status))
	}
	query := `
		UPDATE marketing_campaign_logs AS l
		SET status = CASE WHEN l.status <> 'failed' AND ` + logRankSQL("l.status") + ` < $3 THEN $2::text ELSE l.status END,
		    ` + stamp + ` = COALESCE(l.` + stamp + `, NOW()),
		    updated_at = NOW()
		FROM marketing_contacts c
		WHERE l.message_id = $1 AND c.id = l.contact_id
		RETURNING ` + logColumns
	l, err := scanLog(r.DB.QueryRowContext(ctx, query, messageID, string(status), logRank(status)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

var _ CampaignLogRepositoryInterface = (*CampaignLogRepository)(nil)

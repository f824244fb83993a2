package repository_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

func newCampaignRepo(t *testing.T) (*repository.CampaignRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return repository.NewCampaignRepository(conn), mock
}

var campaignCols = []string{
	"id", "name", "objective", "status", "template_code", "scheduled_at", "started_at", "finished_at",
	"audience_filter", "total_recipients", "stats_sent", "stats_delivered", "stats_opened", "stats_clicked", "stats_bounced",
	"created_at", "updated_at",
}

func TestIncrementStatIsSingleAtomicUpdate(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE marketing_campaigns SET stats_opened = stats_opened + 1, updated_at = NOW() WHERE id = $1`)).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementStat(context.Background(), "c1", model.StatOpened))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementStatRejectsUnknownCounter(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	err := repo.IncrementStat(context.Background(), "c1", model.CampaignStat("stats_sent = 0; --"))
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementStatMissingCampaign(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec("UPDATE marketing_campaigns SET stats_sent").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.IncrementStat(context.Background(), "missing", model.StatSent)
	assert.Equal(t, appErrors.KindNotFound, appErrors.KindOf(err))
}

func TestTransitionStatusGuardedByCurrentStatus(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec(`UPDATE marketing_campaigns\s+SET status = \$1::text`).
		WithArgs("paused", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionStatus(context.Background(), "c1", model.CampaignPaused, model.AllowedFrom(model.ActionPause))
	assert.ErrorIs(t, err, repository.ErrStatusChanged)
	assert.Equal(t, appErrors.KindState, appErrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDraftOnlyDeletesDrafts(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM marketing_campaigns WHERE id = $1 AND status = 'draft'`)).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteDraft(context.Background(), "c1")
	assert.ErrorIs(t, err, repository.ErrStatusChanged)
}

func TestStartQueuesAudienceAndFlipsStatusInOneTransaction(t *testing.T) {
	repo, mock := newCampaignRepo(t)
	filter := model.AudienceFilter{
		Tags:             []string{"ielts"},
		Statuses:         []model.ContactStatus{model.ContactBounced},
		ExcludeTemplates: []string{"WELCOME"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO marketing_campaign_logs .* WHERE c.status = 'active' AND c.tags && \$2::text\[\] AND NOT \(c.templates_received && \$3::text\[\]\)\s+ON CONFLICT \(campaign_id, contact_id\) DO NOTHING`).
		WithArgs("c1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE marketing_campaigns\s+SET status = 'sending'`).
		WithArgs("c1", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.Start(context.Background(), "c1", filter)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSecondRunQueuesNothingNew(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO marketing_campaign_logs").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE marketing_campaigns").
		WithArgs("c1", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	n, err := repo.Start(context.Background(), "c1", model.AudienceFilter{})
	assert.ErrorIs(t, err, repository.ErrStatusChanged)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFallsBackToWhitelistedSort(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM marketing_campaigns WHERE status = $1`)).
		WithArgs("draft").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC LIMIT $2 OFFSET $3`)).
		WithArgs("draft", 20, 0).
		WillReturnRows(sqlmock.NewRows(campaignCols))

	campaigns, total, err := repo.List(context.Background(), repository.CampaignListFilter{
		Status: model.CampaignDraft,
		Sort:   db.Sort{Column: "name; DROP TABLE marketing_campaigns", Direction: "sideways"},
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, campaigns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

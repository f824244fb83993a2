package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

func newCampaignService(campaigns *fakeCampaignRepo, contacts *fakeContactRepo) *service.CampaignService {
	tpl := newFakeTemplateRepo(&model.EmailTemplate{Code: "WELCOME", Subject: "Hi {{name}}", HTMLBody: "<p>Hi</p>"})
	return service.NewCampaignService(campaigns, newFakeLogRepo(), contacts, tpl, nil)
}

func campaignIn(status model.CampaignStatus) *model.Campaign {
	return &model.Campaign{ID: "c1", Name: "Launch", Status: status, TemplateCode: strPtr("WELCOME")}
}

func runAction(ctx context.Context, svc *service.CampaignService, action model.CampaignAction, id string) error {
	var err error
	switch action {
	case model.ActionStart:
		_, err = svc.StartCampaign(ctx, id)
	case model.ActionPause:
		_, err = svc.PauseCampaign(ctx, id)
	case model.ActionResume:
		_, err = svc.ResumeCampaign(ctx, id)
	case model.ActionComplete:
		_, err = svc.CompleteCampaign(ctx, id)
	case model.ActionArchive:
		_, err = svc.ArchiveCampaign(ctx, id)
	}
	return err
}

func TestCampaignTransitions(t *testing.T) {
	actions := []model.CampaignAction{
		model.ActionStart, model.ActionPause, model.ActionResume, model.ActionComplete, model.ActionArchive,
	}
	for _, action := range actions {
		for _, from := range model.CampaignStatuses {
			t.Run(string(action)+"/"+string(from), func(t *testing.T) {
				campaigns := newFakeCampaignRepo(campaignIn(from))
				campaigns.audience = []string{"ct-1"}
				contacts := newFakeContactRepo()
				contacts.audienceSize = 1
				svc := newCampaignService(campaigns, contacts)

				err := runAction(context.Background(), svc, action, "c1")

				if model.CanTransition(action, from) {
					require.NoError(t, err)
					want, _ := model.TargetStatus(action)
					assert.Equal(t, want, campaigns.status("c1"))
					return
				}
				require.Error(t, err)
				assert.Equal(t, appErrors.KindState, appErrors.KindOf(err))
				assert.Contains(t, err.Error(), string(from))
				assert.Equal(t, from, campaigns.status("c1"), "status must be unchanged")
			})
		}
	}
}

func TestDeleteCampaign(t *testing.T) {
	for _, status := range model.CampaignStatuses {
		t.Run(string(status), func(t *testing.T) {
			campaigns := newFakeCampaignRepo(campaignIn(status))
			svc := newCampaignService(campaigns, newFakeContactRepo())

			err := svc.DeleteCampaign(context.Background(), "c1")

			if status == model.CampaignDraft {
				require.NoError(t, err)
				assert.Equal(t, model.CampaignStatus(""), campaigns.status("c1"))
				return
			}
			require.Error(t, err)
			assert.Equal(t, appErrors.KindState, appErrors.KindOf(err))
			assert.Equal(t, status, campaigns.status("c1"), "row must still be present")
		})
	}
}

func TestDeleteCampaignNotFound(t *testing.T) {
	svc := newCampaignService(newFakeCampaignRepo(), newFakeContactRepo())
	err := svc.DeleteCampaign(context.Background(), "missing")
	assert.Equal(t, appErrors.KindNotFound, appErrors.KindOf(err))
}

func TestStartCampaignTwiceQueuesOnce(t *testing.T) {
	campaigns := newFakeCampaignRepo(campaignIn(model.CampaignDraft))
	campaigns.audience = []string{"ct-1", "ct-2", "ct-3"}
	contacts := newFakeContactRepo()
	contacts.audienceSize = 3
	svc := newCampaignService(campaigns, contacts)
	ctx := context.Background()

	res, err := svc.StartCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalRecipients)

	_, err = svc.StartCampaign(ctx, "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindState, appErrors.KindOf(err))
	assert.Len(t, campaigns.queued["c1"], 3)
}

func TestStartCampaignPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("no template", func(t *testing.T) {
		c := campaignIn(model.CampaignDraft)
		c.TemplateCode = nil
		contacts := newFakeContactRepo()
		contacts.audienceSize = 2
		svc := newCampaignService(newFakeCampaignRepo(c), contacts)

		_, err := svc.StartCampaign(ctx, "c1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "template")
	})

	t.Run("empty audience", func(t *testing.T) {
		campaigns := newFakeCampaignRepo(campaignIn(model.CampaignDraft))
		svc := newCampaignService(campaigns, newFakeContactRepo())

		_, err := svc.StartCampaign(ctx, "c1")
		require.Error(t, err)
		assert.Equal(t, appErrors.KindState, appErrors.KindOf(err))
		assert.Equal(t, model.CampaignDraft, campaigns.status("c1"))
	})
}

func TestCreateCampaignIsAlwaysDraft(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	svc := newCampaignService(campaigns, newFakeContactRepo())

	c, err := svc.CreateCampaign(context.Background(), service.CampaignInput{
		Name:           "  Spring sale ",
		TemplateCode:   strPtr("welcome"),
		AudienceFilter: model.AudienceFilter{Tags: []string{"vip", "vip"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Equal(t, "Spring sale", c.Name)
	assert.Equal(t, "WELCOME", *c.TemplateCode)
	assert.Equal(t, []string{"vip"}, c.AudienceFilter.Tags)
}

func TestCreateCampaignValidation(t *testing.T) {
	svc := newCampaignService(newFakeCampaignRepo(), newFakeContactRepo())
	ctx := context.Background()

	_, err := svc.CreateCampaign(ctx, service.CampaignInput{Name: " "})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	_, err = svc.CreateCampaign(ctx, service.CampaignInput{Name: "x", TemplateCode: strPtr("NOPE")})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	_, err = svc.CreateCampaign(ctx, service.CampaignInput{
		Name:           "x",
		AudienceFilter: model.AudienceFilter{Statuses: []model.ContactStatus{"gone"}},
	})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
}

func TestUpdateCampaign(t *testing.T) {
	ctx := context.Background()

	t.Run("scheduled requires a time", func(t *testing.T) {
		svc := newCampaignService(newFakeCampaignRepo(campaignIn(model.CampaignDraft)), newFakeContactRepo())
		scheduled := model.CampaignScheduled
		_, err := svc.UpdateCampaign(ctx, "c1", service.CampaignPatch{Status: &scheduled})
		assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
	})

	t.Run("schedules a draft", func(t *testing.T) {
		campaigns := newFakeCampaignRepo(campaignIn(model.CampaignDraft))
		svc := newCampaignService(campaigns, newFakeContactRepo())
		scheduled := model.CampaignScheduled
		at := time.Now().Add(time.Hour)
		c, err := svc.UpdateCampaign(ctx, "c1", service.CampaignPatch{Status: &scheduled, ScheduledAt: &at})
		require.NoError(t, err)
		assert.Equal(t, model.CampaignScheduled, c.Status)
		assert.Equal(t, model.CampaignScheduled, campaigns.status("c1"))
	})

	t.Run("sending is locked", func(t *testing.T) {
		svc := newCampaignService(newFakeCampaignRepo(campaignIn(model.CampaignSending)), newFakeContactRepo())
		_, err := svc.UpdateCampaign(ctx, "c1", service.CampaignPatch{Name: strPtr("Renamed")})
		assert.Equal(t, appErrors.KindState, appErrors.KindOf(err))
	})
}

func TestDuplicateCampaign(t *testing.T) {
	src := campaignIn(model.CampaignCompleted)
	src.StatsSent = 40
	src.AudienceFilter = model.AudienceFilter{Tags: []string{"vip"}}
	campaigns := newFakeCampaignRepo(src)
	svc := newCampaignService(campaigns, newFakeContactRepo())

	c, err := svc.DuplicateCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotEqual(t, "c1", c.ID)
	assert.Equal(t, "Launch (Copy)", c.Name)
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Zero(t, c.StatsSent)
	assert.Equal(t, []string{"vip"}, c.AudienceFilter.Tags)
}

func TestGetCampaignDetailsRates(t *testing.T) {
	c := campaignIn(model.CampaignSending)
	c.StatsSent, c.StatsOpened = 200, 50
	svc := newCampaignService(newFakeCampaignRepo(c), newFakeContactRepo())

	d, err := svc.GetCampaignDetails(context.Background(), "c1")
	require.NoError(t, err)
	assert.InDelta(t, 25.0, d.OpenRate, 0.0001)
	assert.Zero(t, d.ClickRate)
	assert.Contains(t, d.LogCounts, model.LogFailed)
}

func TestStartDueScheduled(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	due := &model.Campaign{ID: "due", Name: "Due", Status: model.CampaignScheduled, ScheduledAt: &past, TemplateCode: strPtr("WELCOME")}
	broken := &model.Campaign{ID: "broken", Name: "No template", Status: model.CampaignScheduled, ScheduledAt: &past}
	later := &model.Campaign{ID: "later", Name: "Later", Status: model.CampaignScheduled, ScheduledAt: &future, TemplateCode: strPtr("WELCOME")}

	campaigns := newFakeCampaignRepo(due, broken, later)
	campaigns.audience = []string{"ct-1"}
	contacts := newFakeContactRepo()
	contacts.audienceSize = 1
	svc := newCampaignService(campaigns, contacts)

	started, err := svc.StartDueScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Equal(t, model.CampaignSending, campaigns.status("due"))
	assert.Equal(t, model.CampaignScheduled, campaigns.status("broken"))
	assert.Equal(t, model.CampaignScheduled, campaigns.status("later"))
}

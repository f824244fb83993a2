package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/marketing-dashboard/internal/model"
)

func TestRateGuardsZeroSent(t *testing.T) {
	for _, n := range []int{0, 1, 50, 1000} {
		assert.Equal(t, 0.0, model.Rate(n, 0))
	}
	rates := model.RatesFor(0, 10, 10, 10, 10)
	assert.Equal(t, model.CampaignRates{}, rates)

	assert.Equal(t, 25.0, model.Rate(50, 200))
}

func TestCampaignRates(t *testing.T) {
	c := model.Campaign{StatsSent: 200, StatsDelivered: 190, StatsOpened: 50, StatsClicked: 10, StatsBounced: 4}
	r := c.Rates()
	assert.Equal(t, 95.0, r.DeliveryRate)
	assert.Equal(t, 25.0, r.OpenRate)
	assert.Equal(t, 5.0, r.ClickRate)
	assert.Equal(t, 2.0, r.BounceRate)
}

func TestTransitionTable(t *testing.T) {
	want := map[model.CampaignAction][]model.CampaignStatus{
		model.ActionUpdate:   {model.CampaignDraft, model.CampaignScheduled, model.CampaignPaused},
		model.ActionDelete:   {model.CampaignDraft},
		model.ActionStart:    {model.CampaignDraft, model.CampaignScheduled},
		model.ActionPause:    {model.CampaignSending},
		model.ActionResume:   {model.CampaignPaused},
		model.ActionArchive:  {model.CampaignCompleted, model.CampaignPaused},
		model.ActionComplete: {model.CampaignSending},
	}
	for action, allowed := range want {
		for _, from := range model.CampaignStatuses {
			assert.Equal(t, contains(allowed, from), model.CanTransition(action, from), "%s from %s", action, from)
		}
	}
	assert.False(t, model.CanTransition(model.ActionArchive, model.CampaignDraft))
}

func TestTargetStatus(t *testing.T) {
	to, ok := model.TargetStatus(model.ActionStart)
	require.True(t, ok)
	assert.Equal(t, model.CampaignSending, to)

	_, ok = model.TargetStatus(model.ActionDelete)
	assert.False(t, ok)
}

func TestUpgradeEngagementNeverRegresses(t *testing.T) {
	level := model.EngagementNone
	for _, next := range []model.EngagementLevel{
		model.EngagementSent, model.EngagementClicked, model.EngagementSent, model.EngagementOpened,
	} {
		level = model.UpgradeEngagement(level, next)
	}
	assert.Equal(t, model.EngagementClicked, level)
	assert.Equal(t, model.EngagementOpened, model.UpgradeEngagement(model.EngagementSent, model.EngagementOpened))
}

func TestAudienceFilterScan(t *testing.T) {
	var f model.AudienceFilter
	require.NoError(t, f.Scan([]byte(`{"tags":["ielts"],"exclude_templates":["WELCOME"]}`)))
	assert.Equal(t, []string{"ielts"}, f.Tags)
	assert.Equal(t, []string{"WELCOME"}, f.ExcludeTemplates)

	require.NoError(t, f.Scan(nil))
	assert.Empty(t, f.Tags)
}

func TestTagHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, model.MergeTags([]string{"a", "b"}, []string{"b", "c", " "}))
	assert.Equal(t, []string{"a"}, model.RemoveTags([]string{"b", "a", "b"}, []string{"b"}))
}

func TestDisplayName(t *testing.T) {
	first := "Ana"
	assert.Equal(t, "Ana", model.Contact{Email: "ana@x.com", FirstName: &first}.DisplayName())
	assert.Equal(t, "bob", model.Contact{Email: "bob@x.com"}.DisplayName())
}

func contains(list []model.CampaignStatus, s model.CampaignStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

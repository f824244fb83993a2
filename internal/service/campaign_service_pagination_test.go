package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

func TestListCampaignsPagination(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var all []*model.Campaign
	for i := 1; i <= 5; i++ {
		all = append(all, &model.Campaign{
			ID:        fmt.Sprintf("c%d", i),
			Name:      fmt.Sprintf("C%d", i),
			Status:    model.CampaignDraft,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			StatsSent: 10,
		})
	}
	svc := newCampaignService(newFakeCampaignRepo(all...), newFakeContactRepo())
	ctx := context.Background()

	page1, p1, err := svc.ListCampaigns(ctx, repository.CampaignListFilter{Page: page(1, 2)})
	require.NoError(t, err)
	page3, p3, err := svc.ListCampaigns(ctx, repository.CampaignListFilter{Page: page(3, 2)})
	require.NoError(t, err)

	assert.Equal(t, 5, p1.TotalCount)
	assert.Equal(t, 3, p1.TotalPages)
	assert.Equal(t, 3, p3.Page)

	require.Len(t, page1, 2)
	assert.Equal(t, "c5", page1[0].ID, "newest first")
	assert.Equal(t, "c4", page1[1].ID)
	require.Len(t, page3, 1)
	assert.Equal(t, "c1", page3[0].ID)
}

func TestListCampaignsRejectsUnknownStatus(t *testing.T) {
	svc := newCampaignService(newFakeCampaignRepo(), newFakeContactRepo())
	_, _, err := svc.ListCampaigns(context.Background(), repository.CampaignListFilter{Status: "running"})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
}

package service

import (
	"context"
	"log/slog"

	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

const (
	DefaultGrowthDays = 30
	MaxGrowthDays     = 365
	DefaultTopLimit   = 5
	MaxTopLimit       = 50
)

type DashboardService struct {
	Repo repository.DashboardRepositoryInterface
	Log  *slog.Logger
}

func NewDashboardService(repo repository.DashboardRepositoryInterface, logger *slog.Logger) *DashboardService {
	return &DashboardService{Repo: repo, Log: moduleLogger(logger, "dashboard")}
}

func (s *DashboardService) Summary(ctx context.Context) (*model.DashboardSummary, error) {
	sum, err := s.Repo.Summary(ctx)
	if err != nil {
		return nil, appErrors.Internal("dashboard summary", err)
	}
	return sum, nil
}

// ContactGrowth returns one entry per day, oldest first. days 0 means the default window.
func (s *DashboardService) ContactGrowth(ctx context.Context, days int) ([]model.DailyCount, error) {
	if days == 0 {
		days = DefaultGrowthDays
	}
	if days < 1 || days > MaxGrowthDays {
		return nil, appErrors.Validation("days", "must be between 1 and 365")
	}
	counts, err := s.Repo.ContactGrowth(ctx, days)
	if err != nil {
		return nil, appErrors.Internal("contact growth", err)
	}
	return counts, nil
}

func (s *DashboardService) TopCampaigns(ctx context.Context, limit int) ([]model.CampaignWithRates, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if limit > MaxTopLimit {
		limit = MaxTopLimit
	}
	campaigns, err := s.Repo.TopCampaigns(ctx, limit)
	if err != nil {
		return nil, appErrors.Internal("top campaigns", err)
	}
	out := make([]model.CampaignWithRates, len(campaigns))
	for i, c := range campaigns {
		out[i] = model.WithRates(*c)
	}
	return out, nil
}

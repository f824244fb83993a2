package controller

import (
	"net/http"

	"github.com/unclebandit/marketing-dashboard/internal/service"
)

type DashboardController struct {
	DashboardService *service.DashboardService
}

func (c *DashboardController) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := c.DashboardService.Summary(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, sum)
}

func (c *DashboardController) Growth(w http.ResponseWriter, r *http.Request) {
	counts, err := c.DashboardService.ContactGrowth(r.Context(), queryInt(r, "days"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, counts)
}

func (c *DashboardController) TopCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := c.DashboardService.TopCampaigns(r.Context(), queryInt(r, "limit"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, campaigns)
}

// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	EmailService    *service.EmailService
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	campaigns, p, err := c.CampaignService.ListCampaigns(r.Context(), repository.CampaignListFilter{
		Status: model.CampaignStatus(q.Get("status")),
		Search: q.Get("search"),
		Sort:   sortFrom(r),
		Page:   pageFrom(r),
	})
	if err != nil {
		Fail(w, r, err)
		return
	}
	Paged(w, campaigns, p)
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	d, err := c.CampaignService.GetCampaignDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, d)
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in service.CampaignInput
	if err := decode(w, r, &in); err != nil {
		Fail(w, r, err)
		return
	}
	campaign, err := c.CampaignService.CreateCampaign(r.Context(), in)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusCreated, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var p service.CampaignPatch
	if err := decode(w, r, &p); err != nil {
		Fail(w, r, err)
		return
	}
	campaign, err := c.CampaignService.UpdateCampaign(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.DeleteCampaign(r.Context(), chi.URLParam(r, "id")); err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.StartCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, res)
}

type campaignAction func(ctx context.Context, id string) (*model.Campaign, error)

func (c *CampaignController) transition(action campaignAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaign, err := action(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			Fail(w, r, err)
			return
		}
		Success(w, http.StatusOK, campaign)
	}
}

func (c *CampaignController) PauseCampaign() http.HandlerFunc {
	return c.transition(c.CampaignService.PauseCampaign)
}

func (c *CampaignController) ResumeCampaign() http.HandlerFunc {
	return c.transition(c.CampaignService.ResumeCampaign)
}

func (c *CampaignController) CompleteCampaign() http.HandlerFunc {
	return c.transition(c.CampaignService.CompleteCampaign)
}

func (c *CampaignController) ArchiveCampaign() http.HandlerFunc {
	return c.transition(c.CampaignService.ArchiveCampaign)
}

func (c *CampaignController) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.DuplicateCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusCreated, campaign)
}

// SendCampaign delivers the queued recipients of a sending campaign. Body is optional: {"from": "..."}.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From string `json:"from"`
	}
	if r.ContentLength != 0 {
		if err := decode(w, r, &body); err != nil {
			Fail(w, r, err)
			return
		}
	}
	res, err := c.EmailService.SendCampaign(r.Context(), chi.URLParam(r, "id"), body.From)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, res)
}

func (c *CampaignController) PreviewAudience(w http.ResponseWriter, r *http.Request) {
	var f model.AudienceFilter
	if err := decode(w, r, &f); err != nil {
		Fail(w, r, err)
		return
	}
	preview, err := c.CampaignService.PreviewAudience(r.Context(), f)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, preview)
}

func (c *CampaignController) Logs(w http.ResponseWriter, r *http.Request) {
	logs, p, err := c.CampaignService.ListLogs(r.Context(), chi.URLParam(r, "id"),
		model.LogStatus(r.URL.Query().Get("status")), pageFrom(r))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Paged(w, logs, p)
}

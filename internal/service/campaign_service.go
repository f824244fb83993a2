// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/metrics"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	LogRepo      repository.CampaignLogRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Log          *slog.Logger
	Now          func() time.Time
}

func NewCampaignService(
	campaigns repository.CampaignRepositoryInterface,
	logs repository.CampaignLogRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	logger *slog.Logger,
) *CampaignService {
	return &CampaignService{
		CampaignRepo: campaigns,
		LogRepo:      logs,
		ContactRepo:  contacts,
		TemplateRepo: templates,
		Log:          moduleLogger(logger, "campaigns"),
		Now:          time.Now,
	}
}

type CampaignInput struct {
	Name           string               `json:"name"`
	Objective      *string              `json:"objective,omitempty"`
	TemplateCode   *string              `json:"template_code,omitempty"`
	ScheduledAt    *time.Time           `json:"scheduled_at,omitempty"`
	AudienceFilter model.AudienceFilter `json:"audience_filter"`
}

// CampaignPatch is sparse. Status is accepted here and checked against the full enum.
type CampaignPatch struct {
	Name           *string               `json:"name,omitempty"`
	Objective      *string               `json:"objective,omitempty"`
	TemplateCode   *string               `json:"template_code,omitempty"`
	ScheduledAt    *time.Time            `json:"scheduled_at,omitempty"`
	AudienceFilter *model.AudienceFilter `json:"audience_filter,omitempty"`
	Status         *model.CampaignStatus `json:"status,omitempty"`
}

type CampaignDetails struct {
	model.CampaignWithRates
	LogCounts map[model.LogStatus]int `json:"log_counts"`
}

type StartResult struct {
	CampaignID      string `json:"campaign_id"`
	TotalRecipients int    `json:"total_recipients"`
}

type AudiencePreview struct {
	Count  int              `json:"count"`
	Sample []*model.Contact `json:"sample"`
}

const previewSampleSize = 5

func validateFilter(f model.AudienceFilter) error {
	var errs appErrors.ValidationErrors
	for _, s := range f.Statuses {
		if !s.Valid() {
			errs = append(errs, appErrors.FieldError{Field: "audience_filter.status", Value: string(s), Message: "is not a contact status"})
		}
	}
	for _, l := range f.EngagementLevels {
		if !l.Valid() {
			errs = append(errs, appErrors.FieldError{Field: "audience_filter.engagement_level", Value: string(l), Message: "is not an engagement level"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func cleanFilter(f model.AudienceFilter) model.AudienceFilter {
	f.Tags = model.MergeTags(nil, f.Tags)
	f.ExcludeTemplates = model.MergeTags(nil, f.ExcludeTemplates)
	return f
}

func (s *CampaignService) checkTemplate(ctx context.Context, code *string) (*string, error) {
	if code == nil || strings.TrimSpace(*code) == "" {
		return nil, nil
	}
	normalized := normalizeCode(*code)
	exists, err := s.TemplateRepo.Exists(ctx, normalized)
	if err != nil {
		return nil, appErrors.Internal("check template", err)
	}
	if !exists {
		return nil, appErrors.Validation("template_code", fmt.Sprintf("template %s does not exist", normalized))
	}
	return &normalized, nil
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, appErrors.Validation("name", "is required")
	}
	if err := validateFilter(in.AudienceFilter); err != nil {
		return nil, err
	}
	code, err := s.checkTemplate(ctx, in.TemplateCode)
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:           name,
		Objective:      trimPtr(in.Objective),
		Status:         model.CampaignDraft,
		TemplateCode:   code,
		ScheduledAt:    in.ScheduledAt,
		AudienceFilter: cleanFilter(in.AudienceFilter),
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, appErrors.Internal("create campaign", err)
	}
	s.Log.Info("campaign created", "event", "campaign.created", "campaign_id", c.ID)
	return c, nil
}

// GetCampaignDetails returns the campaign with derived rates and per-status log counts.
func (s *CampaignService) GetCampaignDetails(ctx context.Context, id string) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.LogRepo.StatusCounts(ctx, id)
	if err != nil {
		return nil, appErrors.Internal("count campaign logs", err)
	}
	return &CampaignDetails{CampaignWithRates: model.WithRates(*c), LogCounts: counts}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, f repository.CampaignListFilter) ([]model.CampaignWithRates, db.Pagination, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, db.Pagination{}, appErrors.Validation("status", fmt.Sprintf("unknown campaign status %q", f.Status))
	}
	f.Page = f.Page.Normalize()
	ptrs, total, err := s.CampaignRepo.List(ctx, f)
	if err != nil {
		return nil, db.Pagination{}, appErrors.Internal("list campaigns", err)
	}
	campaigns := make([]model.CampaignWithRates, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = model.WithRates(*c)
	}
	return campaigns, db.NewPagination(f.Page, total), nil
}

func guardError(action model.CampaignAction, from model.CampaignStatus) error {
	allowed := model.AllowedFrom(action)
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return appErrors.StateGuard("cannot %s a campaign in status %s (allowed from: %s)", action, from, strings.Join(names, ", "))
}

func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, p CampaignPatch) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(model.ActionUpdate, c.Status) {
		return nil, guardError(model.ActionUpdate, c.Status)
	}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, appErrors.Validation("name", "cannot be empty")
		}
		c.Name = name
	}
	if p.Objective != nil {
		c.Objective = trimPtr(p.Objective)
	}
	if p.TemplateCode != nil {
		code, err := s.checkTemplate(ctx, p.TemplateCode)
		if err != nil {
			return nil, err
		}
		c.TemplateCode = code
	}
	if p.ScheduledAt != nil {
		c.ScheduledAt = p.ScheduledAt
	}
	if p.AudienceFilter != nil {
		if err := validateFilter(*p.AudienceFilter); err != nil {
			return nil, err
		}
		c.AudienceFilter = cleanFilter(*p.AudienceFilter)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, appErrors.Validation("status", fmt.Sprintf("unknown campaign status %q", *p.Status))
		}
		c.Status = *p.Status
	}
	if c.Status == model.CampaignScheduled && c.ScheduledAt == nil {
		return nil, appErrors.Validation("scheduled_at", "is required for a scheduled campaign")
	}

	if err := s.CampaignRepo.Update(ctx, c, model.AllowedFrom(model.ActionUpdate)); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCampaign hard-deletes a draft. Any other status is refused and the row stays.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanTransition(model.ActionDelete, c.Status) {
		return guardError(model.ActionDelete, c.Status)
	}
	if err := s.CampaignRepo.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.Log.Info("campaign deleted", "event", "campaign.deleted", "campaign_id", id)
	return nil
}

// StartCampaign queues the audience and moves the campaign to sending.
// total_recipients is the number of rows actually queued, which may differ from a prior preview.
func (s *CampaignService) StartCampaign(ctx context.Context, id string) (*StartResult, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(model.ActionStart, c.Status) {
		return nil, guardError(model.ActionStart, c.Status)
	}
	if c.TemplateCode == nil || *c.TemplateCode == "" {
		return nil, appErrors.StateGuard("campaign has no template")
	}
	size, err := s.ContactRepo.CountAudience(ctx, c.AudienceFilter, repository.ScopeStart)
	if err != nil {
		return nil, appErrors.Internal("count audience", err)
	}
	if size == 0 {
		return nil, appErrors.StateGuard("campaign audience is empty")
	}

	queued, err := s.CampaignRepo.Start(ctx, id, c.AudienceFilter)
	if err != nil {
		if appErrors.Is(err, appErrors.KindState) {
			return nil, err
		}
		return nil, appErrors.Internal("start campaign", err)
	}

	metrics.RecordCampaignStarted()
	s.Log.Info("campaign started", "event", "campaign.started", "campaign_id", id, "queued", queued, "previewed", size)
	return &StartResult{CampaignID: id, TotalRecipients: queued}, nil
}

func (s *CampaignService) transition(ctx context.Context, id string, action model.CampaignAction) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(action, c.Status) {
		return nil, guardError(action, c.Status)
	}
	to, _ := model.TargetStatus(action)
	if err := s.CampaignRepo.TransitionStatus(ctx, id, to, model.AllowedFrom(action)); err != nil {
		return nil, err
	}
	s.Log.Info("campaign status changed", "event", "campaign."+string(action), "campaign_id", id, "from", c.Status, "to", to)
	return s.CampaignRepo.GetByID(ctx, id)
}

func (s *CampaignService) PauseCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.transition(ctx, id, model.ActionPause)
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.transition(ctx, id, model.ActionResume)
}

func (s *CampaignService) CompleteCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.transition(ctx, id, model.ActionComplete)
}

func (s *CampaignService) ArchiveCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.transition(ctx, id, model.ActionArchive)
}

// DuplicateCampaign copies name, objective, template and audience into a new draft.
func (s *CampaignService) DuplicateCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	src, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c := &model.Campaign{
		Name:           src.Name + " (Copy)",
		Objective:      src.Objective,
		Status:         model.CampaignDraft,
		TemplateCode:   src.TemplateCode,
		AudienceFilter: src.AudienceFilter,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, appErrors.Internal("duplicate campaign", err)
	}
	s.Log.Info("campaign duplicated", "event", "campaign.duplicated", "campaign_id", c.ID, "source_id", id)
	return c, nil
}

// PreviewAudience counts the contacts the filter selects, honouring status and engagement lists.
func (s *CampaignService) PreviewAudience(ctx context.Context, f model.AudienceFilter) (*AudiencePreview, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	count, sample, err := s.ContactRepo.PreviewAudience(ctx, cleanFilter(f), previewSampleSize)
	if err != nil {
		return nil, appErrors.Internal("preview audience", err)
	}
	return &AudiencePreview{Count: count, Sample: sample}, nil
}

func (s *CampaignService) ListLogs(ctx context.Context, id string, status model.LogStatus, page db.Page) ([]*model.CampaignLog, db.Pagination, error) {
	if status != "" && !status.Valid() {
		return nil, db.Pagination{}, appErrors.Validation("status", fmt.Sprintf("unknown log status %q", status))
	}
	if _, err := s.CampaignRepo.GetByID(ctx, id); err != nil {
		return nil, db.Pagination{}, err
	}
	page = page.Normalize()
	logs, total, err := s.LogRepo.ListByCampaign(ctx, id, status, page)
	if err != nil {
		return nil, db.Pagination{}, appErrors.Internal("list campaign logs", err)
	}
	return logs, db.NewPagination(page, total), nil
}

// RecordStat bumps one webhook counter by one.
func (s *CampaignService) RecordStat(ctx context.Context, id string, stat model.CampaignStat) error {
	return s.CampaignRepo.IncrementStat(ctx, id, stat)
}

// StartDueScheduled starts every scheduled campaign whose time has come.
// A failing campaign is logged and skipped.
func (s *CampaignService) StartDueScheduled(ctx context.Context) (int, error) {
	due, err := s.CampaignRepo.ListDueScheduled(ctx, s.Now())
	if err != nil {
		return 0, appErrors.Internal("list scheduled campaigns", err)
	}
	started := 0
	for _, c := range due {
		if _, err := s.StartCampaign(ctx, c.ID); err != nil {
			s.Log.Warn("scheduled start failed", "event", "campaign.scheduled_start_failed", "campaign_id", c.ID, "error", err)
			continue
		}
		started++
	}
	return started, nil
}

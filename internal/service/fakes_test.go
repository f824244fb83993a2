package service_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	"github.com/unclebandit/marketing-dashboard/internal/email"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

// In-memory repositories. Each embeds its interface so a call to a method the
// test did not expect panics instead of silently succeeding.

type fakeCampaignRepo struct {
	repository.CampaignRepositoryInterface
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	queued    map[string]map[string]bool
	audience  []string
	nextID    int
}

func newFakeCampaignRepo(campaigns ...*model.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: map[string]*model.Campaign{}, queued: map[string]map[string]bool{}}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = fmt.Sprintf("new-%d", r.nextID)
	c.CreatedAt = time.Now()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) List(_ context.Context, f repository.CampaignListFilter) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Campaign
	for _, c := range r.campaigns {
		if f.Status == "" || c.Status == f.Status {
			all = append(all, c)
		}
	}
	slices.SortFunc(all, func(a, b *model.Campaign) int { return b.CreatedAt.Compare(a.CreatedAt) })
	start := min(f.Page.Offset(), len(all))
	end := min(start+f.Page.Normalize().PageSize, len(all))
	return all[start:end], len(all), nil
}

func (r *fakeCampaignRepo) guarded(id string, allowed []model.CampaignStatus) (*model.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if !slices.Contains(allowed, c.Status) {
		return nil, repository.ErrStatusChanged
	}
	return c, nil
}

func (r *fakeCampaignRepo) Update(_ context.Context, c *model.Campaign, allowed []model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.guarded(c.ID, allowed); err != nil {
		return err
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) TransitionStatus(_ context.Context, id string, to model.CampaignStatus, allowed []model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.guarded(id, allowed)
	if err != nil {
		return err
	}
	c.Status = to
	return nil
}

func (r *fakeCampaignRepo) DeleteDraft(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.guarded(id, []model.CampaignStatus{model.CampaignDraft}); err != nil {
		return err
	}
	delete(r.campaigns, id)
	return nil
}

// Start mirrors the insert-then-guarded-update transaction: rows are only kept when the update succeeds.
func (r *fakeCampaignRepo) Start(_ context.Context, id string, _ model.AudienceFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.guarded(id, model.AllowedFrom(model.ActionStart))
	if err != nil {
		return 0, err
	}
	if r.queued[id] == nil {
		r.queued[id] = map[string]bool{}
	}
	n := 0
	for _, contactID := range r.audience {
		if !r.queued[id][contactID] {
			r.queued[id][contactID] = true
			n++
		}
	}
	now := time.Now()
	c.Status = model.CampaignSending
	c.StartedAt = &now
	c.TotalRecipients = n
	return n, nil
}

func (r *fakeCampaignRepo) IncrementStat(_ context.Context, id string, stat model.CampaignStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	switch stat {
	case model.StatSent:
		c.StatsSent++
	case model.StatDelivered:
		c.StatsDelivered++
	case model.StatOpened:
		c.StatsOpened++
	case model.StatClicked:
		c.StatsClicked++
	case model.StatBounced:
		c.StatsBounced++
	}
	return nil
}

func (r *fakeCampaignRepo) ListDueScheduled(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.Campaign
	for _, c := range r.campaigns {
		if c.Status == model.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (r *fakeCampaignRepo) status(id string) model.CampaignStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		return c.Status
	}
	return ""
}

type fakeContactRepo struct {
	repository.ContactRepositoryInterface
	mu           sync.Mutex
	byEmail      map[string]*model.Contact
	audienceSize int
	failEmail    string
}

func newFakeContactRepo(contacts ...*model.Contact) *fakeContactRepo {
	r := &fakeContactRepo{byEmail: map[string]*model.Contact{}}
	for _, c := range contacts {
		r.byEmail[c.Email] = c
	}
	return r
}

func (r *fakeContactRepo) Create(_ context.Context, c *model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[c.Email]; ok {
		return appErrors.Conflict("a contact with this email already exists")
	}
	c.ID = "ct-" + c.Email
	r.byEmail[c.Email] = c
	return nil
}

func (r *fakeContactRepo) FindByEmails(_ context.Context, emails []string) ([]*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Contact{}
	for _, e := range emails {
		if c, ok := r.byEmail[e]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContactRepo) UpsertImported(_ context.Context, row repository.ImportedContact, source, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.Email == r.failEmail {
		return false, fmt.Errorf("connection reset")
	}
	if c, ok := r.byEmail[row.Email]; ok {
		c.Tags = model.MergeTags(c.Tags, row.Tags)
		return false, nil
	}
	first, last := row.FirstName, row.LastName
	r.byEmail[row.Email] = &model.Contact{
		ID:               "ct-" + row.Email,
		Email:            row.Email,
		FirstName:        &first,
		LastName:         &last,
		Tags:             row.Tags,
		Source:           source,
		Status:           model.ContactActive,
		EngagementLevel:  model.EngagementNone,
		UnsubscribeToken: token,
	}
	return true, nil
}

func (r *fakeContactRepo) UpdateEngagement(_ context.Context, email string, level model.EngagementLevel, templateCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byEmail[email]
	if !ok {
		return false, nil
	}
	c.EngagementLevel = model.UpgradeEngagement(c.EngagementLevel, level)
	if templateCode != "" {
		c.TemplatesReceived = model.MergeTags(c.TemplatesReceived, []string{templateCode})
	}
	return true, nil
}

func (r *fakeContactRepo) SetStatusByEmail(_ context.Context, email string, status model.ContactStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byEmail[email]
	if !ok {
		return nil
	}
	if c.Status == model.ContactActive || (c.Status == model.ContactBounced && status == model.ContactComplained) {
		c.Status = status
	}
	return nil
}

func (r *fakeContactRepo) Unsubscribe(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byEmail {
		if c.UnsubscribeToken == token && c.Status == model.ContactActive {
			c.Status = model.ContactUnsubscribed
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeContactRepo) CountAudience(context.Context, model.AudienceFilter, repository.AudienceScope) (int, error) {
	return r.audienceSize, nil
}

func (r *fakeContactRepo) get(email string) *model.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email]
}

type fakeLogRepo struct {
	repository.CampaignLogRepositoryInterface
	mu      sync.Mutex
	queued  []model.QueuedRecipient
	sent    map[string]string
	failed  map[string]string
	byMsgID map[string]*model.CampaignLog
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{sent: map[string]string{}, failed: map[string]string{}, byMsgID: map[string]*model.CampaignLog{}}
}

func (r *fakeLogRepo) StatusCounts(context.Context, string) (map[model.LogStatus]int, error) {
	counts := map[model.LogStatus]int{}
	for _, s := range model.LogStatuses {
		counts[s] = 0
	}
	counts[model.LogQueued] = len(r.queued)
	return counts, nil
}

func (r *fakeLogRepo) ListQueued(_ context.Context, _ string, limit int) ([]model.QueuedRecipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.QueuedRecipient
	for _, q := range r.queued {
		if _, done := r.sent[q.LogID]; done {
			continue
		}
		if _, done := r.failed[q.LogID]; done {
			continue
		}
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeLogRepo) MarkSent(_ context.Context, logID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[logID] = messageID
	return nil
}

func (r *fakeLogRepo) MarkFailed(_ context.Context, logID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[logID] = reason
	return nil
}

func (r *fakeLogRepo) ApplyEvent(_ context.Context, messageID string, status model.LogStatus) (*model.CampaignLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byMsgID[messageID]
	if !ok {
		return nil, nil
	}
	if l.Status != model.LogFailed {
		l.Status = status
	}
	cp := *l
	return &cp, nil
}

type fakeTemplateRepo struct {
	repository.TemplateRepositoryInterface
	mu        sync.Mutex
	templates map[string]*model.EmailTemplate
}

func newFakeTemplateRepo(templates ...*model.EmailTemplate) *fakeTemplateRepo {
	r := &fakeTemplateRepo{templates: map[string]*model.EmailTemplate{}}
	for _, t := range templates {
		r.templates[t.Code] = t
	}
	return r
}

func (r *fakeTemplateRepo) Exists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.templates[code]
	return ok, nil
}

func (r *fakeTemplateRepo) GetByCode(_ context.Context, code string) (*model.EmailTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[code]
	if !ok {
		return nil, appErrors.NotFound("template", code)
	}
	return t, nil
}

func (r *fakeTemplateRepo) Create(_ context.Context, t *model.EmailTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.Code]; ok {
		return appErrors.Conflict("template code already exists")
	}
	r.templates[t.Code] = t
	return nil
}

func (r *fakeTemplateRepo) FindByContent(_ context.Context, subject, htmlBody string) (*model.EmailTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.Subject == subject && t.HTMLBody == htmlBody {
			return t, nil
		}
	}
	return nil, nil
}

type fakeUserRepo struct {
	repository.UserRepositoryInterface
	mu    sync.Mutex
	users map[string]*model.AppUser
	perms map[model.Role][]model.Page
}

func newFakeUserRepo(users ...*model.AppUser) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*model.AppUser{}, perms: map[model.Role][]model.Page{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.AppUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, appErrors.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) Ensure(_ context.Context, nu repository.NewUser) (*model.AppUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[nu.ID]; ok {
		u.Email = nu.Email
		cp := *u
		return &cp, nil
	}
	u := &model.AppUser{ID: nu.ID, Email: nu.Email, DisplayName: nu.DisplayName, Role: nu.Role, IsActive: true}
	r.users[nu.ID] = u
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) List(context.Context) ([]*model.AppUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AppUser
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateRole(_ context.Context, id string, role *model.Role) (*model.AppUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, appErrors.NotFound("user", id)
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) SetActive(_ context.Context, id string, active bool) (*model.AppUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, appErrors.NotFound("user", id)
	}
	u.IsActive = active
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) PagesForRole(_ context.Context, role model.Role) ([]model.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Page{}, r.perms[role]...), nil
}

func (r *fakeUserRepo) ReplacePermissions(_ context.Context, role model.Role, pages []model.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perms[role] = pages
	return nil
}

// mockProvider records provider calls through testify's mock.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Send(ctx context.Context, msg email.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) SendBatch(ctx context.Context, msgs []email.Message) ([]email.BatchResult, error) {
	args := m.Called(ctx, msgs)
	if fn, ok := args.Get(0).(func(context.Context, []email.Message) []email.BatchResult); ok {
		return fn(ctx, msgs), args.Error(1)
	}
	res, _ := args.Get(0).([]email.BatchResult)
	return res, args.Error(1)
}

func strPtr(s string) *string { return &s }

func page(n, per int) db.Page { return db.Page{Page: n, PageSize: per} }

package service

import (
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/metrics"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

type ContactService struct {
	Repo repository.ContactRepositoryInterface
	Log  *slog.Logger
}

func NewContactService(repo repository.ContactRepositoryInterface, logger *slog.Logger) *ContactService {
	return &ContactService{Repo: repo, Log: moduleLogger(logger, "contacts")}
}

type ContactInput struct {
	Email     string              `json:"email"`
	FirstName *string             `json:"first_name,omitempty"`
	LastName  *string             `json:"last_name,omitempty"`
	Source    string              `json:"source,omitempty"`
	Tags      []string            `json:"tags,omitempty"`
	Status    model.ContactStatus `json:"status,omitempty"`
}

// ContactPatch is sparse: only non-nil fields are written.
type ContactPatch struct {
	FirstName *string              `json:"first_name,omitempty"`
	LastName  *string              `json:"last_name,omitempty"`
	Source    *string              `json:"source,omitempty"`
	Tags      *[]string            `json:"tags,omitempty"`
	Status    *model.ContactStatus `json:"status,omitempty"`
}

// ImportRow is one parsed CSV line. Row is 1-based and counts the header.
type ImportRow struct {
	Row       int      `json:"row"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type ImportError struct {
	Row     int    `json:"row"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type ImportResult struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors"`
}

type DuplicateCheck struct {
	Existing []*model.Contact `json:"existing"`
	New      []string         `json:"new"`
}

// newUnsubscribeToken returns 32 random bytes as hex.
func newUnsubscribeToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *ContactService) List(ctx context.Context, f repository.ContactListFilter) ([]*model.Contact, db.Pagination, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, db.Pagination{}, appErrors.Validation("status", fmt.Sprintf("unknown contact status %q", f.Status))
	}
	if f.EngagementLevel != "" && !f.EngagementLevel.Valid() {
		return nil, db.Pagination{}, appErrors.Validation("engagement_level", fmt.Sprintf("unknown engagement level %q", f.EngagementLevel))
	}
	f.Page = f.Page.Normalize()
	contacts, total, err := s.Repo.List(ctx, f)
	if err != nil {
		return nil, db.Pagination{}, appErrors.Internal("list contacts", err)
	}
	return contacts, db.NewPagination(f.Page, total), nil
}

func (s *ContactService) Get(ctx context.Context, id string) (*model.Contact, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *ContactService) Create(ctx context.Context, in ContactInput) (*model.Contact, error) {
	email := model.NormalizeEmail(in.Email)
	if !ValidEmail(email) {
		return nil, appErrors.Validation("email", "a valid email address is required")
	}
	status := in.Status
	if status == "" {
		status = model.ContactActive
	}
	if !status.Valid() {
		return nil, appErrors.Validation("status", fmt.Sprintf("unknown contact status %q", status))
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "manual"
	}
	token, err := newUnsubscribeToken()
	if err != nil {
		return nil, appErrors.Internal("generate unsubscribe token", err)
	}

	c := &model.Contact{
		Email:             email,
		FirstName:         trimPtr(in.FirstName),
		LastName:          trimPtr(in.LastName),
		Source:            source,
		Tags:              model.MergeTags(nil, in.Tags),
		Status:            status,
		EngagementLevel:   model.EngagementNone,
		TemplatesReceived: []string{},
		UnsubscribeToken:  token,
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Log.Info("contact created", "event", "contact.created", "contact_id", c.ID)
	return c, nil
}

func (s *ContactService) Update(ctx context.Context, id string, p ContactPatch) (*model.Contact, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, appErrors.Validation("status", fmt.Sprintf("unknown contact status %q", *p.Status))
	}
	return s.Repo.Update(ctx, id, repository.ContactUpdate{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Source:    p.Source,
		Tags:      p.Tags,
		Status:    p.Status,
	})
}

func (s *ContactService) Delete(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

func (s *ContactService) ListTags(ctx context.Context) ([]string, error) {
	return s.Repo.DistinctTags(ctx)
}

// ImportContacts validates every row first and writes nothing if any row is invalid.
// Rows sharing an email are merged: the last non-empty name wins and tags are unioned.
// Write failures are reported per row and do not stop the batch.
func (s *ContactService) ImportContacts(ctx context.Context, rows []ImportRow, source string) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, appErrors.Validation("rows", "no contacts to import")
	}
	var invalid appErrors.ValidationErrors
	for i, r := range rows {
		row := r.Row
		if row == 0 {
			row = i + 1
		}
		email := model.NormalizeEmail(r.Email)
		switch {
		case email == "":
			invalid = append(invalid, appErrors.FieldError{Row: row, Field: "email", Message: "is required"})
		case !ValidEmail(email):
			invalid = append(invalid, appErrors.FieldError{Row: row, Field: "email", Value: r.Email, Message: "is not a valid email address"})
		}
	}
	if len(invalid) > 0 {
		return nil, invalid
	}

	source = strings.TrimSpace(source)
	if source == "" {
		source = "import"
	}

	merged := dedupeImport(rows)
	result := &ImportResult{Errors: []ImportError{}}
	for _, m := range merged {
		token, err := newUnsubscribeToken()
		if err == nil {
			var inserted bool
			inserted, err = s.Repo.UpsertImported(ctx, m.contact, source, token)
			if err == nil {
				if inserted {
					result.Inserted++
				} else {
					result.Updated++
				}
				continue
			}
		}
		result.Failed++
		result.Errors = append(result.Errors, ImportError{Row: m.row, Email: m.contact.Email, Message: "could not be saved"})
		s.Log.Error("import row failed", "event", "contact.import_row_failed", "row", m.row, "error", err)
	}

	metrics.RecordImport("inserted", result.Inserted)
	metrics.RecordImport("updated", result.Updated)
	metrics.RecordImport("failed", result.Failed)
	s.Log.Info("contacts imported", "event", "contact.imported", "source", source,
		"inserted", result.Inserted, "updated", result.Updated, "failed", result.Failed)
	return result, nil
}

type mergedRow struct {
	row     int
	contact repository.ImportedContact
}

func dedupeImport(rows []ImportRow) []mergedRow {
	index := make(map[string]int, len(rows))
	var out []mergedRow
	for i, r := range rows {
		row := r.Row
		if row == 0 {
			row = i + 1
		}
		email := model.NormalizeEmail(r.Email)
		first, last := strings.TrimSpace(r.FirstName), strings.TrimSpace(r.LastName)

		if j, ok := index[email]; ok {
			m := &out[j]
			m.row = row
			if first != "" {
				m.contact.FirstName = first
			}
			if last != "" {
				m.contact.LastName = last
			}
			m.contact.Tags = model.MergeTags(m.contact.Tags, r.Tags)
			continue
		}
		index[email] = len(out)
		out = append(out, mergedRow{row: row, contact: repository.ImportedContact{
			Email:     email,
			FirstName: first,
			LastName:  last,
			Tags:      model.MergeTags(nil, r.Tags),
		}})
	}
	return out
}

var csvHeaders = map[string]string{
	"email":        "email",
	"emailaddress": "email",
	"firstname":    "first_name",
	"first":        "first_name",
	"lastname":     "last_name",
	"last":         "last_name",
	"surname":      "last_name",
	"tags":         "tags",
	"tag":          "tags",
}

// headerKey folds "E-mail", "First Name" and "first_name" style headers onto one key.
func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer("_", "", " ", "", "-", "").Replace(h)
	return csvHeaders[h]
}

// ParseCSV reads an import file. Header names are matched loosely
// (email/Email/E-mail, first_name/First Name, ...). Blank lines are skipped.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, appErrors.Validation("file", "the file is empty")
	}
	if err != nil {
		return nil, appErrors.Validation("file", "could not read CSV: "+err.Error())
	}

	cols := map[string]int{}
	for i, h := range header {
		if key := headerKey(h); key != "" {
			if _, dup := cols[key]; !dup {
				cols[key] = i
			}
		}
	}
	if _, ok := cols["email"]; !ok {
		return nil, appErrors.Validation("file", "missing an email column")
	}

	field := func(rec []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []ImportRow
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, appErrors.Validation("file", fmt.Sprintf("line %d: %v", line, err))
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, ImportRow{
			Row:       line,
			Email:     field(rec, "email"),
			FirstName: field(rec, "first_name"),
			LastName:  field(rec, "last_name"),
			Tags:      splitTags(field(rec, "tags")),
		})
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func splitTags(cell string) []string {
	if cell == "" {
		return nil
	}
	return model.MergeTags(nil, strings.Split(cell, ","))
}

// ExportCSV writes every contact matching f with the same headers the importer reads.
func (s *ContactService) ExportCSV(ctx context.Context, w io.Writer, f repository.ContactListFilter) error {
	contacts, err := s.Repo.ListAll(ctx, f)
	if err != nil {
		return appErrors.Internal("export contacts", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"email", "first_name", "last_name", "tags", "status", "engagement_level", "source", "created_at"}); err != nil {
		return err
	}
	for _, c := range contacts {
		rec := []string{
			c.Email, deref(c.FirstName), deref(c.LastName), strings.Join(c.Tags, ","),
			string(c.Status), string(c.EngagementLevel), c.Source, c.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CheckDuplicates splits emails into stored contacts and addresses not seen before.
func (s *ContactService) CheckDuplicates(ctx context.Context, emails []string) (*DuplicateCheck, error) {
	seen := map[string]bool{}
	var unique []string
	for _, e := range emails {
		e = model.NormalizeEmail(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		unique = append(unique, e)
	}

	existing, err := s.Repo.FindByEmails(ctx, unique)
	if err != nil {
		return nil, appErrors.Internal("check duplicates", err)
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.Email] = true
	}
	out := &DuplicateCheck{Existing: existing, New: []string{}}
	for _, e := range unique {
		if !known[e] {
			out.New = append(out.New, e)
		}
	}
	return out, nil
}

func requireIDs(ids []string) error {
	if len(ids) == 0 {
		return appErrors.Validation("ids", "select at least one contact")
	}
	return nil
}

func (s *ContactService) AddTags(ctx context.Context, ids, tags []string) (int, error) {
	if err := requireIDs(ids); err != nil {
		return 0, err
	}
	tags = model.MergeTags(nil, tags)
	if len(tags) == 0 {
		return 0, appErrors.Validation("tags", "at least one tag is required")
	}
	return s.Repo.AddTags(ctx, ids, tags)
}

func (s *ContactService) RemoveTags(ctx context.Context, ids, tags []string) (int, error) {
	if err := requireIDs(ids); err != nil {
		return 0, err
	}
	tags = model.MergeTags(nil, tags)
	if len(tags) == 0 {
		return 0, appErrors.Validation("tags", "at least one tag is required")
	}
	return s.Repo.RemoveTags(ctx, ids, tags)
}

func (s *ContactService) SetStatus(ctx context.Context, ids []string, status model.ContactStatus) (int, error) {
	if err := requireIDs(ids); err != nil {
		return 0, err
	}
	if !status.Valid() {
		return 0, appErrors.Validation("status", fmt.Sprintf("unknown contact status %q", status))
	}
	return s.Repo.SetStatus(ctx, ids, status)
}

var ErrInvalidUnsubscribe = appErrors.Validation("token", "this unsubscribe link is invalid or has already been used")

// Unsubscribe answers the same way for unknown tokens and non-active contacts.
func (s *ContactService) Unsubscribe(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidUnsubscribe
	}
	ok, err := s.Repo.Unsubscribe(ctx, token)
	if err != nil {
		return appErrors.Internal("unsubscribe", err)
	}
	if !ok {
		return ErrInvalidUnsubscribe
	}
	s.Log.Info("contact unsubscribed", "event", "contact.unsubscribed")
	return nil
}

// UpdateEngagement upgrades the contact's level for a sent, opened or clicked event.
func (s *ContactService) UpdateEngagement(ctx context.Context, email string, level model.EngagementLevel, templateCode string) (bool, error) {
	return s.Repo.UpdateEngagement(ctx, model.NormalizeEmail(email), level, templateCode)
}

// internal/service/template_service.go
package service

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

var placeholderPattern = regexp.MustCompile(`(?i)\{\{\s*([a-z_]+)\s*\}\}`)

// RenderTemplate substitutes {{key}} placeholders case-insensitively.
// Placeholders without a value are left as written.
func RenderTemplate(template string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.ToLower(placeholderPattern.FindStringSubmatch(m)[1])
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// RecipientData builds the placeholder values for one recipient.
// {{name}} falls back to the local-part of the address when no name is known.
func RecipientData(email, name string) map[string]string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = model.LocalPart(email)
	}
	first := name
	if i := strings.IndexByte(name, ' '); i > 0 {
		first = name[:i]
	}
	return map[string]string{
		"email":      email,
		"name":       name,
		"first_name": first,
	}
}

type TemplateInput struct {
	Code        string  `json:"code"`
	Subject     string  `json:"subject"`
	HTMLBody    string  `json:"html_body"`
	Description *string `json:"description,omitempty"`
}

type TemplateService struct {
	Repo repository.TemplateRepositoryInterface
	Log  *slog.Logger
	Now  func() time.Time
}

func NewTemplateService(repo repository.TemplateRepositoryInterface, logger *slog.Logger) *TemplateService {
	return &TemplateService{Repo: repo, Log: moduleLogger(logger, "templates"), Now: time.Now}
}

var templateCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,63}$`)

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateTemplate(in TemplateInput, withCode bool) error {
	var errs appErrors.ValidationErrors
	if withCode && !templateCodePattern.MatchString(normalizeCode(in.Code)) {
		errs = append(errs, appErrors.FieldError{Field: "code", Value: in.Code, Message: "must be 1-64 letters, digits, '_' or '-'"})
	}
	if strings.TrimSpace(in.Subject) == "" {
		errs = append(errs, appErrors.FieldError{Field: "subject", Message: "is required"})
	}
	if strings.TrimSpace(in.HTMLBody) == "" {
		errs = append(errs, appErrors.FieldError{Field: "html_body", Message: "is required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *TemplateService) List(ctx context.Context, search string, sort db.Sort) ([]*model.EmailTemplate, error) {
	return s.Repo.List(ctx, repository.TemplateListFilter{Search: search, Sort: sort})
}

func (s *TemplateService) Get(ctx context.Context, code string) (*model.EmailTemplate, error) {
	return s.Repo.GetByCode(ctx, normalizeCode(code))
}

func (s *TemplateService) Create(ctx context.Context, in TemplateInput) (*model.EmailTemplate, error) {
	if err := validateTemplate(in, true); err != nil {
		return nil, err
	}
	t := &model.EmailTemplate{
		Code:        normalizeCode(in.Code),
		Subject:     strings.TrimSpace(in.Subject),
		HTMLBody:    in.HTMLBody,
		Description: in.Description,
	}
	if err := s.Repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.Log.Info("template created", "event", "template.created", "code", t.Code)
	return t, nil
}

// Update overwrites subject, body and description in place. The code never changes.
func (s *TemplateService) Update(ctx context.Context, code string, in TemplateInput) (*model.EmailTemplate, error) {
	if err := validateTemplate(in, false); err != nil {
		return nil, err
	}
	t := &model.EmailTemplate{
		Code:        normalizeCode(code),
		Subject:     strings.TrimSpace(in.Subject),
		HTMLBody:    in.HTMLBody,
		Description: in.Description,
	}
	if err := s.Repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Delete(ctx context.Context, code string) error {
	return s.Repo.Delete(ctx, normalizeCode(code))
}

func (s *TemplateService) FindByContent(ctx context.Context, subject, htmlBody string) (*model.EmailTemplate, error) {
	return s.Repo.FindByContent(ctx, strings.TrimSpace(subject), htmlBody)
}

const (
	codeAttempts = 5
	// codeSuffixLen covers "_" plus the longer of the two suffix forms.
	codeSuffixLen = 11
	codeMaxLen    = 64
)

var (
	codeWordPattern = regexp.MustCompile(`[A-Za-z0-9]+`)
	codeStopWords   = map[string]bool{
		"A": true, "AN": true, "THE": true, "AND": true, "OR": true, "OF": true, "TO": true,
		"FOR": true, "IN": true, "ON": true, "WITH": true, "YOUR": true, "YOU": true, "IS": true,
	}
)

// codeBase is the upper snake-case form of the first three meaningful subject words.
func codeBase(subject string) string {
	var words []string
	for _, w := range codeWordPattern.FindAllString(strings.ToUpper(subject), -1) {
		if codeStopWords[w] {
			continue
		}
		words = append(words, w)
		if len(words) == 3 {
			break
		}
	}
	if len(words) == 0 {
		return "TEMPLATE"
	}
	base := strings.Join(words, "_")
	if len(base) > codeMaxLen-codeSuffixLen {
		base = strings.TrimRight(base[:codeMaxLen-codeSuffixLen], "_")
	}
	return base
}

// GenerateCode derives a readable code from subject plus a base-36 timestamp.
// After codeAttempts collisions it switches to a random suffix.
func (s *TemplateService) GenerateCode(ctx context.Context, subject string) (string, error) {
	base := codeBase(subject)
	ts := s.Now().UnixMilli()
	for i := 0; i < codeAttempts; i++ {
		code := base + "_" + strings.ToUpper(strconv.FormatInt(ts+int64(i), 36))
		exists, err := s.Repo.Exists(ctx, code)
		if err != nil {
			return "", appErrors.Internal("check template code", err)
		}
		if !exists {
			return code, nil
		}
	}

	code := base + "_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	exists, err := s.Repo.Exists(ctx, code)
	if err != nil {
		return "", appErrors.Internal("check template code", err)
	}
	if exists {
		return "", appErrors.Conflict("could not generate a unique template code, try again")
	}
	return code, nil
}

// SaveContent stores subject and body as a template unless an identical one exists.
// It returns the code of the stored or matching template.
func (s *TemplateService) SaveContent(ctx context.Context, subject, htmlBody string) (string, error) {
	if existing, err := s.FindByContent(ctx, subject, htmlBody); err != nil {
		return "", err
	} else if existing != nil {
		return existing.Code, nil
	}
	code, err := s.GenerateCode(ctx, subject)
	if err != nil {
		return "", err
	}
	t, err := s.Create(ctx, TemplateInput{Code: code, Subject: subject, HTMLBody: htmlBody})
	if err != nil {
		return "", err
	}
	return t.Code, nil
}

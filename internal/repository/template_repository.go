package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

type TemplateListFilter struct {
	Search string
	Sort   db.Sort
}

type TemplateRepositoryInterface interface {
	List(ctx context.Context, f TemplateListFilter) ([]*model.EmailTemplate, error)
	GetByCode(ctx context.Context, code string) (*model.EmailTemplate, error)
	Create(ctx context.Context, t *model.EmailTemplate) error
	Update(ctx context.Context, t *model.EmailTemplate) error
	Delete(ctx context.Context, code string) error
	FindByContent(ctx context.Context, subject, htmlBody string) (*model.EmailTemplate, error)
	Exists(ctx context.Context, code string) (bool, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func NewTemplateRepository(pool *sql.DB) *TemplateRepository {
	return &TemplateRepository{DB: pool}
}

var templateSortColumns = db.SortColumns{
	"code":       "code",
	"subject":    "subject",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

const templateColumns = `code, subject, html_body, description, created_at, updated_at`

func scanTemplate(row rowScanner) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	if err := row.Scan(&t.Code, &t.Subject, &t.HTMLBody, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) List(ctx context.Context, f TemplateListFilter) ([]*model.EmailTemplate, error) {
	var args db.Args
	var where db.Where
	if s := strings.TrimSpace(f.Search); s != "" {
		p := args.Add("%" + s + "%")
		where.And("(code ILIKE " + p + " OR subject ILIKE " + p + " OR description ILIKE " + p + ")")
	}
	query := `SELECT ` + templateColumns + ` FROM email_templates` + where.String() +
		db.OrderBy(f.Sort, templateSortColumns, "updated_at")

	rows, err := r.DB.QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*model.EmailTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) GetByCode(ctx context.Context, code string) (*model.EmailTemplate, error) {
	t, err := scanTemplate(r.DB.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NotFound("template", code)
	}
	return t, err
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.EmailTemplate) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO email_templates (code, subject, html_body, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`, t.Code, t.Subject, t.HTMLBody, t.Description).Scan(&t.CreatedAt, &t.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return appErrors.Conflict("template code " + t.Code + " already exists")
	}
	return err
}

// Update rewrites subject, body and description. The code is immutable.
func (r *TemplateRepository) Update(ctx context.Context, t *model.EmailTemplate) error {
	err := r.DB.QueryRowContext(ctx, `
		UPDATE email_templates
		SET subject = $2, html_body = $3, description = $4, updated_at = NOW()
		WHERE code = $1
		RETURNING created_at, updated_at
	`, t.Code, t.Subject, t.HTMLBody, t.Description).Scan(&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NotFound("template", t.Code)
	}
	return err
}

func (r *TemplateRepository) Delete(ctx context.Context, code string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM email_templates WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NotFound("template", code)
	}
	return nil
}

// FindByContent returns a template with exactly this subject and body, or nil.
func (r *TemplateRepository) FindByContent(ctx context.Context, subject, htmlBody string) (*model.EmailTemplate, error) {
	t, err := scanTemplate(r.DB.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM email_templates
		WHERE subject = $1 AND html_body = $2
		ORDER BY created_at
		LIMIT 1
	`, subject, htmlBody))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TemplateRepository) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_templates WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)

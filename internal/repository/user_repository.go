package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

// NewUser carries what the identity provider knows about a first-time user.
type NewUser struct {
	ID          string
	Email       string
	DisplayName *string
	AvatarURL   *string
	Role        *model.Role
}

type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.AppUser, error)
	GetByEmail(ctx context.Context, email string) (*model.AppUser, error)
	Ensure(ctx context.Context, u NewUser) (*model.AppUser, error)
	List(ctx context.Context) ([]*model.AppUser, error)
	UpdateRole(ctx context.Context, id string, role *model.Role) (*model.AppUser, error)
	SetActive(ctx context.Context, id string, active bool) (*model.AppUser, error)
	PagesForRole(ctx context.Context, role model.Role) ([]model.Page, error)
	ListPermissions(ctx context.Context) ([]model.RolePermission, error)
	ReplacePermissions(ctx context.Context, role model.Role, pages []model.Page) error
}

type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(pool *sql.DB) *UserRepository {
	return &UserRepository{DB: pool}
}

const userColumns = `id, email, display_name, avatar_url, role, is_active, created_at, updated_at`

func scanUser(row rowScanner) (*model.AppUser, error) {
	var u model.AppUser
	var role sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if role.Valid {
		r := model.Role(role.String)
		u.Role = &r
	}
	return &u, nil
}

func roleParam(r *model.Role) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.AppUser, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NotFound("user", id)
	}
	return u, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.AppUser, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM app_users WHERE LOWER(email) = LOWER($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// Ensure inserts the user on first sight and refreshes the profile fields afterwards.
// Role and active flag of an existing row are left alone. When the provider has
// re-issued the account under a new id, the row holding the email is re-keyed to it
// so the user keeps their role.
func (r *UserRepository) Ensure(ctx context.Context, u NewUser) (*model.AppUser, error) {
	var out *model.AppUser
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE app_users SET id = $1, updated_at = NOW()
			WHERE LOWER(email) = LOWER($2) AND id <> $1
			  AND NOT EXISTS (SELECT 1 FROM app_users WHERE id = $1)`,
			u.ID, u.Email); err != nil {
			return err
		}
		var err error
		out, err = scanUser(tx.QueryRowContext(ctx, `
			INSERT INTO app_users (id, email, display_name, avatar_url, role, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE
			SET email = EXCLUDED.email,
			    display_name = COALESCE(EXCLUDED.display_name, app_users.display_name),
			    avatar_url = COALESCE(EXCLUDED.avatar_url, app_users.avatar_url),
			    updated_at = NOW()
			RETURNING `+userColumns,
			u.ID, u.Email, u.DisplayName, u.AvatarURL, roleParam(u.Role)))
		return err
	})
	if db.IsUniqueViolation(err) {
		// Both ids exist and the email is held by the other one.
		return nil, appErrors.Conflict("email " + u.Email + " belongs to another account")
	}
	return out, err
}

func (r *UserRepository) List(ctx context.Context) ([]*model.AppUser, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM app_users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*model.AppUser{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role *model.Role) (*model.AppUser, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `
		UPDATE app_users SET role = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+userColumns, id, roleParam(role)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NotFound("user", id)
	}
	return u, err
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) (*model.AppUser, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `
		UPDATE app_users SET is_active = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+userColumns, id, active))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NotFound("user", id)
	}
	return u, err
}

func (r *UserRepository) PagesForRole(ctx context.Context, role model.Role) ([]model.Page, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT page FROM role_permissions WHERE role = $1 ORDER BY page`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := []model.Page{}
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *UserRepository) ListPermissions(ctx context.Context) ([]model.RolePermission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role, page FROM role_permissions ORDER BY role, page`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []model.RolePermission{}
	for rows.Next() {
		var p model.RolePermission
		if err := rows.Scan(&p.Role, &p.Page); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ReplacePermissions swaps the role's page set in one transaction.
func (r *UserRepository) ReplacePermissions(ctx context.Context, role model.Role, pages []model.Page) error {
	names := make([]string, len(pages))
	for i, p := range pages {
		names[i] = string(p)
	}
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role = $1`, string(role)); err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role, page)
			SELECT $1, p FROM unnest($2::text[]) AS p
			ON CONFLICT DO NOTHING
		`, string(role), pq.Array(names))
		return err
	})
}

var _ UserRepositoryInterface = (*UserRepository)(nil)

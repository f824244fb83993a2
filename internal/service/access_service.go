package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/unclebandit/marketing-dashboard/internal/auth"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

var errNotSuperAdmin = appErrors.Forbidden("super admin access required")

// SuperAdmin is proof that VerifySuperAdmin accepted the caller. It can only be
// obtained from this package, and every admin action takes one.
type SuperAdmin struct {
	user *model.AppUser
}

func (a SuperAdmin) User() *model.AppUser { return a.user }

func (a SuperAdmin) check() error {
	if a.user == nil {
		return errNotSuperAdmin
	}
	return nil
}

type superAdminKey struct{}

func WithSuperAdmin(ctx context.Context, a SuperAdmin) context.Context {
	return context.WithValue(ctx, superAdminKey{}, a)
}

func SuperAdminFrom(ctx context.Context) (SuperAdmin, error) {
	a, ok := ctx.Value(superAdminKey{}).(SuperAdmin)
	if !ok {
		return SuperAdmin{}, errNotSuperAdmin
	}
	return a, a.check()
}

// Permissions is what the viewer may see.
type Permissions struct {
	Role  *model.Role  `json:"role"`
	Pages []model.Page `json:"pages"`
}

type AccessService struct {
	UserRepo       repository.UserRepositoryInterface
	MainAdminEmail string
	Log            *slog.Logger
}

func NewAccessService(users repository.UserRepositoryInterface, mainAdminEmail string, logger *slog.Logger) *AccessService {
	return &AccessService{
		UserRepo:       users,
		MainAdminEmail: model.NormalizeEmail(mainAdminEmail),
		Log:            moduleLogger(logger, "access"),
	}
}

func (s *AccessService) isMainAdmin(u *model.AppUser) bool {
	return s.MainAdminEmail != "" && model.NormalizeEmail(u.Email) == s.MainAdminEmail
}

// EnsureUser provisions the app user on first sight. New users get no role except the
// main admin, who is always super_admin.
func (s *AccessService) EnsureUser(ctx context.Context, id *auth.Identity) (*model.AppUser, error) {
	nu := repository.NewUser{
		ID:          id.ID,
		Email:       model.NormalizeEmail(id.Email),
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
	}
	mainAdmin := s.MainAdminEmail != "" && nu.Email == s.MainAdminEmail
	if mainAdmin {
		role := model.RoleSuperAdmin
		nu.Role = &role
	}
	u, err := s.UserRepo.Ensure(ctx, nu)
	if err != nil {
		return nil, appErrors.Internal("ensure user", err)
	}
	if mainAdmin && (!u.HasRole(model.RoleSuperAdmin) || !u.IsActive) {
		role := model.RoleSuperAdmin
		if u, err = s.UserRepo.UpdateRole(ctx, u.ID, &role); err != nil {
			return nil, appErrors.Internal("restore main admin role", err)
		}
		if !u.IsActive {
			if u, err = s.UserRepo.SetActive(ctx, u.ID, true); err != nil {
				return nil, appErrors.Internal("restore main admin", err)
			}
		}
		s.Log.Warn("main admin restored", "event", "access.main_admin_restored", "user_id", u.ID)
	}
	return u, nil
}

// VerifySuperAdmin succeeds only for an active super_admin.
func (s *AccessService) VerifySuperAdmin(ctx context.Context, u *model.AppUser) (SuperAdmin, error) {
	if u == nil {
		return SuperAdmin{}, appErrors.Unauthorized("not signed in")
	}
	fresh, err := s.UserRepo.GetByID(ctx, u.ID)
	if err != nil {
		if appErrors.Is(err, appErrors.KindNotFound) {
			return SuperAdmin{}, errNotSuperAdmin
		}
		return SuperAdmin{}, appErrors.Internal("load user", err)
	}
	if !fresh.IsActive || !fresh.HasRole(model.RoleSuperAdmin) {
		return SuperAdmin{}, errNotSuperAdmin
	}
	return SuperAdmin{user: fresh}, nil
}

// PagesFor resolves the viewer's pages. No role means no pages; super_admin sees everything.
func (s *AccessService) PagesFor(ctx context.Context, u *model.AppUser) ([]model.Page, error) {
	if u == nil || u.Role == nil {
		return []model.Page{}, nil
	}
	if *u.Role == model.RoleSuperAdmin {
		return append([]model.Page(nil), model.AllPages...), nil
	}
	pages, err := s.UserRepo.PagesForRole(ctx, *u.Role)
	if err != nil {
		return nil, appErrors.Internal("load role pages", err)
	}
	return pages, nil
}

func (s *AccessService) CanView(ctx context.Context, u *model.AppUser, page model.Page) (bool, error) {
	pages, err := s.PagesFor(ctx, u)
	if err != nil {
		return false, err
	}
	for _, p := range pages {
		if p == page {
			return true, nil
		}
	}
	return false, nil
}

func (s *AccessService) MyPermissions(ctx context.Context, u *model.AppUser) (*Permissions, error) {
	pages, err := s.PagesFor(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Permissions{Role: u.Role, Pages: pages}, nil
}

func (s *AccessService) ListUsers(ctx context.Context, admin SuperAdmin) ([]*model.AppUser, error) {
	if err := admin.check(); err != nil {
		return nil, err
	}
	users, err := s.UserRepo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal("list users", err)
	}
	return users, nil
}

// AssignRole sets or clears a user's role. super_admin is never assignable and the
// main admin's role never changes.
func (s *AccessService) AssignRole(ctx context.Context, admin SuperAdmin, userID string, role *model.Role) (*model.AppUser, error) {
	if err := admin.check(); err != nil {
		return nil, err
	}
	if role != nil && !role.Valid() {
		return nil, appErrors.Validation("role", fmt.Sprintf("unknown role %q", *role))
	}
	target, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.isMainAdmin(target) {
		return nil, appErrors.Forbidden("the main admin's role cannot be changed")
	}
	if role != nil && *role == model.RoleSuperAdmin {
		return nil, appErrors.Forbidden("super_admin cannot be assigned")
	}

	u, err := s.UserRepo.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	s.Log.Info("role assigned", "event", "access.role_assigned", "user_id", userID, "role", role, "by", admin.user.ID)
	return u, nil
}

// SetActive toggles a user. The main admin can never be deactivated.
func (s *AccessService) SetActive(ctx context.Context, admin SuperAdmin, userID string, active bool) (*model.AppUser, error) {
	if err := admin.check(); err != nil {
		return nil, err
	}
	target, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !active && s.isMainAdmin(target) {
		return nil, appErrors.Forbidden("the main admin cannot be deactivated")
	}
	u, err := s.UserRepo.SetActive(ctx, userID, active)
	if err != nil {
		return nil, err
	}
	s.Log.Info("user active changed", "event", "access.active_changed", "user_id", userID, "active", active, "by", admin.user.ID)
	return u, nil
}

func (s *AccessService) ListPermissions(ctx context.Context, admin SuperAdmin) ([]model.RolePermission, error) {
	if err := admin.check(); err != nil {
		return nil, err
	}
	perms, err := s.UserRepo.ListPermissions(ctx)
	if err != nil {
		return nil, appErrors.Internal("list permissions", err)
	}
	return perms, nil
}

// SetPermissions replaces the page set of role. super_admin's set is implicit and not editable.
func (s *AccessService) SetPermissions(ctx context.Context, admin SuperAdmin, role model.Role, pages []model.Page) ([]model.Page, error) {
	if err := admin.check(); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, appErrors.Validation("role", fmt.Sprintf("unknown role %q", role))
	}
	if role == model.RoleSuperAdmin {
		return nil, appErrors.Forbidden("super_admin permissions cannot be edited")
	}

	seen := make(map[model.Page]bool, len(pages))
	clean := make([]model.Page, 0, len(pages))
	var errs appErrors.ValidationErrors
	for _, p := range pages {
		p = model.Page(strings.TrimSpace(string(p)))
		if !p.Valid() {
			errs = append(errs, appErrors.FieldError{Field: "pages", Value: string(p), Message: "unknown page"})
			continue
		}
		if !seen[p] {
			seen[p] = true
			clean = append(clean, p)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if err := s.UserRepo.ReplacePermissions(ctx, role, clean); err != nil {
		return nil, appErrors.Internal("replace permissions", err)
	}
	s.Log.Info("permissions replaced", "event", "access.permissions_replaced", "role", role, "pages", len(clean), "by", admin.user.ID)
	return clean, nil
}

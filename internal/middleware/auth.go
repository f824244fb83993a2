package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/unclebandit/marketing-dashboard/internal/auth"
	"github.com/unclebandit/marketing-dashboard/internal/controller"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

// Access is the slice of the access service the guards need.
type Access interface {
	EnsureUser(ctx context.Context, id *auth.Identity) (*model.AppUser, error)
	VerifySuperAdmin(ctx context.Context, u *model.AppUser) (service.SuperAdmin, error)
	CanView(ctx context.Context, u *model.AppUser, page model.Page) (bool, error)
}

var _ Access = (*service.AccessService)(nil)

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Authenticate resolves the bearer token, provisions the app user and puts it on the context.
func Authenticate(verifier auth.Verifier, access Access) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				controller.Fail(w, r, appErrors.Unauthorized("missing bearer token"))
				return
			}
			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				controller.Fail(w, r, err)
				return
			}
			u, err := access.EnsureUser(r.Context(), id)
			if err != nil {
				controller.Fail(w, r, err)
				return
			}
			if !u.IsActive {
				controller.Fail(w, r, appErrors.Forbidden("account is deactivated"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
		})
	}
}

// RequireSuperAdmin guards a route group and hands the SuperAdmin capability to its handlers.
func RequireSuperAdmin(access Access) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := auth.MustUser(r.Context())
			if err != nil {
				controller.Fail(w, r, err)
				return
			}
			admin, err := access.VerifySuperAdmin(r.Context(), u)
			if err != nil {
				controller.Fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(service.WithSuperAdmin(r.Context(), admin)))
		})
	}
}

func RequirePage(access Access, page model.Page) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := auth.MustUser(r.Context())
			if err != nil {
				controller.Fail(w, r, err)
				return
			}
			ok, err := access.CanView(r.Context(), u, page)
			if err != nil {
				controller.Fail(w, r, err)
				return
			}
			if !ok {
				controller.Fail(w, r, appErrors.Forbidden("no access to "+string(page)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/marketing-dashboard/internal/auth"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

// AdminController serves the user and permission screens. Every admin route sits
// behind middleware.RequireSuperAdmin, which puts the capability on the context.
type AdminController struct {
	AccessService *service.AccessService
}

func (c *AdminController) MyPermissions(w http.ResponseWriter, r *http.Request) {
	u, err := auth.MustUser(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	perms, err := c.AccessService.MyPermissions(r.Context(), u)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, perms)
}

func (c *AdminController) ListUsers(w http.ResponseWriter, r *http.Request) {
	admin, err := service.SuperAdminFrom(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	users, err := c.AccessService.ListUsers(r.Context(), admin)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, users)
}

// AssignRole takes {"role": "admin"}; {"role": null} clears the role.
func (c *AdminController) AssignRole(w http.ResponseWriter, r *http.Request) {
	admin, err := service.SuperAdminFrom(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	var body struct {
		Role *model.Role `json:"role"`
	}
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	u, err := c.AccessService.AssignRole(r.Context(), admin, chi.URLParam(r, "id"), body.Role)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, u)
}

func (c *AdminController) SetActive(w http.ResponseWriter, r *http.Request) {
	admin, err := service.SuperAdminFrom(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	u, err := c.AccessService.SetActive(r.Context(), admin, chi.URLParam(r, "id"), body.Active)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, u)
}

func (c *AdminController) ListPermissions(w http.ResponseWriter, r *http.Request) {
	admin, err := service.SuperAdminFrom(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	perms, err := c.AccessService.ListPermissions(r.Context(), admin)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, perms)
}

func (c *AdminController) SetPermissions(w http.ResponseWriter, r *http.Request) {
	admin, err := service.SuperAdminFrom(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	var body struct {
		Pages []model.Page `json:"pages"`
	}
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	pages, err := c.AccessService.SetPermissions(r.Context(), admin, model.Role(chi.URLParam(r, "role")), body.Pages)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]any{"role": chi.URLParam(r, "role"), "pages": pages})
}

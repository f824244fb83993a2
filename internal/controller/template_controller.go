package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/marketing-dashboard/internal/service"
)

type TemplateController struct {
	TemplateService *service.TemplateService
}

func (c *TemplateController) List(w http.ResponseWriter, r *http.Request) {
	templates, err := c.TemplateService.List(r.Context(), r.URL.Query().Get("search"), sortFrom(r))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, templates)
}

func (c *TemplateController) Get(w http.ResponseWriter, r *http.Request) {
	t, err := c.TemplateService.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, t)
}

func (c *TemplateController) Create(w http.ResponseWriter, r *http.Request) {
	var in service.TemplateInput
	if err := decode(w, r, &in); err != nil {
		Fail(w, r, err)
		return
	}
	t, err := c.TemplateService.Create(r.Context(), in)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusCreated, t)
}

func (c *TemplateController) Update(w http.ResponseWriter, r *http.Request) {
	var in service.TemplateInput
	if err := decode(w, r, &in); err != nil {
		Fail(w, r, err)
		return
	}
	t, err := c.TemplateService.Update(r.Context(), chi.URLParam(r, "code"), in)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, t)
}

func (c *TemplateController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.TemplateService.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (c *TemplateController) GenerateCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
	}
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	code, err := c.TemplateService.GenerateCode(r.Context(), body.Subject)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]string{"code": code})
}

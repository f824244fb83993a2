package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

const maxImportBytes = 10 << 20

type ContactController struct {
	ContactService *service.ContactService
}

func contactFilter(r *http.Request) repository.ContactListFilter {
	q := r.URL.Query()
	return repository.ContactListFilter{
		Search:          q.Get("search"),
		Status:          model.ContactStatus(q.Get("status")),
		EngagementLevel: model.EngagementLevel(q.Get("engagement_level")),
		Tags:            listParam(r, "tag", "tags"),
		Sort:            sortFrom(r),
		Page:            pageFrom(r),
	}
}

func (c *ContactController) List(w http.ResponseWriter, r *http.Request) {
	contacts, p, err := c.ContactService.List(r.Context(), contactFilter(r))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Paged(w, contacts, p)
}

func (c *ContactController) Get(w http.ResponseWriter, r *http.Request) {
	contact, err := c.ContactService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, contact)
}

func (c *ContactController) Create(w http.ResponseWriter, r *http.Request) {
	var in service.ContactInput
	if err := decode(w, r, &in); err != nil {
		Fail(w, r, err)
		return
	}
	contact, err := c.ContactService.Create(r.Context(), in)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusCreated, contact)
}

func (c *ContactController) Update(w http.ResponseWriter, r *http.Request) {
	var p service.ContactPatch
	if err := decode(w, r, &p); err != nil {
		Fail(w, r, err)
		return
	}
	contact, err := c.ContactService.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, contact)
}

func (c *ContactController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.ContactService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Import accepts a multipart upload in field "file" or a raw text/csv body.
// ?source= labels the imported contacts.
func (c *ContactController) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var rows []service.ImportRow
	var err error
	if file, _, ferr := r.FormFile("file"); ferr == nil {
		defer file.Close()
		rows, err = service.ParseCSV(file)
	} else {
		rows, err = service.ParseCSV(r.Body)
	}
	if err != nil {
		Fail(w, r, err)
		return
	}

	res, err := c.ContactService.ImportContacts(r.Context(), rows, r.URL.Query().Get("source"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, res)
}

func (c *ContactController) Export(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("contacts-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := c.ContactService.ExportCSV(r.Context(), w, contactFilter(r)); err != nil {
		// The query runs before the first byte is written.
		Fail(w, r, err)
	}
}

func (c *ContactController) CheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Emails []string `json:"emails"`
	}
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	res, err := c.ContactService.CheckDuplicates(r.Context(), body.Emails)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, res)
}

type tagsBody struct {
	IDs  []string `json:"ids"`
	Tags []string `json:"tags"`
}

func (c *ContactController) AddTags(w http.ResponseWriter, r *http.Request) {
	var body tagsBody
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	n, err := c.ContactService.AddTags(r.Context(), body.IDs, body.Tags)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]int{"updated": n})
}

func (c *ContactController) RemoveTags(w http.ResponseWriter, r *http.Request) {
	var body tagsBody
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	n, err := c.ContactService.RemoveTags(r.Context(), body.IDs, body.Tags)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]int{"updated": n})
}

func (c *ContactController) SetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs    []string            `json:"ids"`
		Status model.ContactStatus `json:"status"`
	}
	if err := decode(w, r, &body); err != nil {
		Fail(w, r, err)
		return
	}
	if !body.Status.Valid() {
		Fail(w, r, appErrors.Validation("status", fmt.Sprintf("unknown contact status %q", body.Status)))
		return
	}
	n, err := c.ContactService.SetStatus(r.Context(), body.IDs, body.Status)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, map[string]int{"updated": n})
}

func (c *ContactController) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := c.ContactService.ListTags(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, tags)
}

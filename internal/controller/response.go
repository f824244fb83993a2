package controller

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
)

type successBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type failureBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type pagedBody struct {
	Success    bool          `json:"success"`
	Data       any           `json:"data"`
	Pagination db.Pagination `json:"pagination"`
}

var kindStatus = map[appErrors.Kind]int{
	appErrors.KindValidation:   http.StatusBadRequest,
	appErrors.KindNotFound:     http.StatusNotFound,
	appErrors.KindState:        http.StatusConflict,
	appErrors.KindConflict:     http.StatusConflict,
	appErrors.KindUnauthorized: http.StatusUnauthorized,
	appErrors.KindForbidden:    http.StatusForbidden,
	appErrors.KindInternal:     http.StatusInternalServerError,
}

const genericFailure = "something went wrong, please try again"

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func Success(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, successBody{Success: true, Data: data})
}

func Paged(w http.ResponseWriter, data any, p db.Pagination) {
	WriteJSON(w, http.StatusOK, pagedBody{Success: true, Data: data, Pagination: p})
}

// Fail writes the failure shape for err. Internal errors are logged and never echoed.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := appErrors.KindOf(err)
	body := failureBody{Error: string(kind), Message: err.Error()}

	var ve appErrors.ValidationErrors
	var fe *appErrors.Error
	switch {
	case errors.As(err, &ve):
		body.Message = "validation failed"
		body.Details = ve
	case kind == appErrors.KindValidation && errors.As(err, &fe) && fe.Field != "":
		body.Details = appErrors.ValidationErrors{{Field: fe.Field, Message: fe.Message}}
	}
	if kind == appErrors.KindInternal {
		slog.Default().Error("request failed",
			"event", "http.internal_error",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		body.Message = genericFailure
	}
	WriteJSON(w, kindStatus[kind], body)
}

const maxBodyBytes = 1 << 20

// decode reads a JSON body into dst. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return appErrors.Validation("body", "request body is required")
		}
		return appErrors.Validation("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func pageFrom(r *http.Request) db.Page {
	return db.Page{Page: queryInt(r, "page"), PageSize: queryInt(r, "page_size")}
}

// sortFrom reads ?sort=column and ?order=asc|desc. The repository whitelists the column.
func sortFrom(r *http.Request) db.Sort {
	return db.Sort{Column: r.URL.Query().Get("sort"), Direction: r.URL.Query().Get("order")}
}

// listParam accepts repeated (?tag=a&tag=b) and comma-separated (?tags=a,b) forms.
func listParam(r *http.Request, keys ...string) []string {
	var out []string
	for _, k := range keys {
		for _, v := range r.URL.Query()[k] {
			for _, part := range strings.Split(v, ",") {
				if p := strings.TrimSpace(part); p != "" {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

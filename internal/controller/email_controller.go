package controller

import (
	"net/http"

	"github.com/unclebandit/marketing-dashboard/internal/service"
)

type EmailController struct {
	EmailService *service.EmailService
}

// Send answers 200 with per-recipient results even when some recipients failed.
func (c *EmailController) Send(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if err := decode(w, r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	res, err := c.EmailService.Send(r.Context(), req)
	if err != nil {
		Fail(w, r, err)
		return
	}
	Success(w, http.StatusOK, res)
}

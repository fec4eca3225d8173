package api

import (
	"net/http"

	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/account"
)

//	POST /api/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in account.RegisterInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	sess, err := h.svc.Accounts.Register(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, sess)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

//	POST /api/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	sess, err := h.svc.Accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, sess)
}

//	GET /api/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Accounts.Me(r.Context(), principal(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, u)
}

// Operators lists segment operators for rule builders.
//
//	GET /api/operators
func (h *Handlers) Operators(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"operators":      segmentation.GetOperatorMetadata(),
		"profile_fields": segmentation.ProfileFieldNames(),
	})
}

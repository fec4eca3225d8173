package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/service/template"
)

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := h.svc.Templates.List(r.Context(), brandFrom(r).ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if ts == nil {
		ts = []domain.Template{}
	}
	httputil.OK(w, map[string]any{"data": ts})
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.svc.Templates.Create(r.Context(), brandFrom(r).ID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, t)
}

func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Templates.Get(r.Context(), brandFrom(r).ID, chi.URLParam(r, "templateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, t)
}

func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.svc.Templates.Update(r.Context(), brandFrom(r).ID, chi.URLParam(r, "templateID"), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, t)
}

func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Templates.Delete(r.Context(), brandFrom(r).ID, chi.URLParam(r, "templateID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

type renderRequest struct {
	Data map[string]any `json:"data"`
}

func (h *Handlers) RenderTemplate(w http.ResponseWriter, r *http.Request) {
	var in renderRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	out, err := h.svc.Templates.Render(r.Context(), brandFrom(r).ID, chi.URLParam(r, "templateID"), in.Data)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, out)
}

// SendTemplate queues one transactional message and answers 202.
//
//	POST /api/brands/{brandID}/templates/{templateID}/send
func (h *Handlers) SendTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.SendInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	id, err := h.svc.Templates.Send(r.Context(), brandFrom(r).ID, chi.URLParam(r, "templateID"), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"message_id": id, "status": "queued"})
}

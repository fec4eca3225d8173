package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/service/contact"
)

//	GET /api/brands/{brandID}/contacts?list_id=&status=&tag=&q=&page=&limit=
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	q := r.URL.Query()
	f := contact.ListFilter{
		ListID: q.Get("list_id"),
		Status: domain.ContactStatus(q.Get("status")),
		Tag:    q.Get("tag"),
		Search: q.Get("q"),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	contacts, total, err := h.svc.Contacts.List(r.Context(), brandFrom(r).ID, f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	httputil.OK(w, NewPaginatedResponse(contacts, p, total))
}

func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in contact.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.Contacts.Create(r.Context(), brandFrom(r).ID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.enrollNew(r.Context(), c)
	httputil.Created(w, c)
}

// enrollNew starts list-triggered sequences for a newly mailable contact.
// Enrollment problems are logged; the contact write already succeeded.
func (h *Handlers) enrollNew(ctx context.Context, c *domain.Contact) {
	if !c.Mailable() {
		return
	}
	n, err := h.svc.Sequences.EnrollFromList(ctx, c)
	if err != nil {
		logger.Error("enroll from list", "contact_id", c.ID, "list_id", c.ListID, "error", err)
	}
	if n > 0 {
		logger.Debug("contact enrolled", "contact_id", c.ID, "sequences", n)
	}
}

func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Contacts.Get(r.Context(), brandFrom(r).ID, chi.URLParam(r, "contactID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var in contact.UpdateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.Contacts.Update(r.Context(), brandFrom(r).ID, chi.URLParam(r, "contactID"), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Contacts.Delete(r.Context(), brandFrom(r).ID, chi.URLParam(r, "contactID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *Handlers) AddTags(w http.ResponseWriter, r *http.Request) {
	var in tagsRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.Contacts.AddTags(r.Context(), brandFrom(r).ID, chi.URLParam(r, "contactID"), in.Tags)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) RemoveTags(w http.ResponseWriter, r *http.Request) {
	var in tagsRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.Contacts.RemoveTags(r.Context(), brandFrom(r).ID, chi.URLParam(r, "contactID"), in.Tags)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

type statusRequest struct {
	Status domain.ContactStatus `json:"status"`
}

//	PUT /api/brands/{brandID}/contacts/{contactID}/status
func (h *Handlers) SetContactStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.Contacts.SetStatus(r.Context(), brandFrom(r).ID, chi.URLParam(r, "contactID"), in.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

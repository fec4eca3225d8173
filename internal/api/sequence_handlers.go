package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/service/sequence"
)

func (h *Handlers) ListSequences(w http.ResponseWriter, r *http.Request) {
	seqs, err := h.svc.Sequences.List(r.Context(), brandFrom(r).ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if seqs == nil {
		seqs = []domain.Sequence{}
	}
	httputil.OK(w, map[string]any{"data": seqs})
}

func (h *Handlers) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var in sequence.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	seq, err := h.svc.Sequences.Create(r.Context(), brandFrom(r).ID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, seq)
}

func (h *Handlers) GetSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := h.svc.Sequences.Get(r.Context(), brandFrom(r).ID, chi.URLParam(r, "sequenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, seq)
}

func (h *Handlers) UpdateSequence(w http.ResponseWriter, r *http.Request) {
	var in sequence.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	seq, err := h.svc.Sequences.Update(r.Context(), brandFrom(r).ID, chi.URLParam(r, "sequenceID"), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, seq)
}

func (h *Handlers) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	es, total, err := h.svc.Sequences.ListEnrollments(r.Context(), brandFrom(r).ID, chi.URLParam(r, "sequenceID"), p.Limit, p.Offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if es == nil {
		es = []domain.Enrollment{}
	}
	httputil.OK(w, NewPaginatedResponse(es, p, total))
}

type enrollRequest struct {
	ContactID string `json:"contact_id"`
}

// Enroll answers 201 for a new enrollment and 200 when the contact was
// already enrolled.
//
//	POST /api/brands/{brandID}/sequences/{sequenceID}/enrollments
func (h *Handlers) Enroll(w http.ResponseWriter, r *http.Request) {
	var in enrollRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.ContactID == "" {
		httputil.BadRequest(w, "contact_id is required")
		return
	}
	e, created, err := h.svc.Sequences.Enroll(r.Context(), brandFrom(r).ID, chi.URLParam(r, "sequenceID"), in.ContactID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if created {
		httputil.Created(w, e)
		return
	}
	httputil.OK(w, e)
}

func (h *Handlers) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Sequences.GetEnrollment(r.Context(), brandFrom(r).ID, chi.URLParam(r, "enrollmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, e)
}

func (h *Handlers) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Sequences.Cancel(r.Context(), brandFrom(r).ID, chi.URLParam(r, "enrollmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, e)
}

func (h *Handlers) SequenceStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Sequences.Stats(r.Context(), brandFrom(r).ID, chi.URLParam(r, "sequenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, st)
}

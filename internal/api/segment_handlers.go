package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/segment"
)

func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := h.svc.Segments.List(r.Context(), brandFrom(r).ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if segs == nil {
		segs = []segmentation.Segment{}
	}
	httputil.OK(w, map[string]any{"data": segs})
}

func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var in segment.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	seg, err := h.svc.Segments.Create(r.Context(), brandFrom(r).ID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, seg)
}

func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.svc.Segments.Get(r.Context(), brandFrom(r).ID, chi.URLParam(r, "segmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	var in segment.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	seg, err := h.svc.Segments.Update(r.Context(), brandFrom(r).ID, chi.URLParam(r, "segmentID"), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Segments.Delete(r.Context(), brandFrom(r).ID, chi.URLParam(r, "segmentID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

type previewRequest struct {
	ListID string             `json:"list_id"`
	Rules  segmentation.Group `json:"rules"`
	Sample int                `json:"sample"`
}

// PreviewSegment evaluates unsaved rules.
//
//	POST /api/brands/{brandID}/segments/preview
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var in previewRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.svc.Segments.Preview(r.Context(), brandFrom(r).ID, in.ListID, in.Rules, in.Sample)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, p)
}

func (h *Handlers) RefreshSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.svc.Segments.RefreshCount(r.Context(), brandFrom(r).ID, chi.URLParam(r, "segmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) RefreshSegments(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Segments.RefreshAll(r.Context(), brandFrom(r).ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"refreshed": n})
}

func (h *Handlers) SegmentContacts(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	contacts, total, err := h.svc.Segments.Contacts(r.Context(), brandFrom(r).ID, chi.URLParam(r, "segmentID"), p.Limit, p.Offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	httputil.OK(w, NewPaginatedResponse(contacts, p, total))
}

type membersRequest struct {
	ContactIDs []string `json:"contact_ids"`
}

func (h *Handlers) AddSegmentMembers(w http.ResponseWriter, r *http.Request) {
	var in membersRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	n, err := h.svc.Segments.AddMembers(r.Context(), brandFrom(r).ID, chi.URLParam(r, "segmentID"), in.ContactIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"added": n})
}

func (h *Handlers) RemoveSegmentMembers(w http.ResponseWriter, r *http.Request) {
	var in membersRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	n, err := h.svc.Segments.RemoveMembers(r.Context(), brandFrom(r).ID, chi.URLParam(r, "segmentID"), in.ContactIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"removed": n})
}

func (h *Handlers) ExportSegment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "segmentID")
	var buf bytes.Buffer
	n, err := h.svc.Segments.Export(r.Context(), brandFrom(r).ID, id, &buf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeCSV(w, "segment-"+id, n, &buf)
}

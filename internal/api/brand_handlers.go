package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/service/brand"
)

func (h *Handlers) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.svc.Brands.ListBrands(r.Context(), principal(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"data": brands})
}

func (h *Handlers) CreateBrand(w http.ResponseWriter, r *http.Request) {
	var in brand.BrandInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	b, err := h.svc.Brands.CreateBrand(r.Context(), principal(r).UserID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, b)
}

func (h *Handlers) GetBrand(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, brandFrom(r))
}

func (h *Handlers) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Brands.DeleteBrand(r.Context(), principal(r).UserID, brandFrom(r).ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.svc.Brands.ListLists(r.Context(), brandFrom(r).ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"data": lists})
}

type createListRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) CreateList(w http.ResponseWriter, r *http.Request) {
	var in createListRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	l, err := h.svc.Brands.CreateList(r.Context(), brandFrom(r).ID, in.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, l)
}

func (h *Handlers) GetList(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Brands.GetList(r.Context(), brandFrom(r).ID, chi.URLParam(r, "listID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, l)
}

func (h *Handlers) DeleteList(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Brands.DeleteList(r.Context(), brandFrom(r).ID, chi.URLParam(r, "listID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

//	GET /api/brands/{brandID}/lists/{listID}/export.csv
func (h *Handlers) ExportList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")
	var buf bytes.Buffer
	n, err := h.svc.Contacts.Export(r.Context(), brandFrom(r).ID, listID, &buf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeCSV(w, "list-"+listID, n, &buf)
}

// writeCSV sends a finished export. Exports are buffered so a failure
// midway still gets a JSON error instead of a truncated file.
func writeCSV(w http.ResponseWriter, name string, rows int, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	w.Header().Set("X-Row-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Warn("csv export write", "name", name, "error", err)
	}
}

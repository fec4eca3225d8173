package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/service/campaign"
)

//	GET /api/brands/{brandID}/campaigns?status=&q=&page=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, defaultPageSize, 200)
	cs, total, err := h.svc.Campaigns.List(r.Context(), brandFrom(r).ID, campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("q"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if cs == nil {
		cs = []domain.Campaign{}
	}
	httputil.OK(w, NewPaginatedResponse(cs, p, total))
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.Campaigns.Create(r.Context(), brandFrom(r).ID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Campaigns.Get(r.Context(), brandFrom(r).ID, chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.Campaigns.Update(r.Context(), brandFrom(r).ID, chi.URLParam(r, "campaignID"), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Campaigns.Delete(r.Context(), brandFrom(r).ID, chi.URLParam(r, "campaignID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

// SendCampaign resolves the audience and queues one job per recipient.
//
//	POST /api/brands/{brandID}/campaigns/{campaignID}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")
	n, err := h.svc.Campaigns.Send(r.Context(), brandFrom(r).ID, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]any{"campaign_id": id, "queued": n})
}

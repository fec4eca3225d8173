package api

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/service/contact"
)

// reserved form keys; everything else becomes a custom field
var formKeys = map[string]bool{"key": true, "email": true, "first_name": true, "last_name": true, "tags": true}

// Subscribe is the public signup endpoint embedded in customer sites. The
// list's submit key authenticates the caller. Accepts JSON or a form post.
//
//	POST /public/lists/{listID}/subscribe?key=
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var (
		in  contact.SubscribeInput
		key = r.URL.Query().Get("key")
	)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			httputil.BadRequest(w, "invalid form body")
			return
		}
		in = subscribeFromForm(r)
		if key == "" {
			key = r.PostForm.Get("key")
		}
	default:
		if !httputil.Decode(w, r, &in) {
			return
		}
	}

	list, err := h.svc.Brands.PublicList(r.Context(), chi.URLParam(r, "listID"), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, created, err := h.svc.Contacts.Subscribe(r.Context(), list, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.enrollNew(r.Context(), c)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, map[string]any{"id": c.ID, "email": c.Email, "status": c.Status, "created": created})
}

func subscribeFromForm(r *http.Request) contact.SubscribeInput {
	f := r.PostForm
	in := contact.SubscribeInput{
		Email:     f.Get("email"),
		FirstName: f.Get("first_name"),
		LastName:  f.Get("last_name"),
	}
	for _, v := range f["tags"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				in.Tags = append(in.Tags, t)
			}
		}
	}
	for k, vs := range f {
		if formKeys[k] || len(vs) == 0 {
			continue
		}
		if in.CustomFields == nil {
			in.CustomFields = map[string]any{}
		}
		in.CustomFields[k] = vs[0]
	}
	return in
}

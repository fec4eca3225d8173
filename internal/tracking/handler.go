package tracking

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Recipients looks up who a Ref was sent to and applies unsubscribes.
type Recipients interface {
	Email(ctx context.Context, ref Ref) (string, error)
	Unsubscribe(ctx context.Context, ref Ref) error
}

// Locator maps an IP to country and city. A nil Locator is allowed.
type Locator interface {
	Locate(ip string) (country, city string)
}

type Handler struct {
	signer     *Signer
	recipients Recipients
	pub        Publisher
	geo        Locator
	now        func() time.Time
}

func NewHandler(signer *Signer, recipients Recipients, pub Publisher, geo Locator) *Handler {
	return &Handler{signer: signer, recipients: recipients, pub: pub, geo: geo, now: time.Now}
}

// Routes mounts under /t.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/o/{data}/{token}", h.HandleOpen)
	r.Get("/c/{data}/{token}", h.HandleClick)
	r.Get("/u/{data}/{token}", h.HandleUnsubscribe)
	r.Post("/u/{data}/{token}", h.HandleUnsubscribe)
	return r
}

// verify returns the decoded ref and recipient email, or false when the
// link is malformed, unknown or forged.
func (h *Handler) verify(r *http.Request) (Ref, string, bool) {
	ref, err := DecodeRef(chi.URLParam(r, "data"))
	if err != nil {
		return Ref{}, "", false
	}
	email, err := h.recipients.Email(r.Context(), ref)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			logger.Error("tracking: resolve recipient", "scope", ref.Scope, "scope_id", ref.ScopeID, "error", err)
		}
		return Ref{}, "", false
	}
	token := strings.TrimSuffix(chi.URLParam(r, "token"), ".gif")
	if !h.signer.Verify(ref, email, token) {
		return Ref{}, "", false
	}
	return ref, email, true
}

func (h *Handler) event(r *http.Request, kind domain.EventKind, ref Ref, email string) domain.TrackingEvent {
	evt := domain.TrackingEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		Scope:       ref.Scope,
		ScopeID:     ref.ScopeID,
		RecipientID: ref.RecipientID,
		Step:        ref.Step,
		Email:       email,
		IP:          realIP(r),
		UserAgent:   r.UserAgent(),
		OccurredAt:  h.now().UTC(),
	}
	if h.geo != nil && evt.IP != "" {
		evt.Country, evt.City = h.geo.Locate(evt.IP)
	}
	return evt
}

func (h *Handler) publish(ctx context.Context, evt domain.TrackingEvent) {
	if err := h.pub.Publish(ctx, evt); err != nil {
		logger.Error("tracking: publish", "kind", evt.Kind, "scope_id", evt.ScopeID, "error", err)
	}
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	if ref, email, ok := h.verify(r); ok {
		h.publish(r.Context(), h.event(r, domain.EventOpen, ref, email))
	}
	servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("u")
	ref, email, ok := h.verify(r)
	if !ok || !h.signer.VerifyLink(chi.URLParam(r, "token"), target, r.URL.Query().Get("s")) {
		httputil.Forbidden(w, "invalid tracking link")
		return
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		httputil.BadRequest(w, "invalid redirect target")
		return
	}

	evt := h.event(r, domain.EventClick, ref, email)
	evt.URL = target
	h.publish(r.Context(), evt)
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleUnsubscribe serves both the link in the footer (GET) and RFC 8058
// one-click POSTs from mailbox providers.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ref, email, ok := h.verify(r)
	if !ok {
		httputil.Forbidden(w, "invalid unsubscribe link")
		return
	}
	if err := h.recipients.Unsubscribe(r.Context(), ref); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.publish(r.Context(), h.event(r, domain.EventUnsubscribe, ref, email))
	logger.Info("tracking: unsubscribed", "scope", ref.Scope, "scope_id", ref.ScopeID, "email", email)

	if r.Method == http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>You have been unsubscribed</h1>
		<p>You will no longer receive these emails.</p>
	</body></html>`))
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	_, _ = w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

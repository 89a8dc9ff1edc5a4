package dashboard

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opshield/incident-sentry/internal/pkg/httputil"
)

// Handler handles HTTP requests for the dashboard module.
type Handler struct {
	service *Service
}

// NewHandler creates a new dashboard handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers dashboard routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Get("/recent-incidents", h.RecentIncidents)
}

// Stats handles GET /api/dashboard/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, stats)
}

// RecentIncidents handles GET /api/dashboard/recent-incidents.
func (h *Handler) RecentIncidents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recent, err := h.service.RecentIncidents(r.Context(), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.SuccessFields(w, http.StatusOK, map[string]interface{}{
		"count": len(recent),
		"data":  recent,
	})
}

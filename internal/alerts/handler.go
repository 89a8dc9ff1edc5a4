package alerts

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opshield/incident-sentry/internal/incidents"
	"github.com/opshield/incident-sentry/internal/pkg/httputil"
)

// Handler handles HTTP requests for the alerts module.
type Handler struct {
	service   *Service
	incidents *incidents.Service
}

// NewHandler creates a new alerts handler.
func NewHandler(service *Service, incidentService *incidents.Service) *Handler {
	return &Handler{service: service, incidents: incidentService}
}

// RegisterProtectedRoutes registers the bearer-gated alert listing.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/", h.List)
}

// RegisterPublicRoutes registers the unauthenticated webhook ingest.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/webhook", h.Webhook)
}

// List handles GET /api/alerts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := incidents.AlertQuery{}
	if raw := params.Get("severity"); raw != "" {
		for _, severity := range strings.Split(raw, ",") {
			if severity = strings.TrimSpace(severity); severity != "" {
				q.Severities = append(q.Severities, severity)
			}
		}
	}
	if raw := params.Get("since"); raw != "" {
		if since, err := time.Parse(time.RFC3339, raw); err == nil {
			q.Since = since
		}
	}
	q.Limit, _ = strconv.Atoi(params.Get("limit"))

	alerts, err := h.incidents.ListAlerts(r.Context(), q)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, alerts)
}

// Webhook handles POST /api/alerts/webhook.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	incident, err := h.service.Ingest(r.Context(), payload, httputil.GetUser(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrIngestNotConfigured, Status: http.StatusServiceUnavailable},
			{Error: incidents.ErrValidation, Status: http.StatusBadRequest},
		})
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

package incidents

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/pkg/httputil"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service *Service
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers incident routes. All of them require
// authentication; the router mounts them behind the auth gate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	// bulk-status before {id} so chi does not treat it as an id
	r.Put("/bulk-status", h.BulkStatus)
	r.Post("/block-ip", h.BlockIP)
	r.Delete("/block-ip/{ip}", h.UnblockIP)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
}

// List handles GET /api/incidents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := ListQuery{
		Severity: params.Get("severity"),
		Status:   params.Get("status"),
		Q:        strings.TrimSpace(params.Get("q")),
		Page:     queryInt(params.Get("page")),
		Limit:    queryInt(params.Get("limit")),
		SortBy:   params.Get("sortBy"),
		SortDir:  params.Get("sortDir"),
	}

	if sinceParam := params.Get("since"); sinceParam != "" {
		if since, err := time.Parse(time.RFC3339, sinceParam); err == nil {
			q.Since = &since
		}
	}

	q = NormalizeListQuery(q)

	incidentsPage, total, err := h.service.ListIncidents(r.Context(), q)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessPage(w, http.StatusOK, incidentsPage, httputil.Pagination{
		Page:  q.Page,
		Limit: q.Limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
	})
}

// CreateRequest represents the incident creation body.
type CreateRequest struct {
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Severity        string                  `json:"severity"`
	Status          string                  `json:"status"`
	Category        string                  `json:"category"`
	Source          string                  `json:"source"`
	AffectedSystems []string                `json:"affectedSystems"`
	AffectedUsers   []string                `json:"affectedUsers"`
	IPAddresses     []string                `json:"ipAddresses"`
	Location        *domain.Location        `json:"location"`
	DetectedAt      *time.Time              `json:"detectedAt"`
	EstimatedImpact string                  `json:"estimatedImpact"`
	FinancialImpact *domain.FinancialImpact `json:"financialImpact"`
	Tags            []string                `json:"tags"`
}

// Create handles POST /api/incidents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetUser(r.Context())
	if actor == nil {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Covers malformed JSON and type mismatches such as a non-array
		// ipAddresses field.
		httputil.Error(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput{
		Title:           req.Title,
		Description:     req.Description,
		Severity:        domain.Severity(req.Severity),
		Status:          domain.IncidentStatus(req.Status),
		Category:        domain.Category(req.Category),
		Source:          domain.IncidentSource(req.Source),
		AffectedSystems: req.AffectedSystems,
		AffectedUsers:   req.AffectedUsers,
		IPAddresses:     req.IPAddresses,
		Location:        req.Location,
		DetectedAt:      req.DetectedAt,
		EstimatedImpact: domain.Impact(req.EstimatedImpact),
		FinancialImpact: req.FinancialImpact,
		Tags:            req.Tags,
	}, actor)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// Get handles GET /api/incidents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateRequest represents the incident update body. Only the whitelisted
// fields are accepted; anything else in the body is ignored.
type UpdateRequest struct {
	Status      *string `json:"status"`
	Severity    *string `json:"severity"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	AssignedTo  *string `json:"assignedTo"`
}

// Update handles PUT /api/incidents/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetUser(r.Context())
	if actor == nil {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	input := UpdateIncidentInput{
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		input.Status = &status
	}
	if req.Severity != nil {
		severity := domain.Severity(*req.Severity)
		input.Severity = &severity
	}
	if req.Category != nil {
		category := domain.Category(*req.Category)
		input.Category = &category
	}

	incident, err := h.service.UpdateIncident(r.Context(), chi.URLParam(r, "id"), input, actor)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// BulkStatusRequest represents the bulk status update body.
type BulkStatusRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

// BulkStatus handles PUT /api/incidents/bulk-status.
func (h *Handler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetUser(r.Context())
	if actor == nil {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req BulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	modified, err := h.service.BulkUpdateStatus(r.Context(), req.IDs, domain.IncidentStatus(req.Status), actor)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessFields(w, http.StatusOK, map[string]interface{}{
		"modifiedCount": modified,
	})
}

// BlockIPRequest represents the blocked IP upsert body.
type BlockIPRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

// BlockIP handles POST /api/incidents/block-ip.
func (h *Handler) BlockIP(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetUser(r.Context())
	if actor == nil {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	blocked, err := h.service.BlockIP(r.Context(), req.IP, req.Reason, actor)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, blocked)
}

// UnblockIP handles DELETE /api/incidents/block-ip/{ip}.
func (h *Handler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.UnblockIP(r.Context(), chi.URLParam(r, "ip"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.SuccessFields(w, http.StatusOK, map[string]interface{}{
		"deletedCount": deleted,
	})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrValidation, Status: http.StatusBadRequest},
		{Error: ErrEmptyIDList, Status: http.StatusBadRequest},
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	})
}

func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
	"github.com/lalithlochan/cadence/internal/circuitbreaker"
	"github.com/lalithlochan/cadence/internal/db"
	"github.com/lalithlochan/cadence/internal/metrics"
	"github.com/lalithlochan/cadence/internal/redis"
	"github.com/lalithlochan/cadence/internal/scheduler"
)

// SubjectRepository defines the database operations the API needs.
type SubjectRepository interface {
	Enroll(ctx context.Context, sub *db.CampaignSubject) error
	Get(ctx context.Context, id uuid.UUID) (*db.CampaignSubject, error)
	ListByCampaign(ctx context.Context, campaignType string, limit, offset int) ([]*db.CampaignSubject, error)
	Skip(ctx context.Context, id uuid.UUID) error
}

// Trigger runs one campaign tick on demand.
type Trigger interface {
	RunNow(ctx context.Context, campaignType string) (scheduler.TickStats, error)
}

// EnrollRequest is the incoming enrollment body.
type EnrollRequest struct {
	CustomerName   string     `json:"customer_name"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	ServiceType    string     `json:"service_type,omitempty"`
	ServiceAddress string     `json:"service_address,omitempty"`
	PreferredTime  string     `json:"preferred_time,omitempty"`
	EstimatedPrice float64    `json:"estimated_price,omitempty"`
	Reference      string     `json:"reference,omitempty"`
	AppointmentAt  *time.Time `json:"appointment_at,omitempty"`
}

// EnrollResponse is returned after enrolling a subject.
type EnrollResponse struct {
	ID string `json:"id"`
}

// ErrorResponse represents an error in problem+json format.
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	logger      *zap.Logger
	registry    *campaign.Registry
	repo        SubjectRepository
	trigger     Trigger
	idempotency *redis.Idempotency                        // nil if Redis not configured
	breakers    map[string]*circuitbreaker.CircuitBreaker // channel name -> breaker
}

// NewHandler creates an API handler. idempotency and breakers may be
// nil/empty when the corresponding infrastructure is not configured.
func NewHandler(
	logger *zap.Logger,
	registry *campaign.Registry,
	repo SubjectRepository,
	trigger Trigger,
	idempotency *redis.Idempotency,
	breakers map[string]*circuitbreaker.CircuitBreaker,
) *Handler {
	return &Handler{
		logger:      logger,
		registry:    registry,
		repo:        repo,
		trigger:     trigger,
		idempotency: idempotency,
		breakers:    breakers,
	}
}

// EnrollSubject handles POST /v1/campaigns/{type}/subjects.
// Supports deduplication via the Idempotency-Key header.
func (h *Handler) EnrollSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaignType := chi.URLParam(r, "type")
	table, ok := h.registry.Table(campaignType)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown_campaign", "Unknown campaign type", campaignType)
		return
	}

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.CustomerName == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "customer_name is required")
		return
	}
	if table.Anchor == campaign.AnchorAppointment && req.AppointmentAt == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing appointment time",
			"this campaign schedules stages relative to appointment_at")
		return
	}

	// Idempotency: first request with a key wins, replays return the
	// original subject ID, a pending duplicate gets 409.
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" && h.idempotency != nil {
		existingID, replayed, err := h.idempotency.Reserve(ctx, idempotencyKey)
		if err != nil {
			if errors.Is(err, redis.ErrEnrollmentInFlight) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if replayed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(EnrollResponse{ID: existingID.String()})
			return
		}
	}

	sub := &db.CampaignSubject{
		ID:             uuid.New(),
		CampaignType:   campaignType,
		AppointmentAt:  req.AppointmentAt,
		CustomerName:   req.CustomerName,
		Email:          req.Email,
		Phone:          req.Phone,
		ServiceType:    req.ServiceType,
		ServiceAddress: req.ServiceAddress,
		PreferredTime:  req.PreferredTime,
		EstimatedPrice: req.EstimatedPrice,
		Reference:      req.Reference,
	}

	if err := h.repo.Enroll(ctx, sub); err != nil {
		h.logger.Error("failed to enroll subject",
			zap.Error(err),
			zap.String("campaign", campaignType),
		)
		if idempotencyKey != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(ctx, idempotencyKey); relErr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to enroll subject", "")
		return
	}

	metrics.RecordSubjectEnrolled(campaignType)
	h.logger.Info("subject enrolled",
		zap.String("id", sub.ID.String()),
		zap.String("campaign", campaignType),
	)

	if idempotencyKey != "" && h.idempotency != nil {
		if err := h.idempotency.Complete(ctx, idempotencyKey, sub.ID); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(EnrollResponse{ID: sub.ID.String()})
}

// RunCampaign handles POST /v1/campaigns/{type}/run: one synchronous
// tick, same semantics as the scheduled one.
func (h *Handler) RunCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaignType := chi.URLParam(r, "type")
	if _, ok := h.registry.Table(campaignType); !ok {
		h.writeError(w, http.StatusNotFound, "unknown_campaign", "Unknown campaign type", campaignType)
		return
	}

	stats, err := h.trigger.RunNow(ctx, campaignType)
	if err != nil {
		h.logger.Error("manual tick failed",
			zap.Error(err),
			zap.String("campaign", campaignType),
		)
		h.writeError(w, http.StatusInternalServerError, "tick_error", "Campaign tick failed", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(stats)
}

// ListSubjects handles GET /v1/campaigns/{type}/subjects?limit=20&offset=0.
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaignType := chi.URLParam(r, "type")
	if _, ok := h.registry.Table(campaignType); !ok {
		h.writeError(w, http.StatusNotFound, "unknown_campaign", "Unknown campaign type", campaignType)
		return
	}

	limit := 20
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	subjects, err := h.repo.ListByCampaign(ctx, campaignType, limit, offset)
	if err != nil {
		h.logger.Error("failed to list subjects",
			zap.Error(err),
			zap.String("campaign", campaignType),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list subjects", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":   subjects,
		"limit":  limit,
		"offset": offset,
		"count":  len(subjects),
	})
}

// GetSubject handles GET /v1/subjects/{id}.
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid subject ID", "ID must be a valid UUID")
		return
	}

	sub, err := h.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrSubjectNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Subject not found", "")
			return
		}
		h.logger.Error("failed to get subject", zap.Error(err), zap.String("id", idStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get subject", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(sub)
}

// SkipSubject handles POST /v1/subjects/{id}/skip: pull an active
// subject out of its campaign (quote booked, appointment cancelled).
func (h *Handler) SkipSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid subject ID", "ID must be a valid UUID")
		return
	}

	if err := h.repo.Skip(ctx, id); err != nil {
		if errors.Is(err, campaign.ErrAdvanceConflict) {
			h.writeError(w, http.StatusConflict, "not_active",
				"Subject is not active", "only active subjects can be skipped")
			return
		}
		h.logger.Error("failed to skip subject", zap.Error(err), zap.String("id", idStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to skip subject", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     idStr,
		"status": string(campaign.StatusSkipped),
	})
}

// CircuitBreakerStats handles GET /v1/breakers: current state of each
// provider breaker for operator inspection.
func (h *Handler) CircuitBreakerStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]circuitbreaker.Stats, len(h.breakers))
	for name, cb := range h.breakers {
		stats[name] = cb.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(stats)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	pipe    *pipeline.Pipeline
	rules   *alerting.RuleEngine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, pipe *pipeline.Pipeline, rules *alerting.RuleEngine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		pipe:    pipe,
		rules:   rules,
		version: version,
	}
}

// Ingest handles POST /ingest. The body is the raw CSV upload, either
// direct or as the "file" part of a multipart form.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := GetActor(ctx)

	body := r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "multipart form must carry a 'file' part",
			})
			return
		}
		defer file.Close()
		body = file
	}

	result, err := h.pipe.Ingest(ctx, actor, body)
	if errors.Is(err, pipeline.ErrUploadRejected) {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	if err != nil {
		slog.Error("ingestion failed", "actor", actor, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "ingestion failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListCustomers handles GET /customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.repo.ListProfiles(r.Context())
	if err != nil {
		slog.Error("failed to list customers", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list customers",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customers": profiles,
		"count":     len(profiles),
	})
}

// GetCustomer handles GET /customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")

	profile, err := h.pipe.GetProfile(r.Context(), customerID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "customer not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get customer", "id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// UpdateCustomerRequest is the request body for PATCH /customers/{id}.
type UpdateCustomerRequest struct {
	Notes  *string `json:"notes,omitempty"`
	Status *string `json:"status,omitempty"`
}

// UpdateCustomer handles PATCH /customers/{id} for operator edits to
// notes and lifecycle status.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	var req UpdateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	var status *domain.CustomerStatus
	if req.Status != nil {
		s := domain.CustomerStatus(*req.Status)
		switch s {
		case domain.StatusActive, domain.StatusUnderIntervention, domain.StatusResolved:
			status = &s
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid status: " + *req.Status,
			})
			return
		}
	}

	profile, err := h.pipe.UpdateCustomer(ctx, GetActor(ctx), customerID, req.Notes, status)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "customer not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to update customer", "id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// GetCustomerTransactions handles GET /customers/{id}/transactions.
func (h *Handler) GetCustomerTransactions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")

	txns, err := h.repo.GetTransactions(r.Context(), customerID)
	if err != nil {
		slog.Error("failed to get transactions", "id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"count":        len(txns),
	})
}

// ExplainCustomer handles GET /customers/{id}/explain. Drivers and the
// compliance narrative are recomputed on demand against the current
// scoring settings.
func (h *Handler) ExplainCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	profile, err := h.pipe.GetProfile(ctx, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "customer not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get customer", "id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get customer",
		})
		return
	}

	settings, err := h.repo.GetSettings(ctx)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load settings",
		})
		return
	}

	drivers := scoring.Drivers(&profile.Features, settings)
	narrative := scoring.ComplianceNarrative(profile.ID, profile.Band, drivers, profile.RiskScore)

	writeJSON(w, http.StatusOK, map[string]any{
		"customerId": profile.ID,
		"riskScore":  profile.RiskScore,
		"band":       profile.Band,
		"drivers":    drivers,
		"narrative":  narrative,
	})
}

// TriggerInterventions handles POST /customers/{id}/interventions.
func (h *Handler) TriggerInterventions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	logs, err := h.pipe.TriggerInterventions(ctx, GetActor(ctx), customerID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "customer not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to trigger interventions", "id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to trigger interventions",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"interventions": logs,
		"count":         len(logs),
	})
}

// ListInterventions handles GET /interventions and
// GET /customers/{id}/interventions.
func (h *Handler) ListInterventions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")

	logs, err := h.repo.ListInterventions(r.Context(), customerID)
	if err != nil {
		slog.Error("failed to list interventions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list interventions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"interventions": logs,
		"count":         len(logs),
	})
}

// UpdateInterventionStatusRequest is the body for
// PUT /interventions/{id}/status.
type UpdateInterventionStatusRequest struct {
	Status string `json:"status"`
}

// UpdateInterventionStatus handles PUT /interventions/{id}/status.
func (h *Handler) UpdateInterventionStatus(w http.ResponseWriter, r *http.Request) {
	interventionID := chi.URLParam(r, "id")

	var req UpdateInterventionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	status := domain.InterventionStatus(req.Status)
	switch status {
	case domain.InterventionTriggered, domain.InterventionDelivered, domain.InterventionAcknowledged:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid status: " + req.Status,
		})
		return
	}

	err := h.repo.UpdateInterventionStatus(r.Context(), interventionID, status)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "intervention not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to update intervention", "id", interventionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update intervention",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// ListAlerts handles GET /alerts with an optional customer_id filter.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")

	alerts, err := h.repo.ListAlerts(r.Context(), customerID)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// MarkAlertRead handles POST /alerts/{id}/read.
func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	err := h.repo.MarkAlertRead(r.Context(), alertID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to mark alert read", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to mark alert read",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// ClearReadAlerts handles POST /alerts/clear. Only read alerts are
// removed; unread alerts survive the sweep.
func (h *Handler) ClearReadAlerts(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearReadAlerts(r.Context()); err != nil {
		slog.Error("failed to clear alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to clear alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings(r.Context())
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load settings",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"weights":     settings.Weights,
		"toggles":     settings.Toggles,
		"weightTotal": settings.Weights.Total(),
	})
}

// UpdateSettings handles PUT /settings. Partial updates merge over the
// stored configuration; unknown signal keys are rejected.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	for key := range req.Weights {
		if _, ok := domain.SignalSpecFor(key); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown signal: " + string(key),
			})
			return
		}
	}
	for key := range req.Toggles {
		if _, ok := domain.SignalSpecFor(key); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown signal: " + string(key),
			})
			return
		}
	}

	settings, err := h.repo.GetSettings(ctx)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load settings",
		})
		return
	}

	for key, weight := range req.Weights {
		settings.Weights[key] = weight
	}
	for key, enabled := range req.Toggles {
		settings.Toggles[key] = enabled
	}

	if err := h.repo.SaveSettings(ctx, settings); err != nil {
		slog.Error("failed to save settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save settings",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"weights":     settings.Weights,
		"toggles":     settings.Toggles,
		"weightTotal": settings.Weights.Total(),
	})
}

// ListRules returns all custom alert rules currently loaded in the
// engine. Rules are loaded from the database at startup and can be
// reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.rules.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// CreateRuleRequest is the request body for creating a custom alert rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Level       string `json:"level"`
	Action      string `json:"action"`
	Title       string `json:"title"`
	Detail      string `json:"detail"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule handles POST /rules. The CEL expression is validated
// before the rule is persisted; call POST /rules/reload to apply it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	level := domain.AlertLevel(req.Level)
	switch level {
	case domain.AlertCritical, domain.AlertHigh, domain.AlertMedium, domain.AlertLow:
	case "":
		level = domain.AlertMedium
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid level: " + req.Level,
		})
		return
	}

	action := domain.AlertAction(req.Action)
	switch action {
	case domain.ActionIntervene, domain.ActionReview:
	case "":
		action = domain.ActionReview
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid action: " + req.Action,
		})
		return
	}

	ruleConfig := &domain.AlertRuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Level:       level,
		Action:      action,
		Title:       req.Title,
		Detail:      req.Detail,
		Enabled:     req.Enabled,
	}
	if ruleConfig.Title == "" {
		ruleConfig.Title = ruleConfig.Name
	}

	if err := h.rules.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveAlertRule(ctx, ruleConfig); err != nil {
		slog.Error("failed to save alert rule", "id", ruleConfig.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("alert rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules handles POST /rules/reload, hot-reloading the enabled
// rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	count, err := h.pipe.ReloadRules(r.Context())
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules",
		})
		return
	}

	slog.Info("alert rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": count,
	})
}

// ListAuditLogs handles GET /audit with an optional limit parameter.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	entries, err := h.repo.ListAuditLogs(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list audit logs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audit logs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"count": len(entries),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

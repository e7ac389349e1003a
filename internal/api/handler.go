package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/sentinel/internal/decision"
	"github.com/opensource-finance/sentinel/internal/detect"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/graphstore"
	"github.com/opensource-finance/sentinel/internal/score"
	"github.com/opensource-finance/sentinel/internal/stats"
)

// Deps holds the components the API handlers depend on.
type Deps struct {
	Store      domain.GraphStore
	Cache      domain.Cache
	Bus        domain.EventBus
	Model      score.Scorer
	Rules      score.Scorer
	Detector   *detect.Detector
	Aggregator *stats.Aggregator
	Scan       domain.ScanConfig
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// AnalyzeResponse is the response for POST /transactions/analyze and
// POST /transactions/{id}/rescore.
type AnalyzeResponse struct {
	ID             string             `json:"id"`
	Status         domain.Status      `json:"status"`
	FraudType      string             `json:"fraud_type"`
	RiskScore      float64            `json:"risk_score"`
	Explanation    domain.Explanation `json:"explanation"`
	Recommendation string             `json:"recommendation"`
	Source         string             `json:"source"`
}

// Analyze handles POST /transactions/analyze. The transaction is
// scored by the model service, classified, persisted with its graph
// edges, and the decision is returned. A model failure fails the
// request; no transaction is approved unscored.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user_id is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}
	if req.IdentityAgeHours != nil && *req.IdentityAgeHours < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "identity_age_hours must not be negative",
		})
		return
	}

	timestamp := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "timestamp must be RFC 3339",
			})
			return
		}
		timestamp = parsed.UTC()
	}

	assessment, err := h.deps.Model.Score(ctx, &req)
	if err != nil {
		h.writeError(w, "model scoring failed", err)
		return
	}

	status, fraudType, err := decision.Classify(assessment.RiskScore, decision.Facts{
		Amount:         req.Amount,
		RecentIdentity: req.RecentIdentity(),
	})
	if err != nil {
		h.writeError(w, "classification failed", err)
		return
	}

	tx := &domain.Transaction{
		ID:               uuid.New().String(),
		Amount:           req.Amount,
		Timestamp:        timestamp,
		RiskScore:        assessment.RiskScore,
		Status:           status,
		Type:             fraudType,
		UserID:           req.UserID,
		DeviceID:         req.DeviceID,
		Location:         req.Location,
		IdentityAgeHours: req.IdentityAgeHours,
		CreatedAt:        time.Now().UTC(),
	}

	if err := h.deps.Store.SaveAnalysis(ctx, tx); err != nil {
		h.writeError(w, "failed to save analysis", err)
		return
	}

	if req.RecipientID != "" {
		transfer := &domain.Transfer{
			FromID:    req.UserID,
			ToID:      req.RecipientID,
			Amount:    req.Amount,
			Timestamp: timestamp,
		}
		if err := h.deps.Store.SaveTransfer(ctx, transfer); err != nil {
			h.writeError(w, "failed to save transfer", err)
			return
		}
	}

	h.publishAnalysis(ctx, tx)

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		ID:             tx.ID,
		Status:         status,
		FraudType:      fraudType,
		RiskScore:      assessment.RiskScore,
		Explanation:    assessment.Explanation,
		Recommendation: assessment.Recommendation,
		Source:         assessment.Source,
	})
}

// publishAnalysis emits bus events for a stored analysis. Event
// delivery is best effort; the decision is already durable.
func (h *Handler) publishAnalysis(ctx context.Context, tx *domain.Transaction) {
	if h.deps.Bus == nil {
		return
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		slog.Error("failed to encode analysis event", "tx_id", tx.ID, "error", err)
		return
	}

	if err := h.deps.Bus.Publish(ctx, domain.TopicTransactionAnalyzed, payload); err != nil {
		slog.Error("failed to publish analysis event", "tx_id", tx.ID, "error", err)
	}

	if tx.Status == domain.StatusBlocked {
		if err := h.deps.Bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert", "tx_id", tx.ID, "error", err)
		}
	}
}

// Rescore handles POST /transactions/{id}/rescore. The stored
// transaction is re-scored through the rule path and the fresh
// assessment returned. The stored decision is never mutated.
func (h *Handler) Rescore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, err := h.deps.Store.GetTransaction(ctx, txID)
	if err != nil {
		h.writeError(w, "failed to load transaction", err)
		return
	}

	req := &domain.AnalyzeRequest{
		Amount:           tx.Amount,
		UserID:           tx.UserID,
		DeviceID:         tx.DeviceID,
		Location:         tx.Location,
		IdentityAgeHours: tx.IdentityAgeHours,
	}

	assessment, err := h.deps.Rules.Score(ctx, req)
	if err != nil {
		h.writeError(w, "rescoring failed", err)
		return
	}

	status, fraudType, err := decision.Classify(assessment.RiskScore, decision.Facts{
		Amount:         tx.Amount,
		RecentIdentity: req.RecentIdentity(),
	})
	if err != nil {
		h.writeError(w, "classification failed", err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		ID:             tx.ID,
		Status:         status,
		FraudType:      fraudType,
		RiskScore:      assessment.RiskScore,
		Explanation:    assessment.Explanation,
		Recommendation: assessment.Recommendation,
		Source:         assessment.Source,
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, err := h.deps.Store.GetTransaction(ctx, txID)
	if err != nil {
		h.writeError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListAccounts handles GET /graph/accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.deps.Store.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, "failed to list accounts", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// ListDevices handles GET /graph/devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deps.Store.ListDevices(r.Context())
	if err != nil {
		h.writeError(w, "failed to list devices", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// ListTransactions handles GET /graph/transactions. Accepts an
// optional limit query parameter; defaults to 50.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	transactions, err := h.deps.Store.RecentTransactions(r.Context(), limit)
	if err != nil {
		h.writeError(w, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// ListHighRisk handles GET /graph/transactions/high-risk.
func (h *Handler) ListHighRisk(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.deps.Store.HighRiskTransactions(r.Context(), domain.HighRiskThreshold)
	if err != nil {
		h.writeError(w, "failed to list high risk transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// Stats handles GET /graph/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.deps.Aggregator.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, "failed to aggregate stats", err)
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// Patterns handles GET /graph/patterns. Served from the scan cache
// when warm; otherwise a bounded on-demand scan runs so the endpoint
// works without the background worker.
func (h *Handler) Patterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.deps.Cache != nil {
		if cached, err := h.deps.Cache.Get(ctx, domain.CacheKeyPatterns); err == nil && cached != nil {
			var patterns []domain.Pattern
			if err := json.Unmarshal(cached, &patterns); err == nil {
				writeJSON(w, http.StatusOK, map[string]any{
					"patterns": patterns,
					"count":    len(patterns),
				})
				return
			}
		}
	}

	scanTimeout := time.Duration(h.deps.Scan.TimeoutSecs) * time.Second
	if scanTimeout <= 0 {
		scanTimeout = time.Minute
	}
	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	patterns, err := h.deps.Detector.Scan(scanCtx)
	if err != nil {
		h.writeError(w, "pattern scan failed", err)
		return
	}

	if h.deps.Cache != nil {
		if encoded, err := json.Marshal(patterns); err == nil {
			ttl := time.Duration(h.deps.Scan.CacheTTLSecs) * time.Second
			if ttl <= 0 {
				ttl = 30 * time.Second
			}
			h.deps.Cache.Set(ctx, domain.CacheKeyPatterns, encoded, ttl)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.deps.Store != nil {
		if err := h.deps.Store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.deps.Version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps component errors onto HTTP status codes. Dependency
// failures are distinguished so callers can tell a slow model (504)
// from an unreachable one (502) and from a down database (503).
func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, score.ErrModelTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, score.ErrModelUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, graphstore.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, graphstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, graphstore.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}

	writeJSON(w, status, map[string]string{
		"error": msg + ": " + err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

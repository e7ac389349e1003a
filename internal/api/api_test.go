package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/decision"
	"github.com/opensource-finance/sentinel/internal/detect"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/graphstore"
	"github.com/opensource-finance/sentinel/internal/score"
	"github.com/opensource-finance/sentinel/internal/stats"
)

// modelStub serves a fixed model response.
func modelStub(t *testing.T, riskScore float64, recommendation string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"risk_score": %g,
			"explanation": {"features": [{"name": "recent_identity", "contribution": 0.4, "value": "2h"}]},
			"recommendation": %q
		}`, riskScore, recommendation)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, modelURL string) (*Server, domain.GraphStore) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "sentinel-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := graphstore.New(domain.GraphStoreConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create graph store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ruleScorer, err := score.NewRuleScorer(score.DefaultFeatureRules())
	if err != nil {
		t.Fatalf("failed to create rule scorer: %v", err)
	}

	scanCfg := domain.ScanConfig{
		CycleFloor:     50000,
		DecayHighFloor: 90000,
		DecayLowFloor:  80000,
		DecayTolerance: 5000,
		TimeoutSecs:    5,
		CacheTTLSecs:   30,
	}

	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	server := NewServer(domain.ServerConfig{}, Deps{
		Store:      store,
		Cache:      lru,
		Bus:        eventBus,
		Model:      score.NewModelScorer(domain.ModelConfig{URL: modelURL, TimeoutSecs: 3}),
		Rules:      ruleScorer,
		Detector:   detect.NewDetector(store, scanCfg),
		Aggregator: stats.NewAggregator(store, nil, 0),
		Scan:       scanCfg,
		Version:    "test",
	})

	return server, store
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeAnalyze(t *testing.T, rec *httptest.ResponseRecorder) AnalyzeResponse {
	t.Helper()
	var resp AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestAnalyzeBlocked(t *testing.T) {
	model := modelStub(t, 0.94, "BLOCK")
	server, _ := newTestServer(t, model.URL)

	age := 2.0
	rec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
		Amount:           150000,
		UserID:           "acc-001",
		Timestamp:        "2026-08-31T10:00:00Z",
		DeviceID:         "dev-001",
		Location:         "Lagos, VI",
		IdentityAgeHours: &age,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeAnalyze(t, rec)
	if resp.Status != domain.StatusBlocked {
		t.Errorf("expected BLOCKED, got %s", resp.Status)
	}
	if resp.FraudType != decision.TypeIdentityEnrollment {
		t.Errorf("expected identity enrollment type, got %s", resp.FraudType)
	}
	if resp.RiskScore != 0.94 {
		t.Errorf("expected 0.94, got %v", resp.RiskScore)
	}
	if resp.Source != domain.SourceModel {
		t.Errorf("expected model source, got %s", resp.Source)
	}

	// The stored transaction is retrievable
	getRec := doJSON(t, server, http.MethodGet, "/transactions/"+resp.ID, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", getRec.Code)
	}

	var tx domain.Transaction
	if err := json.Unmarshal(getRec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("failed to decode transaction: %v", err)
	}
	if tx.Status != domain.StatusBlocked || tx.Type != decision.TypeIdentityEnrollment {
		t.Errorf("stored decision mismatch: %s / %s", tx.Status, tx.Type)
	}
}

func TestAnalyzeApproved(t *testing.T) {
	model := modelStub(t, 0.1, "APPROVE")
	server, _ := newTestServer(t, model.URL)

	rec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
		Amount:   500,
		UserID:   "acc-001",
		Location: "Enugu",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeAnalyze(t, rec)
	if resp.Status != domain.StatusApproved {
		t.Errorf("expected APPROVED, got %s", resp.Status)
	}
	if resp.FraudType != decision.TypeNormal {
		t.Errorf("expected Normal, got %s", resp.FraudType)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	model := modelStub(t, 0.1, "APPROVE")
	server, _ := newTestServer(t, model.URL)

	t.Run("MissingUserID", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
			Amount: 500,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
			Amount: 0,
			UserID: "acc-001",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NegativeIdentityAge", func(t *testing.T) {
		age := -1.0
		rec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
			Amount:           500,
			UserID:           "acc-001",
			IdentityAgeHours: &age,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("BadTimestamp", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
			Amount:    500,
			UserID:    "acc-001",
			Timestamp: "yesterday",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transactions/analyze", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAnalyzeModelUnavailable(t *testing.T) {
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := model.URL
	model.Close()

	server, _ := newTestServer(t, url)

	rec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
		Amount: 500,
		UserID: "acc-001",
	})

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestRescore(t *testing.T) {
	// The model disagrees with the rules so the two paths are
	// distinguishable in the response source.
	model := modelStub(t, 0.2, "APPROVE")
	server, _ := newTestServer(t, model.URL)

	age := 2.0
	analyzeRec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
		Amount:           150000,
		UserID:           "acc-001",
		Location:         "Lagos, VI",
		IdentityAgeHours: &age,
	})
	if analyzeRec.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d", analyzeRec.Code)
	}
	analyzed := decodeAnalyze(t, analyzeRec)

	rec := doJSON(t, server, http.MethodPost, "/transactions/"+analyzed.ID+"/rescore", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeAnalyze(t, rec)
	if resp.Source != domain.SourceRules {
		t.Errorf("expected rules source, got %s", resp.Source)
	}
	if resp.RiskScore != domain.MaxRiskScore {
		t.Errorf("expected capped rule score, got %v", resp.RiskScore)
	}
	if resp.Status != domain.StatusBlocked {
		t.Errorf("expected BLOCKED on rescore, got %s", resp.Status)
	}

	// Rescoring does not mutate the stored decision
	getRec := doJSON(t, server, http.MethodGet, "/transactions/"+analyzed.ID, nil)
	var tx domain.Transaction
	if err := json.Unmarshal(getRec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("failed to decode transaction: %v", err)
	}
	if tx.RiskScore != 0.2 || tx.Status != domain.StatusApproved {
		t.Errorf("stored decision changed: %v / %s", tx.RiskScore, tx.Status)
	}
}

func TestRescoreNotFound(t *testing.T) {
	model := modelStub(t, 0.1, "APPROVE")
	server, _ := newTestServer(t, model.URL)

	rec := doJSON(t, server, http.MethodPost, "/transactions/nonexistent/rescore", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGraphEndpoints(t *testing.T) {
	model := modelStub(t, 0.94, "BLOCK")
	server, _ := newTestServer(t, model.URL)

	age := 2.0
	analyzeRec := doJSON(t, server, http.MethodPost, "/transactions/analyze", domain.AnalyzeRequest{
		Amount:           150000,
		UserID:           "acc-001",
		DeviceID:         "dev-001",
		Location:         "Lagos, VI",
		IdentityAgeHours: &age,
		RecipientID:      "acc-002",
	})
	if analyzeRec.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d", analyzeRec.Code)
	}

	t.Run("Accounts", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/graph/accounts", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Count != 2 {
			t.Errorf("expected 2 accounts, got %d", resp.Count)
		}
	})

	t.Run("Devices", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/graph/devices", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 device, got %d", resp.Count)
		}
	})

	t.Run("Transactions", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/graph/transactions?limit=10", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("BadLimit", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/graph/transactions?limit=abc", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("HighRisk", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/graph/transactions/high-risk", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 high risk transaction, got %d", resp.Count)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/graph/stats", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp domain.DashboardStats
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode stats: %v", err)
		}
		if resp.TotalTransactions != 1 || resp.BlockedCount != 1 {
			t.Errorf("unexpected stats: %+v", resp)
		}
		if resp.MoneySaved != "₦0.2M" {
			t.Errorf("expected ₦0.2M saved, got %s", resp.MoneySaved)
		}
	})

	t.Run("Patterns", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/graph/patterns", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected no patterns from a single transfer, got %d", resp.Count)
		}
	})
}

func TestHealth(t *testing.T) {
	model := modelStub(t, 0.1, "APPROVE")
	server, _ := newTestServer(t, model.URL)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}

	readyRec := doJSON(t, server, http.MethodGet, "/ready", nil)
	if readyRec.Code != http.StatusOK {
		t.Errorf("expected 200 from /ready, got %d", readyRec.Code)
	}
}

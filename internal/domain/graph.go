// Package domain defines the core interfaces and types for Sentinel.
package domain

import (
	"time"
)

// Status is the terminal decision for an analyzed transaction.
// It is written exactly once by the decision engine and never mutated;
// re-scoring produces a new assessment, not an in-place edit.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusReview   Status = "REVIEW"
	StatusBlocked  Status = "BLOCKED"
)

// MaxRiskScore caps every risk score below certainty. Irreducible
// uncertainty is always modeled; no path may emit a score above it.
const MaxRiskScore = 0.95

// HighRiskThreshold is the score above which a transaction counts as
// high-risk for dashboard and listing purposes. It is also the
// blocking threshold for the decision engine.
const HighRiskThreshold = 0.7

// ReviewThreshold is the score above which a transaction is routed to
// manual review rather than approved outright.
const ReviewThreshold = 0.4

// Account is a graph node representing a bank account holder.
// Read-only to the analytics core.
type Account struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Bank    string `json:"bank"`
	Country string `json:"country"`
}

// Device is a graph node referenced by transactions via USING_DEVICE.
type Device struct {
	ID   string `json:"id"`
	IMEI string `json:"imei"`
}

// Location is a graph node referenced by transactions via FROM_LOCATION.
type Location struct {
	Name string `json:"name"`
}

// Transaction is a scored transaction node. Every transaction has
// exactly one performing account (the PERFORMED edge).
type Transaction struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	RiskScore float64   `json:"risk_score"`
	Status    Status    `json:"status"`
	Type      string    `json:"type"`

	// Edge endpoints
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	Location string `json:"location,omitempty"`

	// Hours since the account's identity was verified, if known.
	IdentityAgeHours *float64 `json:"identity_age_hours,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Transfer is a SENT_TO edge between two accounts. Pattern detectors
// traverse these edges for cycles and decay chains.
type Transfer struct {
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsRow is the raw aggregate row produced by the graph store.
// All sums are defined zeros when no rows match; absence of blocked
// transactions is an expected state, not an error.
type StatsRow struct {
	TotalTransactions int64
	TotalAmount       float64
	HighRiskCount     int64
	BlockedCount      int64
	BlockedAmount     float64
}

// DashboardStats is the aggregated view served to dashboards.
type DashboardStats struct {
	TotalTransactions    int64   `json:"totalTransactions"`
	FraudDetected        int64   `json:"fraudDetected"`
	BlockedCount         int64   `json:"blockedCount"`
	BlockedAmount        float64 `json:"blockedAmount"`
	MoneySaved           string  `json:"moneySaved"`
	TotalAmountProcessed float64 `json:"totalAmountProcessed"`
}

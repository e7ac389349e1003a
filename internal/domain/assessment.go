package domain

// AnalyzeRequest is the transaction payload submitted for scoring.
// Field names follow the wire format expected by the risk model
// service, so the same payload can be forwarded verbatim.
type AnalyzeRequest struct {
	Amount    float64 `json:"amount"`
	UserID    string  `json:"user_id"`
	Timestamp string  `json:"timestamp"`
	DeviceID  string  `json:"device_id"`
	Location  string  `json:"location"`

	// Hours since identity verification. Nil when unknown.
	IdentityAgeHours *float64 `json:"identity_age_hours,omitempty"`

	// Optional receiving account; when set, a SENT_TO edge is recorded.
	RecipientID string `json:"recipient_id,omitempty"`
}

// RecentIdentity reports whether the account's identity was verified
// less than 24 hours before the transaction.
func (r *AnalyzeRequest) RecentIdentity() bool {
	return r.IdentityAgeHours != nil && *r.IdentityAgeHours < 24
}

// Feature is one contributing signal in a score explanation.
type Feature struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Value        string  `json:"value"`
}

// Explanation is the human-readable breakdown of a risk score.
// Both scoring paths (rule-based and model-backed) emit this shape so
// downstream consumers are agnostic about which produced it.
type Explanation struct {
	Features []Feature `json:"features"`
	Summary  string    `json:"summary,omitempty"`
}

// Recommendation values returned by scorers.
const (
	RecommendApprove = "APPROVE"
	RecommendReview  = "REVIEW"
	RecommendBlock   = "BLOCK"
)

// Assessment is the normalized output of a scorer: a risk score on
// the [0, MaxRiskScore] scale plus its explanation.
type Assessment struct {
	RiskScore      float64     `json:"risk_score"`
	Explanation    Explanation `json:"explanation"`
	Recommendation string      `json:"recommendation"`

	// Source identifies the scoring path: "rules" or "model".
	Source string `json:"source"`
}

// Scorer sources.
const (
	SourceRules = "rules"
	SourceModel = "model"
)

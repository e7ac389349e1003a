// Package decision turns risk scores into terminal statuses and fraud
// type labels.
package decision

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// ErrScoreRange is returned for scores outside [0, MaxRiskScore].
// Such a score indicates a scorer bug; classifying it would silently
// launder the defect into a status.
var ErrScoreRange = errors.New("risk score out of range")

// Fraud type labels. Part of the output contract.
const (
	TypeIdentityEnrollment = "Identity-Enrollment Attack"
	TypeMoneyMule          = "Money Mule"
	TypeNormal             = "Normal"
)

// Thresholds for fraud type classification.
const (
	muleAmountFloor = 90000
	muleScoreFloor  = 0.6
)

// Facts are the transaction attributes the classifier needs beyond the
// score itself.
type Facts struct {
	Amount         float64
	RecentIdentity bool
}

// Classify maps a risk score to a status and a fraud type label. Both
// mappings are total over the valid score range and strictly
// threshold-based, so classification is idempotent and deterministic.
func Classify(score float64, f Facts) (domain.Status, string, error) {
	if score < 0 || score > domain.MaxRiskScore {
		return "", "", fmt.Errorf("%w: %v", ErrScoreRange, score)
	}

	status := domain.StatusApproved
	switch {
	case score > domain.HighRiskThreshold:
		status = domain.StatusBlocked
	case score > domain.ReviewThreshold:
		status = domain.StatusReview
	}

	fraudType := TypeNormal
	switch {
	case f.RecentIdentity && score > domain.HighRiskThreshold:
		fraudType = TypeIdentityEnrollment
	case f.Amount > muleAmountFloor && score > muleScoreFloor:
		fraudType = TypeMoneyMule
	}

	return status, fraudType, nil
}

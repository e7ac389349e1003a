package domain

// Pattern kind labels. These match the labels presented by the
// reporting layer, so they are part of the output contract.
const (
	PatternCircularMule = "Circular Money Mule Network"
	PatternFeeDecay     = "Fee Decay Pattern"
)

// Pattern is one detected structural fraud signature. For a circular
// mule network all three amounts are set; for a fee-decay chain the
// third amount is absent because the chain continues beyond the
// matched window.
type Pattern struct {
	Account1 string   `json:"account1"`
	Account2 string   `json:"account2"`
	Account3 string   `json:"account3"`
	Amount1  float64  `json:"amount1"`
	Amount2  float64  `json:"amount2"`
	Amount3  *float64 `json:"amount3"`
	Kind     string   `json:"pattern"`
}

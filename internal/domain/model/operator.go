// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Tier is a commission tier.
type Tier string

// Commission tiers. Tier1 is the floor for every disqualifying outcome.
const (
	TierNone Tier = ""
	Tier1    Tier = "tier_1"
	Tier2    Tier = "tier_2"
	Tier3    Tier = "tier_3"
)

// Tiers lists the known tiers from lowest to highest.
var Tiers = []Tier{Tier1, Tier2, Tier3}

// Rank orders tiers; unknown tiers rank 0.
func (t Tier) Rank() int {
	switch t {
	case Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool { return t.Rank() > 0 }

// ParseTier parses "tier_1".."tier_3".
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return TierNone, fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// OperatorType selects the withholding-tax rule applied to payouts.
type OperatorType string

const (
	OperatorIndividual OperatorType = "individual"
	OperatorCorporate  OperatorType = "corporate"
)

// Violation is a compliance or safety incident recorded against an operator.
type Violation struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Resolved   bool      `json:"resolved"`
}

// OperatorProfile carries the facts the pipeline consumes from the operator
// registry. The pipeline never edits them.
type OperatorProfile struct {
	ID     string       `json:"id"`
	Region string       `json:"region"`
	Type   OperatorType `json:"type"`
	Active bool         `json:"active"`
	// Tier is the stored tier on the operator record, used until a score exists.
	Tier                  Tier        `json:"tier,omitempty"`
	TenureMonths          int         `json:"tenure_months"`
	PaymentConsistency    float64     `json:"payment_consistency"`
	UtilizationPercentile float64     `json:"utilization_percentile"`
	Violations            []Violation `json:"violations,omitempty"`
}

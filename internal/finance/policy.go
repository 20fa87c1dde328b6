package finance

import (
	"strings"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// PolicyResolver picks the effective late-fee policy for a fee type: an active
// policy scoped to that type wins over the active global one.
type PolicyResolver struct {
	policies []models.LateFeePolicy
}

// NewPolicyResolver snapshots the given policies.
func NewPolicyResolver(policies []models.LateFeePolicy) *PolicyResolver {
	return &PolicyResolver{policies: append([]models.LateFeePolicy(nil), policies...)}
}

// Resolve returns nil when no policy applies; that means "no late fee".
func (r *PolicyResolver) Resolve(feeType *string) *models.LateFeePolicy {
	if r == nil {
		return nil
	}
	return ResolvePolicy(r.policies, feeType)
}

// ResolvePolicy implements the two-tier lookup over an arbitrary policy list.
func ResolvePolicy(policies []models.LateFeePolicy, feeType *string) *models.LateFeePolicy {
	wanted := normalizeFeeType(feeType)

	var specific, global *models.LateFeePolicy
	for i := range policies {
		p := &policies[i]
		if !p.Active {
			continue
		}
		scope := normalizeFeeType(p.FeeType)
		switch {
		case scope == nil:
			if outranks(p, global) {
				global = p
			}
		case wanted != nil && *scope == *wanted:
			if outranks(p, specific) {
				specific = p
			}
		}
	}

	chosen := specific
	if chosen == nil {
		chosen = global
	}
	if chosen == nil {
		return nil
	}
	out := *chosen
	return &out
}

// outranks breaks ties between two policies of the same tier: newest update
// first, then lowest ID.
func outranks(candidate, current *models.LateFeePolicy) bool {
	if current == nil {
		return true
	}
	if !candidate.UpdatedAt.Equal(current.UpdatedAt) {
		return candidate.UpdatedAt.After(current.UpdatedAt)
	}
	return candidate.ID < current.ID
}

func normalizeFeeType(feeType *string) *string {
	if feeType == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*feeType)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

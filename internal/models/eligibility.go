package models

// DenialReason identifies which gate denied course access. The resolver
// reports the first failing gate in a fixed evaluation order, so reasons
// are deterministic for a given store state.
type DenialReason string

const (
	DenialNotApproved       DenialReason = "NOT_APPROVED"
	DenialInsufficientLevel DenialReason = "INSUFFICIENT_LEVEL"
	DenialDomainRestricted  DenialReason = "DOMAIN_RESTRICTED"
	DenialNoTeamAccess      DenialReason = "NO_TEAM_ACCESS"
)

// EligibilityDecision is the computed ALLOW/DENY outcome for a
// (user, course) pair. Reason is empty when Allowed is true.
type EligibilityDecision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"reason,omitempty"`
}

// Allow returns an allowing decision.
func Allow() EligibilityDecision {
	return EligibilityDecision{Allowed: true}
}

// Deny returns a denying decision with the given reason.
func Deny(reason DenialReason) EligibilityDecision {
	return EligibilityDecision{Allowed: false, Reason: reason}
}

package model

import "time"

// VoteType is the kind of ballot cast.
type VoteType string

// Vote kinds. A single veto rejects a workflow outright regardless of
// approval coverage.
const (
	VoteApprove VoteType = "approve"
	VoteVeto    VoteType = "veto"
)

// Vote is an append-only ballot event. A voter may cast multiple votes
// over time; only the most recent (by CastedAt) counts after
// consolidation.
type Vote struct {
	ID             string    `json:"id"`
	WorkflowID     string    `json:"workflow_id"`
	UserID         string    `json:"user_id"`
	Type           VoteType  `json:"type"`
	VotedForGroups []string  `json:"voted_for_groups"`
	CastedAt       time.Time `json:"casted_at"`
}

// NamesGroup reports whether the vote was cast on behalf of the given group.
func (v Vote) NamesGroup(groupID string) bool {
	for _, g := range v.VotedForGroups {
		if g == groupID {
			return true
		}
	}
	return false
}

// Package vote reduces raw vote histories into effective ballots. Votes
// are append-only events; a re-vote fully overrides the voter's earlier
// ballots rather than stacking with them.
package vote

import "github.com/quorumhq/quorum/model"

// Consolidate collapses a raw vote history to one effective vote per
// voter, keeping the latest by CastedAt. Ties on CastedAt keep the vote
// appearing later in the input, so replaying an ordered history is
// stable. Output order is unspecified.
func Consolidate(votes []model.Vote) []model.Vote {
	latest := make(map[string]model.Vote, len(votes))
	for _, v := range votes {
		prev, ok := latest[v.UserID]
		if !ok || !v.CastedAt.Before(prev.CastedAt) {
			latest[v.UserID] = v
		}
	}
	out := make([]model.Vote, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	return out
}

// Partition splits effective votes into approvals and vetoes. Votes of
// unknown type are dropped.
func Partition(votes []model.Vote) (approvals, vetoes []model.Vote) {
	for _, v := range votes {
		switch v.Type {
		case model.VoteApprove:
			approvals = append(approvals, v)
		case model.VoteVeto:
			vetoes = append(vetoes, v)
		}
	}
	return approvals, vetoes
}

package vote

import (
	"sort"
	"testing"
	"time"

	"github.com/quorumhq/quorum/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cast(id, userID string, t model.VoteType, at time.Duration) model.Vote {
	return model.Vote{
		ID:       id,
		UserID:   userID,
		Type:     t,
		CastedAt: base.Add(at),
	}
}

func TestConsolidate_latestPerUserWins(t *testing.T) {
	history := []model.Vote{
		cast("v1", "u1", model.VoteApprove, 0),
		cast("v2", "u2", model.VoteVeto, time.Minute),
		cast("v3", "u1", model.VoteVeto, 2*time.Minute),
		cast("v4", "u2", model.VoteApprove, 3*time.Minute),
		cast("v5", "u1", model.VoteApprove, 4*time.Minute),
	}
	effective := Consolidate(history)
	if len(effective) != 2 {
		t.Fatalf("len(effective) = %d, want 2", len(effective))
	}
	byUser := make(map[string]model.Vote)
	for _, v := range effective {
		byUser[v.UserID] = v
	}
	if byUser["u1"].ID != "v5" {
		t.Errorf("u1 effective vote = %s, want v5", byUser["u1"].ID)
	}
	if byUser["u2"].ID != "v4" {
		t.Errorf("u2 effective vote = %s, want v4", byUser["u2"].ID)
	}
}

func TestConsolidate_idempotent(t *testing.T) {
	history := []model.Vote{
		cast("v1", "u1", model.VoteApprove, 0),
		cast("v2", "u1", model.VoteVeto, time.Minute),
		cast("v3", "u2", model.VoteApprove, 2*time.Minute),
	}
	first := Consolidate(history)
	second := Consolidate(history)
	ids := func(votes []model.Vote) []string {
		out := make([]string, 0, len(votes))
		for _, v := range votes {
			out = append(out, v.ID)
		}
		sort.Strings(out)
		return out
	}
	a, b := ids(first), ids(second)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("effective sets differ: %v vs %v", a, b)
		}
	}
}

func TestConsolidate_tieKeepsLaterInput(t *testing.T) {
	history := []model.Vote{
		cast("v1", "u1", model.VoteApprove, 0),
		cast("v2", "u1", model.VoteVeto, 0),
	}
	effective := Consolidate(history)
	if len(effective) != 1 || effective[0].ID != "v2" {
		t.Errorf("effective = %v, want single vote v2", effective)
	}
}

func TestConsolidate_empty(t *testing.T) {
	if got := Consolidate(nil); len(got) != 0 {
		t.Errorf("Consolidate(nil) = %v, want empty", got)
	}
}

func TestPartition(t *testing.T) {
	votes := []model.Vote{
		cast("v1", "u1", model.VoteApprove, 0),
		cast("v2", "u2", model.VoteVeto, 0),
		cast("v3", "u3", model.VoteApprove, 0),
		cast("v4", "u4", "abstain", 0),
	}
	approvals, vetoes := Partition(votes)
	if len(approvals) != 2 {
		t.Errorf("len(approvals) = %d, want 2", len(approvals))
	}
	if len(vetoes) != 1 {
		t.Errorf("len(vetoes) = %d, want 1", len(vetoes))
	}
}

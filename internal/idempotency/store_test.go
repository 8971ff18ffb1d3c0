package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quorumhq/quorum/model"
)

func TestFormatKey(t *testing.T) {
	got := FormatKey("wf-1", "req-abc")
	want := "vote:wf-1:req-abc"
	if got != want {
		t.Errorf("FormatKey() = %q, want %q", got, want)
	}
}

func TestHashInput_stable(t *testing.T) {
	a := HashInput([]byte(`{"type":"approve"}`))
	b := HashInput([]byte(`{"type":"approve"}`))
	c := HashInput([]byte(`{"type":"veto"}`))
	if a != b {
		t.Error("same payload hashed differently")
	}
	if a == c {
		t.Error("different payloads hashed identically")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := FormatKey("wf-1", "req-1")
	hash := HashInput([]byte("payload"))

	if _, found, err := s.Check(ctx, key, hash); err != nil || found {
		t.Fatalf("Check(empty) = found %v, err %v", found, err)
	}

	want := Result{VoteID: "v-1", WorkflowStatus: model.WorkflowStatusPending}
	if err := s.Save(ctx, key, hash, want, time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, found, err := s.Check(ctx, key, hash)
	if err != nil || !found {
		t.Fatalf("Check() = found %v, err %v", found, err)
	}
	if *got != want {
		t.Errorf("Check() = %+v, want %+v", *got, want)
	}

	// Same key, different payload.
	_, found, err = s.Check(ctx, key, HashInput([]byte("other payload")))
	var env *model.ErrorEnvelope
	if !found || !errors.As(err, &env) || env.Code != model.ErrConflict {
		t.Errorf("Check(mismatched hash) = found %v, err %v, want CONFLICT", found, err)
	}
}

func TestMemoryStore_expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := FormatKey("wf-1", "req-1")
	hash := HashInput([]byte("payload"))

	if err := s.Save(ctx, key, hash, Result{VoteID: "v-1"}, -time.Second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, found, _ := s.Check(ctx, key, hash); found {
		t.Error("Check() found expired entry")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after expiry sweep, want 0", s.Len())
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStore(client)
	key := FormatKey("wf-2", "req-9")
	hash := HashInput([]byte("payload"))

	if _, found, err := s.Check(ctx, key, hash); err != nil || found {
		t.Fatalf("Check(empty) = found %v, err %v", found, err)
	}

	want := Result{VoteID: "v-9", WorkflowStatus: model.WorkflowStatusApproved}
	if err := s.Save(ctx, key, hash, want, time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, found, err := s.Check(ctx, key, hash)
	if err != nil || !found {
		t.Fatalf("Check() = found %v, err %v", found, err)
	}
	if *got != want {
		t.Errorf("Check() = %+v, want %+v", *got, want)
	}

	_, found, err = s.Check(ctx, key, HashInput([]byte("tampered")))
	var env *model.ErrorEnvelope
	if !found || !errors.As(err, &env) || env.Code != model.ErrConflict {
		t.Errorf("Check(mismatched hash) = found %v, err %v, want CONFLICT", found, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, found, _ := s.Check(ctx, key, hash); found {
		t.Error("Check() found entry after TTL elapsed")
	}
}

package store

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestMemoryKVGetSetRoundTrip(t *testing.T) {
	kv := NewMemoryKV()

	type payload struct {
		Name string
	}

	ok, err := kv.Get(SlotLastSync, &payload{})
	if err != nil {
		t.Fatalf("Get on empty slot returned error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for absent slot")
	}

	if err := kv.Set(SlotLastSync, payload{Name: "alice"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out payload
	ok, err = kv.Get(SlotLastSync, &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true after Set")
	}
	if out.Name != "alice" {
		t.Errorf("unexpected roundtrip value: %+v", out)
	}
}

func TestMemoryKVSetReplacesWholeSlot(t *testing.T) {
	kv := NewMemoryKV()
	if err := kv.Set(SlotNotesCache, []int{1, 2, 3}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(SlotNotesCache, []int{9}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var out []int
	if _, err := kv.Get(SlotNotesCache, &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(out) != 1 || out[0] != 9 {
		t.Errorf("expected slot fully replaced, got %v", out)
	}
}

func TestSecureStoreFallsBackToMemoryWithoutKeychain(t *testing.T) {
	// In this sandboxed test environment there is no OS keychain, so every
	// SecureStore call exercises the in-memory fallback path.
	s := NewSecureStore("test-service", zerolog.Nop())

	if err := s.Set(AccountAuthToken, "token-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := s.Get(AccountAuthToken)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || v != "token-1" {
		t.Fatalf("expected fallback round trip, got (%q, %v)", v, ok)
	}

	if err := s.Clear(AccountAuthToken); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	_, ok, err = s.Get(AccountAuthToken)
	if err != nil {
		t.Fatalf("Get after Clear failed: %v", err)
	}
	if ok {
		t.Error("expected value gone after Clear")
	}
}

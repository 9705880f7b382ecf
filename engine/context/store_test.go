package context

import (
	"testing"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/contextkv"
)

func newTestStore() *Store {
	return New(DefaultConfig(), nil, nil)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	if _, err := s.Set("k1", "v1", "owner", contextkv.ScopePrivate, 0, nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, err := s.Get("k1", "owner")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil || entry.Value != "v1" {
		t.Fatalf("got %+v", entry)
	}
}

func TestPrivateScopeDeniesOtherAgents(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopePrivate, 0, nil)
	_, err := s.Get("k1", "stranger")
	if err == nil {
		t.Fatalf("expected access denied")
	}
}

func TestGlobalScopeAllowsAnyone(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopeGlobal, 0, nil)
	entry, err := s.Get("k1", "stranger")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry == nil {
		t.Fatalf("expected entry")
	}
}

func TestSharePermitsListedAgentsOnly(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopePrivate, 0, nil)
	if err := s.Share("k1", "owner", []contextkv.AgentID{"friend"}); err != nil {
		t.Fatalf("share: %v", err)
	}

	if _, err := s.Get("k1", "friend"); err != nil {
		t.Fatalf("friend should be able to read: %v", err)
	}
	if _, err := s.Get("k1", "stranger"); err == nil {
		t.Fatalf("stranger should still be denied")
	}
}

func TestShareRequiresOwnership(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopePrivate, 0, nil)
	if err := s.Share("k1", "stranger", []contextkv.AgentID{"friend"}); err == nil {
		t.Fatalf("expected access denied for non-owner share")
	}
}

func TestPipelineScopeMatchesMetadata(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopePipeline, 0, map[string]any{"pipelineId": "p1"})

	if _, err := s.GetInPipeline("k1", "other", "p1"); err != nil {
		t.Fatalf("same pipeline should be allowed: %v", err)
	}
	if _, err := s.GetInPipeline("k1", "other", "p2"); err == nil {
		t.Fatalf("different pipeline should be denied")
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopeGlobal, 0, nil)
	if _, err := s.Delete("k1", "stranger"); err == nil {
		t.Fatalf("expected access denied")
	}
	ok, err := s.Delete("k1", "owner")
	if err != nil || !ok {
		t.Fatalf("owner delete should succeed: ok=%v err=%v", ok, err)
	}
	entry, _ := s.Get("k1", "owner")
	if entry != nil {
		t.Fatalf("expected key gone after delete")
	}
}

func TestVersionIncrementsOnSet(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	e1, _ := s.Set("k1", "v1", "owner", contextkv.ScopeGlobal, 0, nil)
	e2, _ := s.Set("k1", "v2", "owner", contextkv.ScopeGlobal, 0, nil)
	if e1.Version != 1 || e2.Version != 2 {
		t.Fatalf("got versions %d, %d", e1.Version, e2.Version)
	}
}

func TestTTLExpiryOnRead(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopeGlobal, 10*time.Millisecond, nil)
	time.Sleep(20 * time.Millisecond)
	entry, err := s.Get("k1", "owner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected expired entry to read as absent")
	}
	if s.GetEntryCount() != 0 {
		t.Fatalf("expected lazy deletion on read")
	}
}

func TestMaxEntriesRejectsOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 1
	s := New(cfg, nil, nil)
	defer s.Shutdown()

	if _, err := s.Set("k1", "v1", "owner", contextkv.ScopeGlobal, 0, nil); err != nil {
		t.Fatalf("first set should succeed: %v", err)
	}
	if _, err := s.Set("k2", "v2", "owner", contextkv.ScopeGlobal, 0, nil); err == nil {
		t.Fatalf("expected overflow error")
	}
	// Replacing an existing key never counts as growth.
	if _, err := s.Set("k1", "v1b", "owner", contextkv.ScopeGlobal, 0, nil); err != nil {
		t.Fatalf("replace of existing key should succeed: %v", err)
	}
}

func TestQueryFiltersByOwnerAndPrefix(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("agent:1", "a", "owner1", contextkv.ScopeGlobal, 0, nil)
	_, _ = s.Set("agent:2", "b", "owner2", contextkv.ScopeGlobal, 0, nil)
	_, _ = s.Set("other:1", "c", "owner1", contextkv.ScopeGlobal, 0, nil)

	results := s.Query(contextkv.Query{Prefix: "agent:"}, "anyone")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	owner1 := contextkv.AgentID("owner1")
	results = s.Query(contextkv.Query{OwnerID: &owner1}, "anyone")
	if len(results) != 2 {
		t.Fatalf("expected 2 owner1 results, got %d", len(results))
	}
}

func TestQueryExcludesInaccessibleEntries(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopePrivate, 0, nil)
	_, _ = s.Set("k2", "v2", "owner", contextkv.ScopeGlobal, 0, nil)

	results := s.Query(contextkv.Query{}, "stranger")
	if len(results) != 1 || results[0].Key != "k2" {
		t.Fatalf("expected only the global entry visible to stranger, got %+v", results)
	}
}

func TestGetKeysFiltersByScope(t *testing.T) {
	s := newTestStore()
	defer s.Shutdown()

	_, _ = s.Set("k1", "v1", "owner", contextkv.ScopeGlobal, 0, nil)
	_, _ = s.Set("k2", "v2", "owner", contextkv.ScopePrivate, 0, nil)

	global := contextkv.ScopeGlobal
	keys := s.GetKeys(&global)
	if len(keys) != 1 || keys[0] != "k1" {
		t.Fatalf("got %v", keys)
	}
}

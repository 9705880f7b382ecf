package redisadapter

import (
	"testing"

	"github.com/R3E-Network/pipeline-orchestrator/domain/contextkv"
)

// These cover the adapter's pure ACL/matching logic, which mirrors
// engine/context.Store's canRead exactly (spec §4.C) and needs no Redis
// connection. The request-handling methods (Set/Get/Query/...) need a live
// Redis instance and have no tests in this package, since go-redis v8 has
// no in-process fake and none of the example repos vendor one.

func TestCanReadOwnerAlwaysAllowed(t *testing.T) {
	rec := &storedRecord{Entry: contextkv.Entry{OwnerID: "owner", Scope: contextkv.ScopePrivate}}
	if !canRead(rec, "owner", "") {
		t.Fatalf("owner should always be able to read their own entry")
	}
}

func TestCanReadPrivateDeniesOthers(t *testing.T) {
	rec := &storedRecord{Entry: contextkv.Entry{OwnerID: "owner", Scope: contextkv.ScopePrivate}}
	if canRead(rec, "stranger", "") {
		t.Fatalf("private scope must deny non-owners")
	}
}

func TestCanReadGlobalAllowsAnyone(t *testing.T) {
	rec := &storedRecord{Entry: contextkv.Entry{OwnerID: "owner", Scope: contextkv.ScopeGlobal}}
	if !canRead(rec, "stranger", "") {
		t.Fatalf("global scope must allow any requester")
	}
}

func TestCanReadSharedRequiresACLMembership(t *testing.T) {
	rec := &storedRecord{
		Entry: contextkv.Entry{OwnerID: "owner", Scope: contextkv.ScopeShared},
		ACL:   []contextkv.AgentID{"friend"},
	}
	if !canRead(rec, "friend", "") {
		t.Fatalf("listed agent should be able to read")
	}
	if canRead(rec, "stranger", "") {
		t.Fatalf("unlisted agent should be denied")
	}
}

func TestCanReadPipelineScopeMatchesMetadata(t *testing.T) {
	rec := &storedRecord{Entry: contextkv.Entry{
		OwnerID: "owner", Scope: contextkv.ScopePipeline,
		Metadata: map[string]any{"pipelineId": "p1"},
	}}
	if !canRead(rec, "other", "p1") {
		t.Fatalf("same pipeline should be allowed")
	}
	if canRead(rec, "other", "p2") {
		t.Fatalf("different pipeline should be denied")
	}
}

func TestHasPrefix(t *testing.T) {
	if !hasPrefix("agent:1", "agent:") {
		t.Fatalf("expected prefix match")
	}
	if hasPrefix("agent", "agent:") {
		t.Fatalf("expected no match for shorter string")
	}
}

func TestMatchPattern(t *testing.T) {
	if !matchPattern("agent:1", "agent:*") {
		t.Fatalf("expected wildcard match")
	}
	if matchPattern("other:1", "agent:*") {
		t.Fatalf("expected wildcard mismatch")
	}
	if !matchPattern("exact", "exact") {
		t.Fatalf("expected exact match")
	}
}

func TestDefaultConfigFillsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.KeyPrefix == "" || cfg.MaxEntries <= 0 || cfg.MaxScanIterations <= 0 {
		t.Fatalf("got %+v", cfg)
	}
}

// Package context implements the Shared Context Store (spec §4.C): a
// scoped, versioned, TTL'd key/value store with owner-based ACLs and
// bounded query scans.
package context

import (
	"sync"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/contextkv"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

// Config controls store-wide limits (spec §4.C).
type Config struct {
	MaxEntries        int
	CleanupInterval   time.Duration
	MaxScanIterations int
	VersioningEnabled bool
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:        100000,
		CleanupInterval:   time.Minute,
		MaxScanIterations: 10000,
		VersioningEnabled: true,
	}
}

type record struct {
	entry contextkv.Entry
	acl   map[contextkv.AgentID]struct{}
}

// Store is the in-memory Shared Context Store.
type Store struct {
	cfg Config
	log *logging.Logger
	evt *events.Bus

	mu      sync.RWMutex
	entries map[string]*record

	cleanupStop chan struct{}
	closeOnce   sync.Once
}

// New constructs a Store and starts its periodic expiry sweep.
func New(cfg Config, log *logging.Logger, evt *events.Bus) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxScanIterations <= 0 {
		cfg.MaxScanIterations = 10000
	}
	if log == nil {
		log = logging.NewDefault("context")
	}
	s := &Store{
		cfg:         cfg,
		log:         log,
		evt:         evt,
		entries:     make(map[string]*record),
		cleanupStop: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *Store) publish(variant events.Variant, data map[string]any) {
	if s.evt != nil {
		s.evt.Publish(variant, data)
	}
}

// Set creates or replaces key's value, owned by ownerID at scope (default
// PRIVATE). Version increments monotonically when versioning is enabled.
// metadata replaces any metadata the entry had; pass nil when there is none. A
// PIPELINE-scoped entry must carry metadata["pipelineId"] for ACL
// resolution (spec §4.C).
func (s *Store) Set(key string, value any, ownerID contextkv.AgentID, scope contextkv.Scope, ttl time.Duration, metadata map[string]any) (*contextkv.Entry, error) {
	if scope == "" {
		scope = contextkv.ScopePrivate
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if !ok && len(s.entries) >= s.cfg.MaxEntries {
		return nil, orcherrors.Overflow("context store is at max entries")
	}

	version := 1
	var acl map[contextkv.AgentID]struct{}
	createdAt := now
	if ok {
		createdAt = existing.entry.CreatedAt
		acl = existing.acl
		if s.cfg.VersioningEnabled {
			version = existing.entry.Version + 1
		} else {
			version = existing.entry.Version
			if version < 1 {
				version = 1
			}
		}
	}

	entry := contextkv.Entry{
		Key:       key,
		Value:     value,
		Scope:     scope,
		OwnerID:   ownerID,
		CreatedAt: createdAt,
		UpdatedAt: now,
		Version:   version,
		TTL:       ttl,
		Metadata:  metadata,
	}
	s.entries[key] = &record{entry: entry, acl: acl}

	s.publish(events.ContextSet, map[string]any{"key": key, "scope": string(scope), "ownerId": string(ownerID)})
	out := entry
	return &out, nil
}

// Get returns key's entry if requesterID is permitted to read it. A
// missing or expired key returns (nil, nil); expiry deletes lazily.
func (s *Store) Get(key string, requesterID contextkv.AgentID) (*contextkv.Entry, error) {
	return s.getWithPipeline(key, requesterID, "")
}

// GetInPipeline is Get, additionally accepting the requester's pipeline id
// for PIPELINE-scoped ACL resolution (spec §4.C).
func (s *Store) GetInPipeline(key string, requesterID contextkv.AgentID, pipelineID string) (*contextkv.Entry, error) {
	return s.getWithPipeline(key, requesterID, pipelineID)
}

func (s *Store) getWithPipeline(key string, requesterID contextkv.AgentID, pipelineID string) (*contextkv.Entry, error) {
	now := time.Now()

	s.mu.Lock()
	rec, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	if rec.entry.Expired(now) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.publish(events.ContextExpired, map[string]any{"key": key})
		return nil, nil
	}
	entry := rec.entry
	allowed := s.canRead(rec, requesterID, pipelineID)
	s.mu.Unlock()

	if !allowed {
		return nil, orcherrors.AccessDenied("requester may not read key " + key)
	}
	return &entry, nil
}

// canRead applies the ACL resolution rules of spec §4.C. Callers must hold
// at least a read lock on s.mu (via the caller's own Lock/RLock).
func (s *Store) canRead(rec *record, requesterID contextkv.AgentID, pipelineID string) bool {
	if rec.entry.OwnerID == requesterID {
		return true
	}
	switch rec.entry.Scope {
	case contextkv.ScopeGlobal:
		return true
	case contextkv.ScopePrivate:
		return false
	case contextkv.ScopeShared:
		if rec.acl == nil {
			return false
		}
		_, ok := rec.acl[requesterID]
		return ok
	case contextkv.ScopePipeline:
		entryPipelineID, _ := rec.entry.Metadata["pipelineId"].(string)
		if pipelineID != "" {
			return entryPipelineID == pipelineID
		}
		return false
	default:
		return false
	}
}

// Delete removes key if requesterID owns it. Returns false if the key is
// absent, already expired, or not owned by the requester.
func (s *Store) Delete(key string, requesterID contextkv.AgentID) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	rec, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	if rec.entry.Expired(now) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.publish(events.ContextExpired, map[string]any{"key": key})
		return false, nil
	}
	if rec.entry.OwnerID != requesterID {
		s.mu.Unlock()
		return false, orcherrors.AccessDenied("only the owner may delete key " + key)
	}
	delete(s.entries, key)
	s.mu.Unlock()

	s.publish(events.ContextDeleted, map[string]any{"key": key})
	return true, nil
}

// Share transitions key to SHARED scope and appends agentIDs to its ACL.
// Only the owner may share.
func (s *Store) Share(key string, ownerID contextkv.AgentID, agentIDs []contextkv.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok {
		return orcherrors.NotFound("no such context key: " + key)
	}
	if rec.entry.OwnerID != ownerID {
		return orcherrors.AccessDenied("only the owner may share key " + key)
	}

	rec.entry.Scope = contextkv.ScopeShared
	rec.entry.UpdatedAt = time.Now()
	if rec.acl == nil {
		rec.acl = make(map[contextkv.AgentID]struct{}, len(agentIDs))
	}
	for _, id := range agentIDs {
		rec.acl[id] = struct{}{}
	}

	s.publish(events.ContextShared, map[string]any{"key": key, "agents": agentIDs})
	return nil
}

// Query returns every non-expired entry matching q that requesterID may
// read, scanning at most MaxScanIterations candidate entries.
func (s *Store) Query(q contextkv.Query, requesterID contextkv.AgentID) []contextkv.Entry {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]contextkv.Entry, 0)
	scanned := 0
	for _, rec := range s.entries {
		if scanned >= s.cfg.MaxScanIterations {
			break
		}
		scanned++

		if rec.entry.Expired(now) {
			continue
		}
		if q.Scope != nil && rec.entry.Scope != *q.Scope {
			continue
		}
		if q.OwnerID != nil && rec.entry.OwnerID != *q.OwnerID {
			continue
		}
		if q.Prefix != "" && !hasPrefix(rec.entry.Key, q.Prefix) {
			continue
		}
		if q.Pattern != "" && !matchPattern(rec.entry.Key, q.Pattern) {
			continue
		}
		if !s.canRead(rec, requesterID, q.PipelineID) {
			continue
		}
		results = append(results, rec.entry)
	}
	return results
}

// GetEntryCount returns the number of live entries, including not-yet-swept
// expired ones.
func (s *Store) GetEntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetKeys returns every key, optionally filtered to a single scope.
func (s *Store) GetKeys(scope *contextkv.Scope) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for k, rec := range s.entries {
		if scope != nil && rec.entry.Scope != *scope {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Shutdown stops the periodic cleanup sweep.
func (s *Store) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.cleanupStop)
	})
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.cleanupStop:
			return
		}
	}
}

func (s *Store) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	for k, rec := range s.entries {
		if rec.entry.Expired(now) {
			delete(s.entries, k)
			s.publish(events.ContextExpired, map[string]any{"key": k})
		}
	}
	count := len(s.entries)
	s.mu.Unlock()
	obsmetrics.SetContextEntries(count)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// matchPattern supports a single trailing '*' wildcard (e.g. "agent:*"),
// matching the glob style the teacher's other scoped stores use; an exact
// string otherwise.
func matchPattern(s, pattern string) bool {
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		return hasPrefix(s, pattern[:n-1])
	}
	return s == pattern
}

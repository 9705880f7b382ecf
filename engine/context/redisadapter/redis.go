// Package redisadapter implements the Shared Context Store's operation
// contract (engine/context.ContextStore) against Redis instead of an
// in-process map, realizing spec §6's "a separate durable store can back
// the context via an adapter implementing the same operation contract".
// It is an alternate backing store selected at construction time; the
// volatility guarantee in spec §1's Non-goals still describes the default
// in-memory engine/context.Store, not this adapter.
package redisadapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/pipeline-orchestrator/domain/contextkv"
	ctxstore "github.com/R3E-Network/pipeline-orchestrator/engine/context"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

var _ ctxstore.ContextStore = (*Store)(nil)

// Config controls the adapter's Redis key layout and limits.
type Config struct {
	KeyPrefix         string
	MaxEntries        int
	MaxScanIterations int
}

// DefaultConfig mirrors the in-memory store's defaults (spec §4.C).
func DefaultConfig() Config {
	return Config{KeyPrefix: "orchestrator:ctx:", MaxEntries: 100000, MaxScanIterations: 10000}
}

// storedRecord is the JSON shape persisted per key; it carries the ACL
// alongside the entry since Redis has no notion of the in-memory store's
// companion "record" struct.
type storedRecord struct {
	Entry contextkv.Entry     `json:"entry"`
	ACL   []contextkv.AgentID `json:"acl,omitempty"`
}

// Store is a Redis-backed ContextStore. One logical key maps to one Redis
// string key holding storedRecord JSON; the TTL is additionally mirrored
// onto the Redis key's own expiry so Redis itself can reclaim expired
// entries between our own lazy-expiry reads.
type Store struct {
	rdb *redis.Client
	cfg Config
	log *logging.Logger
	evt *events.Bus
}

// New wraps an already-connected redis.Client. Callers own the client's
// lifecycle (Close it themselves); the adapter never dials or closes it.
func New(rdb *redis.Client, cfg Config, log *logging.Logger, evt *events.Bus) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "orchestrator:ctx:"
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100000
	}
	if cfg.MaxScanIterations <= 0 {
		cfg.MaxScanIterations = 10000
	}
	if log == nil {
		log = logging.NewDefault("context-redis")
	}
	return &Store{rdb: rdb, cfg: cfg, log: log, evt: evt}
}

func (s *Store) redisKey(key string) string { return s.cfg.KeyPrefix + key }

func (s *Store) indexKey() string { return s.cfg.KeyPrefix + "__index__" }

func (s *Store) publish(variant events.Variant, data map[string]any) {
	if s.evt != nil {
		s.evt.Publish(variant, data)
	}
}

func (s *Store) load(ctx context.Context, key string) (*storedRecord, error) {
	raw, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindHandlerFailure, "redis get failed", err)
	}
	var rec storedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindHandlerFailure, "corrupt context record", err)
	}
	if rec.Entry.Expired(time.Now()) {
		_ = s.forget(ctx, key)
		s.publish(events.ContextExpired, map[string]any{"key": key})
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) save(ctx context.Context, key string, rec *storedRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindHandlerFailure, "encode context record", err)
	}
	var expiry time.Duration
	if rec.Entry.TTL > 0 {
		expiry = rec.Entry.TTL
	}
	if err := s.rdb.Set(ctx, s.redisKey(key), raw, expiry).Err(); err != nil {
		return orcherrors.Wrap(orcherrors.KindHandlerFailure, "redis set failed", err)
	}
	if err := s.rdb.SAdd(ctx, s.indexKey(), key).Err(); err != nil {
		return orcherrors.Wrap(orcherrors.KindHandlerFailure, "redis index update failed", err)
	}
	return nil
}

func (s *Store) forget(ctx context.Context, key string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.redisKey(key))
	pipe.SRem(ctx, s.indexKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// Set creates or replaces key's value. It uses a background context
// internally since the ContextStore contract (engine/context.ContextStore)
// takes no per-call context — callers needing deadline control should use
// the in-memory Store instead.
func (s *Store) Set(key string, value any, ownerID contextkv.AgentID, scope contextkv.Scope, ttl time.Duration, metadata map[string]any) (*contextkv.Entry, error) {
	ctx := context.Background()
	if scope == "" {
		scope = contextkv.ScopePrivate
	}

	existing, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		count, err := s.rdb.SCard(ctx, s.indexKey()).Result()
		if err != nil {
			return nil, orcherrors.Wrap(orcherrors.KindHandlerFailure, "redis scard failed", err)
		}
		if int(count) >= s.cfg.MaxEntries {
			return nil, orcherrors.Overflow("context store is at max entries")
		}
	}

	now := time.Now()
	version := 1
	var acl []contextkv.AgentID
	createdAt := now
	if existing != nil {
		createdAt = existing.Entry.CreatedAt
		acl = existing.ACL
		version = existing.Entry.Version + 1
	}

	entry := contextkv.Entry{
		Key: key, Value: value, Scope: scope, OwnerID: ownerID,
		CreatedAt: createdAt, UpdatedAt: now, Version: version, TTL: ttl, Metadata: metadata,
	}
	if err := s.save(ctx, key, &storedRecord{Entry: entry, ACL: acl}); err != nil {
		return nil, err
	}

	s.publish(events.ContextSet, map[string]any{"key": key, "scope": string(scope), "ownerId": string(ownerID)})
	out := entry
	return &out, nil
}

// Get returns key's entry if requesterID may read it (spec §4.C ACL rules).
func (s *Store) Get(key string, requesterID contextkv.AgentID) (*contextkv.Entry, error) {
	return s.getWithPipeline(key, requesterID, "")
}

// GetInPipeline is Get with an explicit pipeline id for PIPELINE-scoped ACL
// resolution.
func (s *Store) GetInPipeline(key string, requesterID contextkv.AgentID, pipelineID string) (*contextkv.Entry, error) {
	return s.getWithPipeline(key, requesterID, pipelineID)
}

func (s *Store) getWithPipeline(key string, requesterID contextkv.AgentID, pipelineID string) (*contextkv.Entry, error) {
	ctx := context.Background()
	rec, err := s.load(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	if !canRead(rec, requesterID, pipelineID) {
		return nil, orcherrors.AccessDenied("requester may not read key " + key)
	}
	out := rec.Entry
	return &out, nil
}

// canRead mirrors engine/context.Store.canRead exactly (spec §4.C).
func canRead(rec *storedRecord, requesterID contextkv.AgentID, pipelineID string) bool {
	if rec.Entry.OwnerID == requesterID {
		return true
	}
	switch rec.Entry.Scope {
	case contextkv.ScopeGlobal:
		return true
	case contextkv.ScopePrivate:
		return false
	case contextkv.ScopeShared:
		for _, id := range rec.ACL {
			if id == requesterID {
				return true
			}
		}
		return false
	case contextkv.ScopePipeline:
		entryPipelineID, _ := rec.Entry.Metadata["pipelineId"].(string)
		return pipelineID != "" && entryPipelineID == pipelineID
	default:
		return false
	}
}

// Delete removes key if requesterID owns it.
func (s *Store) Delete(key string, requesterID contextkv.AgentID) (bool, error) {
	ctx := context.Background()
	rec, err := s.load(ctx, key)
	if err != nil || rec == nil {
		return false, err
	}
	if rec.Entry.OwnerID != requesterID {
		return false, orcherrors.AccessDenied("only the owner may delete key " + key)
	}
	if err := s.forget(ctx, key); err != nil {
		return false, orcherrors.Wrap(orcherrors.KindHandlerFailure, "redis delete failed", err)
	}
	s.publish(events.ContextDeleted, map[string]any{"key": key})
	return true, nil
}

// Share transitions key to SHARED scope and appends agentIDs to its ACL.
func (s *Store) Share(key string, ownerID contextkv.AgentID, agentIDs []contextkv.AgentID) error {
	ctx := context.Background()
	rec, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return orcherrors.NotFound("no such context key: " + key)
	}
	if rec.Entry.OwnerID != ownerID {
		return orcherrors.AccessDenied("only the owner may share key " + key)
	}

	rec.Entry.Scope = contextkv.ScopeShared
	rec.Entry.UpdatedAt = time.Now()
	seen := make(map[contextkv.AgentID]struct{}, len(rec.ACL))
	for _, id := range rec.ACL {
		seen[id] = struct{}{}
	}
	for _, id := range agentIDs {
		if _, ok := seen[id]; !ok {
			rec.ACL = append(rec.ACL, id)
			seen[id] = struct{}{}
		}
	}

	if err := s.save(ctx, key, rec); err != nil {
		return err
	}
	s.publish(events.ContextShared, map[string]any{"key": key, "agents": agentIDs})
	return nil
}

// Query returns every non-expired entry matching q that requesterID may
// read, scanning at most MaxScanIterations candidate keys from the index
// set (spec §4.C "iteration limit ... MUST cap worst-case scans").
func (s *Store) Query(q contextkv.Query, requesterID contextkv.AgentID) []contextkv.Entry {
	ctx := context.Background()
	keys, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil
	}

	results := make([]contextkv.Entry, 0)
	scanned := 0
	for _, key := range keys {
		if scanned >= s.cfg.MaxScanIterations {
			break
		}
		scanned++

		rec, err := s.load(ctx, key)
		if err != nil || rec == nil {
			continue
		}
		if q.Scope != nil && rec.Entry.Scope != *q.Scope {
			continue
		}
		if q.OwnerID != nil && rec.Entry.OwnerID != *q.OwnerID {
			continue
		}
		if q.Prefix != "" && !hasPrefix(rec.Entry.Key, q.Prefix) {
			continue
		}
		if q.Pattern != "" && !matchPattern(rec.Entry.Key, q.Pattern) {
			continue
		}
		if !canRead(rec, requesterID, q.PipelineID) {
			continue
		}
		results = append(results, rec.Entry)
	}
	return results
}

// GetEntryCount returns the number of indexed keys, including not-yet-swept
// expired ones whose Redis TTL has not yet fired.
func (s *Store) GetEntryCount() int {
	n, err := s.rdb.SCard(context.Background(), s.indexKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// GetKeys returns every indexed key, optionally filtered to a single scope.
func (s *Store) GetKeys(scope *contextkv.Scope) []string {
	ctx := context.Background()
	keys, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil
	}
	if scope == nil {
		return keys
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		rec, err := s.load(ctx, key)
		if err != nil || rec == nil {
			continue
		}
		if rec.Entry.Scope == *scope {
			out = append(out, key)
		}
	}
	return out
}

// Shutdown is a no-op: the adapter does not own the Redis client's
// lifecycle (the caller constructed and will close it).
func (s *Store) Shutdown() {}

func hasPrefix(str, prefix string) bool {
	return len(str) >= len(prefix) && str[:len(prefix)] == prefix
}

func matchPattern(str, pattern string) bool {
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		return hasPrefix(str, pattern[:n-1])
	}
	return str == pattern
}

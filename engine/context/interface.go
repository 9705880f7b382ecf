package context

import (
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/contextkv"
)

// ContextStore is the operation contract the Shared Context Store exposes
// (spec §4.C/§6: "a separate durable store can back the context via an
// adapter implementing the same operation contract"). Store satisfies this
// interface; engine/context/redisadapter provides a durable alternative.
type ContextStore interface {
	Set(key string, value any, ownerID contextkv.AgentID, scope contextkv.Scope, ttl time.Duration, metadata map[string]any) (*contextkv.Entry, error)
	Get(key string, requesterID contextkv.AgentID) (*contextkv.Entry, error)
	GetInPipeline(key string, requesterID contextkv.AgentID, pipelineID string) (*contextkv.Entry, error)
	Delete(key string, requesterID contextkv.AgentID) (bool, error)
	Share(key string, ownerID contextkv.AgentID, agentIDs []contextkv.AgentID) error
	Query(q contextkv.Query, requesterID contextkv.AgentID) []contextkv.Entry
	GetEntryCount() int
	GetKeys(scope *contextkv.Scope) []string
}

var _ ContextStore = (*Store)(nil)

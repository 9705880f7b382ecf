package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/R3E-Network/pipeline-orchestrator/domain/contextkv"
	"github.com/R3E-Network/pipeline-orchestrator/domain/messaging"
	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/engine/bus"
	orchcontext "github.com/R3E-Network/pipeline-orchestrator/engine/context"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/engine/factory"
	"github.com/R3E-Network/pipeline-orchestrator/engine/graph"
	"github.com/R3E-Network/pipeline-orchestrator/engine/monitor"
	orchslo "github.com/R3E-Network/pipeline-orchestrator/engine/slo"
	"github.com/R3E-Network/pipeline-orchestrator/engine/stream"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/config"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

// serverDeps carries every wired subsystem an HTTP handler might need
// (design note §9: an explicit runtime value, not package-level globals).
type serverDeps struct {
	cfg             config.Config
	log             *logging.Logger
	evt             *events.Bus
	bus             *bus.Bus
	ctxStore        orchcontext.ContextStore
	sloMonitor      *orchslo.Monitor
	pipelineMonitor *monitor.Monitor
	hub             *stream.Hub
	factory         *factory.Factory
	handlers        graph.HandlerRegistry
	recorder        *metricsRecorder
}

func newRouter(deps *serverDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginLogger(deps.log))

	r.GET("/health", deps.handleHealth)
	r.GET("/metrics", gin.WrapH(obsmetrics.Handler()))
	r.GET("/ws", func(c *gin.Context) { deps.hub.ServeWS(c.Writer, c.Request) })

	slo := r.Group("/slo")
	slo.GET("/dashboard", deps.handleSLODashboard)
	slo.GET("/alerts", deps.handleSLOAlertRules)
	slo.GET("/status", deps.handleSLOStatus)

	pipelines := r.Group("/pipelines")
	pipelines.POST("", deps.handleRunPipeline)

	agents := r.Group("/agents")
	agents.POST("/:id", deps.handleRegisterAgent)
	agents.GET("", deps.handleListAgents)

	msgs := r.Group("/messages")
	msgs.POST("/broadcast", deps.handleBroadcast)
	msgs.POST("/request", deps.handleRequest)

	ctx := r.Group("/context")
	ctx.PUT("/:key", deps.handleContextSet)
	ctx.GET("/:key", deps.handleContextGet)
	ctx.DELETE("/:key", deps.handleContextDelete)
	ctx.POST("/:key/share", deps.handleContextShare)

	return r
}

func ginLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}

func (d *serverDeps) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"registeredAgents": d.bus.GetRegisteredAgents(),
		"contextEntries":  d.ctxStore.GetEntryCount(),
	})
}

func (d *serverDeps) handleSLODashboard(c *gin.Context) {
	body, err := orchslo.GenerateDashboard(orchslo.DefaultSLOs())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (d *serverDeps) handleSLOAlertRules(c *gin.Context) {
	body, err := orchslo.GenerateAlertRules(orchslo.DefaultSLOs())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (d *serverDeps) handleSLOStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": d.sloMonitor.History()})
}

type runPipelineRequest struct {
	Type        pipeline.Type          `json:"type" binding:"required"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Concurrency int                    `json:"concurrency"`
	TimeoutMs   int64                  `json:"timeoutMs"`
}

// handleRunPipeline builds a GraphDefinition from the requested pipeline
// type (engine/factory), executes it synchronously to completion, feeds
// the result through the Pipeline Monitor for critical-path/bottleneck
// analysis, and returns both (spec §4.D/§4.E/§4.H end to end).
func (d *serverDeps) handleRunPipeline(c *gin.Context) {
	var req runPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pipelineID := uuid.NewString()
	pcfg := pipeline.PipelineConfig{
		Type: req.Type, Name: req.Name, Description: req.Description,
		Parameters: req.Parameters, Concurrency: req.Concurrency,
	}
	if req.TimeoutMs > 0 {
		pcfg.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	def, err := d.factory.Build(pipelineID, pcfg)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	exec := graph.NewExecutor(def, d.handlers, graph.Config{
		DefaultConcurrency: d.cfg.Graph.DefaultConcurrency,
		DefaultTimeout:     d.cfg.Graph.DefaultTimeout,
		HistorySize:        d.cfg.Graph.HistorySize,
	}, d.log, d.evt)

	executionID := uuid.NewString()
	if d.evt != nil {
		d.evt.Publish(events.PipelineStarted, map[string]any{"pipelineId": pipelineID, "type": string(req.Type)})
	}

	result, _ := exec.Run(c.Request.Context(), executionID, def.Variables, pcfg.Concurrency, pcfg.Timeout)
	report := d.pipelineMonitor.Analyze(def, string(req.Type), result)
	d.recorder.Record("rpc_latency_ms", float64(result.Duration.Milliseconds()))

	if d.evt != nil {
		if result.Success {
			d.evt.Publish(events.PipelineCompleted, map[string]any{"pipelineId": pipelineID})
		} else {
			d.evt.Publish(events.PipelineFailed, map[string]any{"pipelineId": pipelineID})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"graphId":     def.ID,
		"executionId": executionID,
		"result":      result,
		"report":      report,
	})
}

func (d *serverDeps) handleRegisterAgent(c *gin.Context) {
	id := messaging.AgentID(c.Param("id"))
	d.bus.RegisterAgent(id)
	c.JSON(http.StatusCreated, gin.H{"agentId": string(id)})
}

func (d *serverDeps) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": d.bus.GetRegisteredAgents()})
}

type broadcastRequest struct {
	From     string      `json:"from" binding:"required"`
	Payload  interface{} `json:"payload"`
	Priority int         `json:"priority"`
}

func (d *serverDeps) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := d.bus.Send(messaging.Message{
		Type: messaging.TypeBroadcast, From: messaging.AgentID(req.From),
		Payload: req.Payload, Priority: messaging.Priority(req.Priority),
	})
	if err != nil {
		writeOrchError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"messageId": id})
}

type requestRequest struct {
	From      string      `json:"from" binding:"required"`
	To        string      `json:"to" binding:"required"`
	Payload   interface{} `json:"payload"`
	TimeoutMs int64       `json:"timeoutMs"`
}

func (d *serverDeps) handleRequest(c *gin.Context) {
	var req requestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := d.bus.Request(c.Request.Context(), messaging.AgentID(req.From), messaging.AgentID(req.To), req.Payload, req.TimeoutMs)
	if err != nil {
		writeOrchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

type contextSetRequest struct {
	Value    interface{} `json:"value"`
	OwnerID  string      `json:"ownerId" binding:"required"`
	Scope    string      `json:"scope"`
	TTLMs    int64       `json:"ttlMs"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (d *serverDeps) handleContextSet(c *gin.Context) {
	key := c.Param("key")
	var req contextSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope := contextkv.Scope(req.Scope)
	var ttl time.Duration
	if req.TTLMs > 0 {
		ttl = time.Duration(req.TTLMs) * time.Millisecond
	}
	entry, err := d.ctxStore.Set(key, req.Value, contextkv.AgentID(req.OwnerID), scope, ttl, req.Metadata)
	if err != nil {
		writeOrchError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (d *serverDeps) handleContextGet(c *gin.Context) {
	key := c.Param("key")
	requesterID := contextkv.AgentID(c.Query("requesterId"))
	entry, err := d.ctxStore.Get(key, requesterID)
	if err != nil {
		writeOrchError(c, err)
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (d *serverDeps) handleContextDelete(c *gin.Context) {
	key := c.Param("key")
	requesterID := contextkv.AgentID(c.Query("requesterId"))
	ok, err := d.ctxStore.Delete(key, requesterID)
	if err != nil {
		writeOrchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

type contextShareRequest struct {
	OwnerID  string   `json:"ownerId" binding:"required"`
	AgentIDs []string `json:"agentIds" binding:"required"`
}

func (d *serverDeps) handleContextShare(c *gin.Context) {
	key := c.Param("key")
	var req contextShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	agentIDs := make([]contextkv.AgentID, 0, len(req.AgentIDs))
	for _, id := range req.AgentIDs {
		agentIDs = append(agentIDs, contextkv.AgentID(id))
	}
	if err := d.ctxStore.Share(key, contextkv.AgentID(req.OwnerID), agentIDs); err != nil {
		writeOrchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shared": true})
}

// writeOrchError maps the orchestration core's error taxonomy (spec §7) to
// an HTTP status, sanitizing HandlerFailure before it reaches a client the
// same way the message bus sanitizes it before it crosses an ERROR
// response (spec §7 propagation policy).
func writeOrchError(c *gin.Context, err error) {
	oe, ok := err.(*orcherrors.OrchestratorError)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch oe.Kind {
	case orcherrors.KindValidation:
		status = http.StatusBadRequest
	case orcherrors.KindNotFound:
		status = http.StatusNotFound
	case orcherrors.KindAccessDenied:
		status = http.StatusForbidden
	case orcherrors.KindOverflow:
		status = http.StatusServiceUnavailable
	case orcherrors.KindRateLimited:
		status = http.StatusTooManyRequests
	case orcherrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case orcherrors.KindShutdown:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": oe.Sanitized().Message, "kind": string(oe.Kind)})
}

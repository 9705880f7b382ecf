package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/R3E-Network/pipeline-orchestrator/engine/bus"
	orchcontext "github.com/R3E-Network/pipeline-orchestrator/engine/context"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/engine/factory"
	"github.com/R3E-Network/pipeline-orchestrator/engine/monitor"
	orchslo "github.com/R3E-Network/pipeline-orchestrator/engine/slo"
	"github.com/R3E-Network/pipeline-orchestrator/engine/stream"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/config"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

func TestGetEnvFallsBackWhenUnset(t *testing.T) {
	const key = "ORCHESTRATORD_TEST_VAR"
	os.Unsetenv(key)
	if got := getEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	os.Setenv(key, "set")
	defer os.Unsetenv(key)
	if got := getEnv(key, "fallback"); got != "set" {
		t.Fatalf("expected env override, got %q", got)
	}
}

func TestBuildContextStoreDefaultsToInMemory(t *testing.T) {
	cfg := config.Default()
	log := logging.NewDefault("test")
	store := buildContextStore("", cfg, log, nil)
	if _, ok := store.(*orchcontext.Store); !ok {
		t.Fatalf("expected in-memory store when no redis url is given, got %T", store)
	}
	store.Shutdown()
}

func newTestDeps(t *testing.T) *serverDeps {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logging.NewDefault("test")
	evt := events.NewBus()
	t.Cleanup(evt.Close)

	msgBus := bus.New(bus.DefaultConfig(), log, evt)
	t.Cleanup(msgBus.Shutdown)

	ctxStore := orchcontext.New(orchcontext.DefaultConfig(), log, evt)
	t.Cleanup(ctxStore.Shutdown)

	recorder := newMetricsRecorder()
	recorder.seedDefaults()
	sloMonitor := orchslo.New(config.Default().SLO, recorder.Sample, log, evt)
	sloMonitor.RegisterDefaults()

	hub := stream.NewHub(evt, log)
	t.Cleanup(hub.Close)

	return &serverDeps{
		cfg:             config.Default(),
		log:             log,
		evt:             evt,
		bus:             msgBus,
		ctxStore:        ctxStore,
		sloMonitor:      sloMonitor,
		pipelineMonitor: monitor.New(log, evt),
		hub:             hub,
		factory:         factory.New(),
		handlers:        demoHandlerRegistry(log),
		recorder:        recorder,
	}
}

func TestHealthEndpointReportsRegisteredAgentsAndContextEntries(t *testing.T) {
	deps := newTestDeps(t)
	deps.bus.RegisterAgent("agent-1")
	router := newRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %+v", body)
	}
	if agents, _ := body["registeredAgents"].([]any); len(agents) != 1 || agents[0] != "agent-1" {
		t.Fatalf("expected registeredAgents [agent-1], got %+v", body["registeredAgents"])
	}
	if body["contextEntries"] != float64(0) {
		t.Fatalf("expected contextEntries 0, got %+v", body["contextEntries"])
	}
}

func TestRunPipelineEndpointBuildsAndExecutes(t *testing.T) {
	deps := newTestDeps(t)
	router := newRouter(deps)

	req := httptest.NewRequest(http.MethodPost, "/pipelines", strings.NewReader(`{"type":"quick_fix"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["executionId"] == "" || body["executionId"] == nil {
		t.Fatalf("expected a non-empty executionId, got %+v", body)
	}
}

func TestContextSetAndGetRoundTrip(t *testing.T) {
	deps := newTestDeps(t)
	router := newRouter(deps)

	setReq := httptest.NewRequest(http.MethodPut, "/context/k1", strings.NewReader(`{"value":"v1","ownerId":"owner","scope":"GLOBAL"}`))
	setReq.Header.Set("Content-Type", "application/json")
	setRec := httptest.NewRecorder()
	router.ServeHTTP(setRec, setReq)
	if setRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on set, got %d: %s", setRec.Code, setRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/context/k1?requesterId=stranger", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

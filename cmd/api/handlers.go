package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"planify/internal/llm"
	"planify/internal/llmclient"
	"planify/internal/pipeline"
	"planify/internal/platform/logger"
	"planify/internal/runstore"
	"planify/internal/types"
)

// apiServer wires the generation pipeline to its HTTP surface.
type apiServer struct {
	log     *logger.Logger
	store   *runstore.Store
	client  llmclient.LLMClient
	limiter llm.Limiter
	cfg     pipeline.Config
}

// generateRequest mirrors PlanGenerationContext field for field; assembly and
// validation happen server-side.
type generateRequest struct {
	Child            types.ChildProfile       `json:"child"`
	Assessments      []types.AssessmentRecord `json:"assessments"`
	ParentInput      types.ParentInput        `json:"parent_input"`
	CurrentProvision []string                 `json:"current_provision"`
	LocalAuthority   string                   `json:"local_authority"`
	Urgency          types.UrgencyLevel       `json:"urgency_level"`
	PlanType         types.PlanType           `json:"plan_type"`
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	pctx, err := pipeline.AssembleContext(
		req.Child, req.Assessments, req.ParentInput,
		req.CurrentProvision, req.LocalAuthority, req.Urgency, req.PlanType,
	)
	if err != nil {
		var vErr *pipeline.ValidationError
		if errors.As(err, &vErr) {
			http.Error(w, vErr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	run := s.store.Create()
	go s.runPipeline(run.ID, pctx)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"run_id": run.ID})
}

// runPipeline executes one generation run detached from the request, feeding
// stage transitions to the run store for watchers.
func (s *apiServer) runPipeline(runID string, pctx types.PlanGenerationContext) {
	orch := pipeline.New(s.client, s.log.With("run_id", runID), s.cfg,
		pipeline.WithBroker(llm.NewBroker(s.limiter)),
		pipeline.WithStageObserver(func(ev pipeline.StageEvent) {
			s.store.Advance(runID, ev)
		}),
	)
	plan, err := orch.GeneratePlan(context.Background(), pctx)
	if err != nil {
		s.store.Fail(runID, err.Error())
		return
	}
	s.store.Complete(runID, plan)
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, plan, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Run  runstore.Run         `json:"run"`
		Plan *types.GeneratedPlan `json:"plan,omitempty"`
	}{Run: run, Plan: plan})
}

const (
	watchWSWriteWait = 10 * time.Second
	watchWSPongWait  = 60 * time.Second
	watchWSPingEvery = (watchWSPongWait * 9) / 10
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWatchWS streams stage-transition events for one run until it
// finishes or the client goes away.
func (s *apiServer) handleWatchWS(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	events, cancel, err := s.store.Subscribe(runID)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	defer cancel()

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(watchWSPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchWSPongWait))
	})

	// reader goroutine only notices the peer closing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchWSPingEvery)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				run, _, getErr := s.store.Get(runID)
				if getErr == nil {
					_ = conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait))
					_ = conn.WriteJSON(map[string]any{"type": "finished", "run": run})
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(watchWSWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait))
			if err := conn.WriteJSON(map[string]any{"type": "stage", "event": ev}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

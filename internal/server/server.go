// Package server exposes the simulation engine over HTTP: start runs, watch
// progress, fetch results and summaries, and scrape Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"twinlab/internal/config"
	twinerrors "twinlab/internal/errors"
	"twinlab/internal/interview"
	"twinlab/internal/llm"
	"twinlab/internal/logging"
	"twinlab/internal/metrics"
	"twinlab/internal/persona"
	"twinlab/internal/prompt"
	"twinlab/internal/results"
	"twinlab/internal/runner"
	"twinlab/internal/study"
	"twinlab/internal/survey"
)

// Server hosts the HTTP API over one loaded persona corpus and one model
// client. Each started run gets its own result store and checkpoint entry.
type Server struct {
	cfg      config.Config
	personas *persona.Store
	client   llm.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	logger   logging.Logger

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	runner  *runner.BatchRunner
	results *results.Store
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// New builds a server over an already loaded persona store.
func New(cfg config.Config, personas *persona.Store, client llm.Client) *Server {
	registry := prometheus.NewRegistry()
	return &Server{
		cfg:      cfg,
		personas: personas,
		client:   client,
		registry: registry,
		metrics:  metrics.New(registry),
		logger:   logging.NewComponentLogger("server"),
		runs:     map[string]*runState{},
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if s.cfg.Server.EnableCORS {
		router.Use(cors.Default())
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/personas", s.handlePersonas)
		api.GET("/personas/:id", s.handlePersona)
		api.POST("/runs", s.handleStartRun)
		api.GET("/runs/:id/progress", s.handleProgress)
		api.GET("/runs/:id/results", s.handleResults)
		api.GET("/runs/:id/summary", s.handleSummary)
	}
	return router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: s.Router()}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.logger.Info("listening on %s", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "personas": s.personas.Len(), "model": s.client.Model()})
}

func (s *Server) handlePersonas(c *gin.Context) {
	type entry struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
	}
	personas := s.personas.All()
	entries := make([]entry, len(personas))
	for i, p := range personas {
		entries[i] = entry{ID: p.ID, Summary: p.Summary()}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "fields": s.personas.Fields(), "personas": entries})
}

func (s *Server) handlePersona(c *gin.Context) {
	found, err := s.personas.ByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, found[0])
}

// startRunRequest is the run submission body. Exactly one of Survey or
// Interview must be set.
type startRunRequest struct {
	Selection persona.Selection `json:"selection"`
	Survey    *study.Survey     `json:"survey,omitempty"`
	Interview *study.Interview  `json:"interview,omitempty"`
}

func (s *Server) handleStartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.Survey == nil) == (req.Interview == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide exactly one of survey or interview"})
		return
	}

	selected, err := s.personas.Select(req.Selection)
	if err != nil {
		status := http.StatusBadRequest
		if twinerrors.IsNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if len(selected) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "selection matched no personas"})
		return
	}

	resultStore := results.NewStore()
	builder := prompt.NewBuilder()
	var engine runner.Engine
	switch {
	case req.Survey != nil:
		if err := req.Survey.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts := survey.DefaultOptions()
		if s.cfg.LLM.Temperature > 0 {
			opts.Temperature = s.cfg.LLM.Temperature
		}
		opts.ReaskInvalid = s.cfg.Run.ReaskInvalid
		engine = survey.NewEngine(s.client, builder, resultStore, req.Survey, opts, s.metrics)
	default:
		if req.Interview.Mode == study.ModeInteractive && len(req.Interview.Questions) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "operator-driven interviews run via the CLI only"})
			return
		}
		if err := req.Interview.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts := interview.DefaultOptions()
		if s.cfg.LLM.Temperature > 0 {
			opts.Temperature = s.cfg.LLM.Temperature
		}
		opts.ContextLimit = s.cfg.LLM.ContextLimit
		opts.MinLength = s.cfg.Run.MinOpenLength
		opts.MaxLength = s.cfg.Run.MaxOpenLength
		engine = interview.NewEngine(s.client, builder, resultStore, req.Interview, opts, s.metrics)
	}

	checkpoints, err := runner.NewFileCheckpointStore(s.cfg.Paths.CheckpointDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.NewString()
	state := &runState{
		runner:  runner.NewBatchRunner(engine, resultStore, checkpoints),
		results: resultStore,
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.runs[runID] = state
	s.mu.Unlock()

	go func() {
		defer close(state.done)
		_, err := state.runner.Run(context.Background(), runID, selected)
		if err != nil {
			s.logger.Error("run %s: %v", runID, err)
			state.mu.Lock()
			state.err = err
			state.mu.Unlock()
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "personas": len(selected), "protocol": engine.Name()})
}

func (s *Server) run(c *gin.Context) (*runState, bool) {
	s.mu.Lock()
	state, ok := s.runs[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return nil, false
	}
	return state, true
}

func (s *Server) handleProgress(c *gin.Context) {
	state, ok := s.run(c)
	if !ok {
		return
	}
	state.mu.Lock()
	runErr := state.err
	state.mu.Unlock()

	body := gin.H{"progress": state.runner.Progress()}
	if runErr != nil {
		body["error"] = runErr.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleResults(c *gin.Context) {
	state, ok := s.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records":  state.results.Export(),
		"outcomes": state.results.Outcomes(),
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	state, ok := s.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state.results.Summarize())
}

// Package server exposes a small authenticated control API for starting,
// inspecting, and stopping algorithm runs.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"quantico/internal/engine"
	"quantico/internal/observ"
)

// Builder constructs a ready-to-run engine for a named strategy. The server
// owns the returned engine's lifecycle.
type Builder func(strategyName string) (*engine.Engine, error)

type process struct {
	id     string
	name   string
	eng    *engine.Engine
	cancel context.CancelFunc
	done   chan struct{}
}

// Server runs one engine per started process, keyed by a generated process
// id. The processes map outlives individual requests, so all access goes
// through the mutex.
type Server struct {
	build    Builder
	username string
	password string

	mu        sync.Mutex
	processes map[string]*process
}

func New(build Builder, username, password string) *Server {
	return &Server{
		build:     build,
		username:  username,
		password:  password,
		processes: make(map[string]*process),
	}
}

// Router builds the gin handler tree. Split from Run so tests can drive it
// with httptest.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	authed := r.Group("/", gin.BasicAuth(gin.Accounts{s.username: s.password}))
	authed.POST("/algorithm/run", s.runAlgorithm)
	authed.POST("/algorithm/logs", s.algorithmLogs)
	authed.POST("/algorithm/stop", s.stopAlgorithm)
	authed.GET("/metrics", gin.WrapH(observ.Handler()))
	return r
}

func (s *Server) Run(addr string) error {
	observ.Log("control_server_listening", map[string]any{"addr": addr})
	return s.Router().Run(addr)
}

type runRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) runAlgorithm(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eng, err := s.build(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &process{
		id:     uuid.NewString(),
		name:   req.Name,
		eng:    eng,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.processes[p.id] = p
	s.mu.Unlock()

	go func() {
		defer close(p.done)
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			observ.Error("algorithm_run_failed", map[string]any{"process_id": p.id, "err": err.Error()})
		}
	}()

	observ.Log("algorithm_started", map[string]any{"name": req.Name, "process_id": p.id})
	c.JSON(http.StatusOK, gin.H{
		"algorithm_name": req.Name,
		"status":         "running",
		"process_id":     p.id,
	})
}

type processRequest struct {
	ProcessID string `json:"process_id" binding:"required"`
	Last      int    `json:"last"`
}

func (s *Server) algorithmLogs(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	p, ok := s.processes[req.ProcessID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown process id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"algorithm_name": p.name,
		"status":         s.status(p),
		"process_id":     p.id,
		"logs":           p.eng.Logs(req.Last),
	})
}

func (s *Server) stopAlgorithm(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	p, ok := s.processes[req.ProcessID]
	if ok {
		delete(s.processes, req.ProcessID)
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown process id"})
		return
	}
	p.cancel()
	<-p.done
	observ.Log("algorithm_stopped", map[string]any{"name": p.name, "process_id": p.id})
	c.JSON(http.StatusOK, gin.H{
		"algorithm_name": p.name,
		"status":         "stopped",
		"process_id":     p.id,
	})
}

func (s *Server) status(p *process) string {
	select {
	case <-p.done:
		return "finished"
	default:
		return "running"
	}
}

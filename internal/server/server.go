package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/store"
	"github.com/kode4food/cascade/pkg/util"
)

type (
	// Server implements the HTTP API for a set of hosted flows
	Server struct {
		flows   map[string]*Hosted
		store   store.Store
		hub     *Hub
		results *cache.Cache
		running map[api.RunID]string
		sockets util.Set[*Client]
		ctx     context.Context
		cancel  context.CancelFunc
		runs    sync.WaitGroup
		mu      sync.Mutex
	}

	// Hosted is a flow served by the host, with the seed its runs start from
	Hosted struct {
		Flow        *flow.Flow
		Description string
		Seed        api.Values
	}

	// Option configures a Server
	Option func(*Server)
)

const DefaultResultTTL = time.Hour

var (
	ErrDuplicateFlow = errors.New("flow is hosted more than once")
	ErrNoFlows       = errors.New("at least one flow is required")
)

// NewServer creates a host for the given flows
func NewServer(hosted []*Hosted, opts ...Option) (*Server, error) {
	if len(hosted) == 0 {
		return nil, ErrNoFlows
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		flows:   make(map[string]*Hosted, len(hosted)),
		hub:     NewHub(),
		results: cache.New(DefaultResultTTL, 2*DefaultResultTTL),
		running: map[api.RunID]string{},
		sockets: util.Set[*Client]{},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, h := range hosted {
		name := h.Flow.Name()
		if _, ok := s.flows[name]; ok {
			cancel()
			s.hub.Close()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFlow, name)
		}
		s.flows[name] = h
		h.Flow.Subscribe(s.hub)
	}
	return s, nil
}

// WithStore persists runs and serves finished runs from s
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithResultTTL sets how long finished runs stay in memory
func WithResultTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.results = cache.New(ttl, 2*ttl)
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers", "Content-Type, Authorization",
		)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)

	router.GET("/flows", s.listFlows)
	router.GET("/flows/:name", s.getFlow)
	router.POST("/flows/:name/runs", s.startRun)

	router.GET("/runs/:runID", s.getRun)

	router.GET("/ws", s.handleWebSocket)

	return router
}

// Shutdown cancels in-flight runs, waits for them to settle, and closes
// every websocket
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.CloseWebSockets()
	s.hub.Close()
	return err
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	running := len(s.running)
	s.mu.Unlock()

	c.JSON(http.StatusOK, api.HealthResponse{
		Status:  "ok",
		Flows:   len(s.flows),
		Running: running,
	})
}

func (s *Server) flowNames() []string {
	names := make([]string, 0, len(s.flows))
	for name := range s.flows {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

func errorResponse(c *gin.Context, status int, err error) {
	c.JSON(status, api.ErrorResponse{
		Error:  err.Error(),
		Status: status,
	})
}

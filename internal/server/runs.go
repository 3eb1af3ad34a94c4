package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/log"
	"github.com/kode4food/cascade/pkg/store"
)

var (
	ErrInvalidJSON   = errors.New("invalid JSON")
	ErrRunNotFound   = errors.New("run not found")
	ErrRunInProgress = errors.New("run is already in progress")
	ErrResumeNoStore = errors.New("resume requires a store")
	ErrLoadRun       = errors.New("failed to load run")
	ErrShuttingDown  = errors.New("server is shutting down")
	ErrInvalidRunID  = errors.New("invalid run ID")
)

func (s *Server) startRun(c *gin.Context) {
	h, ok := s.lookupFlow(c)
	if !ok {
		return
	}

	var req api.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest,
			fmt.Errorf("%w: %w", ErrInvalidJSON, err))
		return
	}
	if req.Resume != "" && s.store == nil {
		errorResponse(c, http.StatusBadRequest, ErrResumeNoStore)
		return
	}

	id := runID(&req)
	if !api.ValidName(id) {
		errorResponse(c, http.StatusBadRequest,
			fmt.Errorf("%w: %q", ErrInvalidRunID, id))
		return
	}
	if err := s.track(id, h.Flow.Name()); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		errorResponse(c, status, err)
		return
	}

	seed := api.Values{}
	if req.Resume == "" {
		seed = h.Seed.Clone()
	}
	maps.Copy(seed, req.Seed)
	opts := []flow.RunOption{
		flow.WithRunID(id),
		flow.WithSeed(seed),
	}
	if req.Resume != "" {
		opts = append(opts, flow.WithResume(req.Resume))
	}
	if s.store != nil {
		opts = append(opts, flow.WithStore(s.store))
	}

	fut := h.Flow.KickoffAsync(s.ctx, opts...)
	go func() {
		defer s.runs.Done()
		res, err := fut.Wait()
		s.finish(id, h.Flow.Name(), res, err)
	}()

	c.JSON(http.StatusAccepted, api.RunStartedResponse{
		RunID: id,
		Flow:  h.Flow.Name(),
	})
}

func (s *Server) getRun(c *gin.Context) {
	id := api.RunID(c.Param("runID"))

	if res, ok := s.results.Get(string(id)); ok {
		c.JSON(http.StatusOK, res)
		return
	}

	s.mu.Lock()
	name, running := s.running[id]
	s.mu.Unlock()
	if running {
		c.JSON(http.StatusOK, &api.RunResponse{
			Snapshot: &api.Snapshot{
				RunID:  id,
				Flow:   name,
				Status: api.FlowRunning,
			},
		})
		return
	}

	if s.store == nil {
		errorResponse(c, http.StatusNotFound,
			fmt.Errorf("%w: %s", ErrRunNotFound, id))
		return
	}
	snap, err := s.store.Load(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInvalidRunID):
		errorResponse(c, http.StatusNotFound,
			fmt.Errorf("%w: %s", ErrRunNotFound, id))
	case err != nil:
		errorResponse(c, http.StatusInternalServerError,
			fmt.Errorf("%w: %w", ErrLoadRun, err))
	default:
		c.JSON(http.StatusOK, &api.RunResponse{Snapshot: snap})
	}
}

func (s *Server) track(id api.RunID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return ErrShuttingDown
	}
	if _, ok := s.running[id]; ok {
		return fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	s.running[id] = name
	s.results.Delete(string(id))
	s.runs.Add(1)
	return nil
}

func (s *Server) finish(
	id api.RunID, name string, res *flow.Result, err error,
) {
	resp := &api.RunResponse{}
	switch {
	case err != nil:
		slog.Warn("Run could not start",
			log.RunID(id),
			log.FlowName(name),
			log.Error(err))
		resp.Snapshot = &api.Snapshot{
			RunID:  id,
			Flow:   name,
			Status: api.FlowFailed,
		}
		resp.Error = err.Error()
	default:
		resp.Snapshot = res.Snapshot()
		resp.FailedStep = res.FailedStep
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
	}

	s.results.SetDefault(string(id), resp)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func runID(req *api.StartRunRequest) api.RunID {
	switch {
	case req.RunID != "":
		return req.RunID
	case req.Resume != "":
		return req.Resume
	default:
		return api.RunID(uuid.NewString())
	}
}

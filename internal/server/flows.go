package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/cascade/pkg/api"
)

var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrDescribeFlow = errors.New("failed to describe flow")
)

func (s *Server) listFlows(c *gin.Context) {
	names := s.flowNames()
	c.JSON(http.StatusOK, api.FlowsListResponse{
		Flows: names,
		Count: len(names),
	})
}

func (s *Server) getFlow(c *gin.Context) {
	h, ok := s.lookupFlow(c)
	if !ok {
		return
	}

	g, err := h.Flow.Build()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError,
			fmt.Errorf("%w: %w", ErrDescribeFlow, err))
		return
	}

	info := api.FlowInfo{
		Name:        h.Flow.Name(),
		Description: h.Description,
		Graph:       g.Describe(),
	}
	for _, st := range g.Steps() {
		si := api.StepInfo{
			Name: st.Name,
			Kind: st.Kind,
		}
		if st.Trigger != nil {
			si.Trigger = st.Trigger.String()
		}
		if limit, ok := g.ReentryLimit(st.Name); ok {
			si.Reentry = limit
		}
		info.Steps = append(info.Steps, si)
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) lookupFlow(c *gin.Context) (*Hosted, bool) {
	name := api.NormalizeName(c.Param("name"))
	h, ok := s.flows[name]
	if !ok {
		errorResponse(c, http.StatusNotFound,
			fmt.Errorf("%w: %s", ErrFlowNotFound, name))
	}
	return h, ok
}

package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

func (s *Server) createTaskHandler(c *echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return mapEngineError(taskcast.BadRequest("malformed request body"))
	}

	ttl := req.TTL
	if ttl == nil && s.cfg.DefaultTTLSeconds > 0 {
		ttl = &s.cfg.DefaultTTLSeconds
	}

	task, err := s.engine.CreateTask(c.Request().Context(), taskcast.CreateTaskInput{
		ID:         req.ID,
		Type:       req.Type,
		Params:     req.Params,
		Metadata:   req.Metadata,
		TTL:        ttl,
		Webhooks:   req.Webhooks,
		Cleanup:    req.Cleanup,
		AuthConfig: req.AuthConfig,
	})
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(http.StatusCreated, taskResponse{task})
}

func (s *Server) getTaskHandler(c *echo.Context) error {
	task, err := s.engine.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(http.StatusOK, taskResponse{task})
}

func (s *Server) transitionTaskHandler(c *echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return mapEngineError(taskcast.BadRequest("malformed request body"))
	}
	if req.Status == "" {
		return mapEngineError(taskcast.BadRequest("status is required"))
	}

	task, err := s.engine.TransitionTask(c.Request().Context(), c.Param("id"), taskcast.TransitionInput{
		Status: req.Status,
		Result: req.Result,
		Error:  req.Error,
	})
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(http.StatusOK, taskResponse{task})
}

package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/weightwave/taskcast/pkg/sse"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

func (s *Server) publishEventsHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return mapEngineError(taskcast.BadRequest("could not read request body"))
	}
	reqs, err := decodePublishEventBody(body)
	if err != nil {
		return mapEngineError(taskcast.BadRequest("malformed request body"))
	}
	trimmed := trimLeadingSpace(body)
	batch := len(trimmed) > 0 && trimmed[0] == '['

	taskID := c.Param("id")
	events := make([]taskcast.TaskEvent, 0, len(reqs))
	for _, r := range reqs {
		if r.Type == "" {
			return mapEngineError(taskcast.BadRequest("type is required"))
		}
		event, err := s.engine.PublishEvent(c.Request().Context(), taskID, r.toInput())
		if err != nil {
			return mapEngineError(err)
		}
		events = append(events, *event)
	}
	if !batch {
		return c.JSON(http.StatusCreated, events[0])
	}
	return c.JSON(http.StatusCreated, publishEventsResponse(events))
}

// historyEventsHandler serves GET /tasks/:id/events/history: plain, unwrapped events, never the
// streaming envelope (see SPEC_FULL.md's Open Question resolution in DESIGN.md).
func (s *Server) historyEventsHandler(c *echo.Context) error {
	opts, err := eventsOptionsFromQuery(c)
	if err != nil {
		return mapEngineError(taskcast.BadRequest(err.Error()))
	}
	if _, err := s.engine.GetTask(c.Request().Context(), c.Param("id")); err != nil {
		return mapEngineError(err)
	}
	events, err := s.engine.GetEvents(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		return mapEngineError(err)
	}
	if events == nil {
		events = []taskcast.TaskEvent{}
	}
	return c.JSON(http.StatusOK, eventsResponse(events))
}

// streamEventsHandler serves GET /tasks/:id/events via Server-Sent Events.
func (s *Server) streamEventsHandler(c *echo.Context) error {
	filter, err := subscribeFilterFromQuery(c)
	if err != nil {
		return mapEngineError(taskcast.BadRequest(err.Error()))
	}
	return sse.Stream(c.Request().Context(), c.Response(), s.engine, c.Param("id"), filter)
}

func eventsOptionsFromQuery(c *echo.Context) (*taskcast.GetEventsOptions, error) {
	filter, err := subscribeFilterFromQuery(c)
	if err != nil {
		return nil, err
	}
	if filter == nil || filter.Since == nil {
		return nil, nil
	}
	return &taskcast.GetEventsOptions{Since: filter.Since}, nil
}

func subscribeFilterFromQuery(c *echo.Context) (*taskcast.SubscribeFilter, error) {
	var filter taskcast.SubscribeFilter
	set := false

	if v := c.QueryParam("since.id"); v != "" {
		filter.Since = &taskcast.SinceCursor{ID: v}
		set = true
	}
	if v := c.QueryParam("since.index"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		if filter.Since == nil {
			filter.Since = &taskcast.SinceCursor{}
		}
		filter.Since.Index = &n
		set = true
	}
	if v := c.QueryParam("since.timestamp"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		if filter.Since == nil {
			filter.Since = &taskcast.SinceCursor{}
		}
		filter.Since.Timestamp = &n
		set = true
	}
	if v := c.QueryParam("types"); v != "" {
		filter.Types = strings.Split(v, ",")
		set = true
	}
	if v := c.QueryParam("levels"); v != "" {
		for _, l := range strings.Split(v, ",") {
			filter.Levels = append(filter.Levels, taskcast.EventLevel(l))
		}
		set = true
	}
	if v := c.QueryParam("includeStatus"); v != "" {
		b := v != "false"
		filter.IncludeStatus = &b
		set = true
	}
	if v := c.QueryParam("wrap"); v != "" {
		b := v != "false"
		filter.Wrap = &b
		set = true
	}
	if !set {
		return nil, nil
	}
	return &filter, nil
}

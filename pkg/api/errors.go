package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

// errorBody is the JSON shape every error response uses.
type errorBody struct {
	Error string `json:"error"`
}

// mapEngineError maps a taskcast.Error to an echo.HTTPError carrying the {"error": "..."} body
// the HTTP surface always returns.
func mapEngineError(err error) *echo.HTTPError {
	var tcErr *taskcast.Error
	if errors.As(err, &tcErr) {
		switch tcErr.Kind {
		case taskcast.KindTaskNotFound:
			return echo.NewHTTPError(http.StatusNotFound, tcErr.Msg)
		case taskcast.KindInvalidTransition, taskcast.KindTaskTerminal, taskcast.KindBadRequest:
			return echo.NewHTTPError(http.StatusBadRequest, tcErr.Msg)
		case taskcast.KindForbidden:
			return echo.NewHTTPError(http.StatusForbidden, tcErr.Msg)
		case taskcast.KindUnauthenticated:
			return echo.NewHTTPError(http.StatusUnauthorized, tcErr.Msg)
		case taskcast.KindStore:
			slog.Error("store error", "error", tcErr.Err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
	}

	slog.Error("unexpected error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// httpErrorHandler is installed as Echo's HTTPErrorHandler so every error, however it reaches the
// framework, is rendered as {"error": "<message>"}.
func httpErrorHandler(err error, c *echo.Context) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		he = mapEngineError(err)
	}
	if c.Response().Committed {
		return
	}
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	_ = c.JSON(he.Code, errorBody{Error: msg})
}

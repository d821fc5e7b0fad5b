package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/weightwave/taskcast/pkg/version"
)

// pinger is implemented by pgstore.Store; kept as an interface so the health handler has no
// direct Postgres dependency when long-term storage is disabled.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) healthHandler(c *echo.Context) error {
	resp := healthResponse{Status: "healthy", Version: version.Full(), StoreBackend: string(s.cfg.StoreBackend)}

	if p, ok := s.long.(pinger); ok {
		reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := p.Ping(reqCtx); err != nil {
			resp.Status = "unhealthy"
			resp.LongTerm = "unreachable"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		resp.LongTerm = "reachable"
	}
	return c.JSON(http.StatusOK, resp)
}

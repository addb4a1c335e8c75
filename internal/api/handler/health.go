package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/api/response"
)

// Pinger is anything the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewHealthHandler reports "ok" when every dependency answers within two
// seconds, "degraded" with 503 otherwise.
func NewHealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		status, code := "ok", http.StatusOK
		for name, p := range deps {
			if p == nil {
				checks[name] = "disabled"
				continue
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = "error"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		response.Status(w, code, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}

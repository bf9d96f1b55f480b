package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smolin/procwarden/internal/supervisor"
)

const stopRequestTimeout = 30 * time.Second

// registerControlRoutes registers restart and stop.
func (s *Server) registerControlRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "restart-app",
		Method:      http.MethodPost,
		Path:        "/api/restart",
		Summary:     "Restart",
		Description: "Gracefully stop the child and relaunch it. Does not consume the restart budget.",
		Tags:        []string{"supervisor"},
		Security:    withAuth(),
		Errors:      []int{401, 409},
	}, func(ctx context.Context, input *struct{}) (*ActionResponse, error) {
		if err := s.sup.Restart(); err != nil {
			if errors.Is(err, supervisor.ErrNotRunning) {
				return nil, huma.Error409Conflict("supervisor is not running", err)
			}
			return nil, err
		}
		return &ActionResponse{
			Body: ActionData{Status: "ok", Message: "restart requested"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-app",
		Method:      http.MethodPost,
		Path:        "/api/stop",
		Summary:     "Stop",
		Description: "Gracefully stop the child and end supervision. Idempotent.",
		Tags:        []string{"supervisor"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*ActionResponse, error) {
		stopCtx, cancel := context.WithTimeout(ctx, stopRequestTimeout)
		defer cancel()

		if err := s.sup.Stop(stopCtx); err != nil {
			return nil, huma.Error500InternalServerError("stop did not complete", err)
		}
		return &ActionResponse{
			Body: ActionData{Status: "ok", Message: "supervision stopped"},
		}, nil
	})
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// registerStatusRoutes registers the status endpoint.
func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Current supervisor phase, child PID, and restart accounting",
		Tags:        []string{"supervisor"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*StatusResponse, error) {
		st := s.sup.Status()

		data := StatusData{
			App:          st.App,
			Phase:        string(st.Phase),
			PID:          st.PID,
			Launches:     st.Launches,
			RestartCount: st.RestartCount,
			MaxRestarts:  st.MaxRestarts,
			AutoRestart:  st.AutoRestart,
		}
		if !st.StartedAt.IsZero() && st.PID != 0 {
			data.StartedAt = st.StartedAt.Format(time.RFC3339Nano)
			data.UptimeSec = time.Since(st.StartedAt).Seconds()
		}
		if st.LastExit != nil {
			data.LastExit = &ExitInfo{
				Code:     st.LastExit.Code,
				Signaled: st.LastExit.Signaled,
				Signal:   st.LastExit.Signal,
				Cause:    st.LastExit.Cause(),
				At:       st.LastExit.At.Format(time.RFC3339Nano),
			}
		}
		return &StatusResponse{Body: data}, nil
	})
}

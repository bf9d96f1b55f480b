package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smolin/procwarden/internal/logging"
)

// LogsInput selects how many recent entries to return.
type LogsInput struct {
	Count int `query:"count" default:"100" minimum:"1" maximum:"1000" doc:"Number of recent entries to return"`
}

// registerLogRoutes registers the recent-logs endpoint. Entries come from
// the in-memory ring buffer, so child output captured by the "child"
// module logger shows up here too.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Recent daemon and child log entries from the in-memory buffer",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *LogsInput) (*LogsResponse, error) {
		var entries []logging.LogEntry
		if buffer := logging.GetBuffer(); buffer != nil {
			entries = buffer.ReadLast(input.Count)
		}
		if entries == nil {
			entries = []logging.LogEntry{}
		}
		return &LogsResponse{
			Body: LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})
}

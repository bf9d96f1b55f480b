package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smolin/procwarden/internal/events"
)

// registerEventRoutes registers the native Huma SSE endpoint streaming
// supervisor lifecycle events.
func (s *Server) registerEventRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of phase changes, launches, exits, and child output",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"phase-changed":     events.PhaseChangedEvent{},
		"child-started":     events.ChildStartedEvent{},
		"child-exited":      events.ChildExitedEvent{},
		"restart-scheduled": events.RestartScheduledEvent{},
		"budget-exhausted":  events.BudgetExhaustedEvent{},
		"child-output":      events.ChildOutputEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.PhaseChangedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.ChildStartedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.ChildExitedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.RestartScheduledEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.BudgetExhaustedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.ChildOutputEvent](s.bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					// Connection failed, clean up and exit.
					return
				}
			}
		}
	})
}

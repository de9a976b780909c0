package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/lead"
)

const streamHeartbeat = 25 * time.Second

// leadEvents streams committed status changes as Server-Sent Events. Sales
// executives only receive changes to leads they own.
func (a *API) leadEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	actor := identityFrom(r)

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := a.events.Subscribe(r.Context())

	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if actor.Role == auth.RoleSalesExecutive && ev.OwnerID != actor.ID {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: lead.status\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// EventSource is satisfied by *stream.Hub[lead.StatusChange].
type EventSource interface {
	Subscribe(ctx context.Context) <-chan lead.StatusChange
}

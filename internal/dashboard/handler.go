// Package dashboard event handling and message formatting.
package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/monpro/monpro/internal/schema"
	"github.com/monpro/monpro/internal/syncer"
)

// Handler bridges sync engine events to dashboard broadcasts. It satisfies
// syncer.Events, so an engine built with syncer.WithEvents(handler) streams
// its activity to every connected client.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	depth int // queued operations since the last replay
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// ProjectApplied broadcasts a project change and the queue depth it implies.
func (h *Handler) ProjectApplied(kind schema.OpKind, p *schema.Project, queued bool) {
	data := ProjectUpdateData{
		Action: actionFor(kind),
		Queued: queued,
	}
	if p != nil {
		data.Ref = p.Ref()
		data.Name = p.Name
	}
	h.logger.Printf("Project %s: %s (queued=%v)", data.Action, data.Ref, queued)

	h.send(MessageTypeProjectUpdate, data)

	if queued {
		h.mu.Lock()
		h.depth++
		depth := h.depth
		h.mu.Unlock()
		h.send(MessageTypeQueueDepth, QueueDepthData{Depth: depth})
	}
}

// ReplayFinished broadcasts the replay outcome and resets the queue depth
// to the number of items that failed and were requeued.
func (h *Handler) ReplayFinished(results []syncer.ReplayResult) {
	replayed := 0
	for _, r := range results {
		if r.Replayed() {
			replayed++
		}
	}
	failed := len(results) - replayed
	h.logger.Printf("Replay complete: %d replayed, %d failed", replayed, failed)

	h.send(MessageTypeReplayComplete, ReplayCompleteData{
		Replayed: replayed,
		Failed:   failed,
	})

	h.mu.Lock()
	h.depth = failed
	h.mu.Unlock()
	h.send(MessageTypeQueueDepth, QueueDepthData{Depth: failed})
}

// OnConnectivityChanged broadcasts online state transitions.
func (h *Handler) OnConnectivityChanged(online bool) {
	h.logger.Printf("Connectivity: online=%v", online)
	h.send(MessageTypeConnectivity, ConnectivityData{Online: online})
}

// SetQueueDepth seeds the queue depth, typically at startup from the store.
func (h *Handler) SetQueueDepth(depth int) {
	h.mu.Lock()
	h.depth = depth
	h.mu.Unlock()
	h.send(MessageTypeQueueDepth, QueueDepthData{Depth: depth})
}

// send marshals data and broadcasts it under the given message type.
func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func actionFor(kind schema.OpKind) string {
	switch kind {
	case schema.OpCreate:
		return "created"
	case schema.OpEdit:
		return "edited"
	case schema.OpDelete:
		return "deleted"
	}
	return string(kind)
}

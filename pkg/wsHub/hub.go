package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// ConnectionHub stores and manages all active WebSocket connections
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[uuid.UUID]*Conn),
		l:       l,
	}
}

// Add registers a new connection in the hub.
// An existing connection for the same entityID is closed first.
func (h *ConnectionHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "add_ws_connection")

	if existing, ok := h.clients[newConn.entityID]; ok {
		h.l.Warn(ctx,
			"replacing existing connection",
			"entity_ID", existing.entityID,
		)
		if err := existing.Close(); err != nil {
			h.l.Warn(ctx,
				"failed to close existing conn",
				"entity_ID", existing.entityID,
				"err", err.Error(),
			)
		}
	}

	h.clients[newConn.entityID] = newConn
	h.wg.Add(1)

	return nil
}

// Delete removes and closes a connection by ID
func (h *ConnectionHub) Delete(entityID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "ws_connection_delete")

	conn, ok := h.clients[entityID]
	if !ok {
		h.l.Warn(ctx,
			"delete called for unknown entity",
			"entity_ID", entityID,
		)
		return ErrConnIsNotFound
	}

	if err := conn.Close(); err != nil {
		h.l.Warn(ctx,
			"failed to close conn",
			"entity_ID", conn.entityID,
			"err", err.Error(),
		)
	}

	delete(h.clients, entityID)
	h.wg.Done()

	return nil
}

// SendTo delivers a message to a specific client by ID.
// Returns ErrConnIsNotFound if the connection is unknown.
func (h *ConnectionHub) SendTo(id uuid.UUID, msg map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, ok := h.clients[id]; ok {
		return conn.Send(msg)
	}
	return ErrConnIsNotFound
}

// Close closes every websocket connection
func (h *ConnectionHub) Close() {
	ctx := wrap.WithAction(context.Background(), "hub_close")

	// copy clients under lock
	h.mu.Lock()
	clients := make([]*Conn, 0, len(h.clients))
	for _, conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()
	// close outside the lock
	for _, conn := range clients {
		_ = h.Delete(conn.entityID)
	}

	h.wg.Wait()

	h.l.Info(ctx, "all websocket connections closed gracefully")
}

// Clients returns a copy of the client map
func (h *ConnectionHub) Clients() map[uuid.UUID]*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	copyMap := make(map[uuid.UUID]*Conn, len(h.clients))
	for id, conn := range h.clients {
		copyMap[id] = conn
	}
	return copyMap
}

// GetConn returns the connection registered for the given ID
func (h *ConnectionHub) GetConn(id uuid.UUID) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[id]
	if !ok {
		return nil, ErrConnIsNotFound
	}
	return conn, nil
}

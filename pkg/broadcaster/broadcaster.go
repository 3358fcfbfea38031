// Package broadcaster fans orchestrator progress events out to every
// WebSocket-connected dashboard client, batching bursts of per-day
// updates through pkg/batcher rather than writing one frame per event.
package broadcaster

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fxhistorian/pkg/batcher"
)

// ProgressBroadcaster owns the set of connected dashboard clients and
// fans progress events out to all of them.
type ProgressBroadcaster struct {
	logger          *zap.Logger
	clients         map[*websocket.Conn]bool
	mu              sync.Mutex
	broadcastCh     chan []byte
	registerCh      chan *websocket.Conn
	unregisterCh    chan *websocket.Conn
	batcher         *batcher.EventBatcher
	batchingEnabled bool
}

// NewBroadcaster builds a ProgressBroadcaster with event batching enabled.
func NewBroadcaster(logger *zap.Logger) *ProgressBroadcaster {
	return NewBroadcasterWithBatching(logger, true)
}

// NewBroadcasterWithBatching builds a ProgressBroadcaster, optionally
// skipping the batching stage for callers that want one frame per event.
func NewBroadcasterWithBatching(logger *zap.Logger, enableBatching bool) *ProgressBroadcaster {
	b := &ProgressBroadcaster{
		logger:          logger.Named("broadcaster"),
		clients:         make(map[*websocket.Conn]bool),
		broadcastCh:     make(chan []byte, 1024),
		registerCh:      make(chan *websocket.Conn, 100),
		unregisterCh:    make(chan *websocket.Conn, 100),
		batchingEnabled: enableBatching,
	}

	if enableBatching {
		b.batcher = batcher.NewEventBatcher(
			logger,
			50,                   // maxSize: flush after this many progress events
			100*time.Millisecond, // timeout: flush this long after the first unflushed event
			65536,                // maxBytes: split a batch larger than this
			false,                // compression: left to the WebSocket transport
		)

		batchOutput := b.batcher.Start()
		go func() {
			for batchedData := range batchOutput {
				select {
				case b.broadcastCh <- batchedData:
				default:
					logger.Warn("broadcast channel full, dropping batched progress update")
				}
			}
		}()
	}

	return b
}

// Run drives the broadcaster's register/unregister/broadcast loop. It
// blocks and is meant to be started with `go b.Run()`.
func (b *ProgressBroadcaster) Run() {
	b.logger.Info("progress broadcaster started")
	for {
		select {
		case client := <-b.registerCh:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			b.logger.Info("dashboard client registered", zap.String("remoteAddr", client.RemoteAddr().String()))

		case client := <-b.unregisterCh:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				client.Close()
				b.logger.Info("dashboard client unregistered", zap.String("remoteAddr", client.RemoteAddr().String()))
			}
			b.mu.Unlock()

		case event := <-b.broadcastCh:
			b.mu.Lock()
			for client := range b.clients {
				if err := client.WriteMessage(websocket.TextMessage, event); err != nil {
					b.logger.Error("failed to write progress event to client", zap.Error(err), zap.String("remoteAddr", client.RemoteAddr().String()))
					select {
					case b.unregisterCh <- client:
					default:
						// Unregister channel is full: drop the client directly
						// rather than block the broadcast loop.
						delete(b.clients, client)
						client.Close()
						b.logger.Warn("unregister channel full, removed client directly")
					}
				}
			}
			b.mu.Unlock()
		}
	}
}

// Register adds a dashboard client to the broadcaster.
func (b *ProgressBroadcaster) Register(client *websocket.Conn) {
	b.registerCh <- client
}

// Unregister removes a dashboard client from the broadcaster.
func (b *ProgressBroadcaster) Unregister(client *websocket.Conn) {
	b.unregisterCh <- client
}

// Broadcast fans a JSON-encoded progress event out to every client,
// through the batcher when enabled.
func (b *ProgressBroadcaster) Broadcast(event []byte) {
	if b.batchingEnabled && b.batcher != nil {
		var decoded interface{}
		if err := json.Unmarshal(event, &decoded); err == nil {
			b.batcher.AddEvent(decoded)
		} else {
			b.directBroadcast(event)
		}
	} else {
		b.directBroadcast(event)
	}
}

// directBroadcast sends event straight to broadcastCh, bypassing the
// batcher.
func (b *ProgressBroadcaster) directBroadcast(event []byte) {
	select {
	case b.broadcastCh <- event:
	default:
		b.logger.Warn("broadcast channel full, dropping progress event")
	}
}

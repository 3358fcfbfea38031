// Package wsbroadcaster implements orchestrator.Observer by fanning
// progress events out to every connected WebSocket client, batched for
// efficient transmission under the gorilla/websocket upgrader.
package wsbroadcaster

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fxhistorian/pkg/broadcaster"
)

// Event mirrors redisobserver.Event; the two sinks are independent so
// each defines its own wire shape rather than sharing one across
// packages.
type Event struct {
	Symbol     string    `json:"symbol"`
	Kind       string    `json:"kind"`
	Done       int       `json:"done,omitempty"`
	Total      int       `json:"total,omitempty"`
	Success    bool      `json:"success,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Observer broadcasts progress events to every WebSocket client
// connected through Handler.
type Observer struct {
	b        *broadcaster.ProgressBroadcaster
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New builds an Observer and starts its broadcaster's dispatch loop.
func New(logger *zap.Logger) *Observer {
	b := broadcaster.NewBroadcaster(logger)
	go b.Run()
	return &Observer{
		b:      b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler upgrades incoming HTTP connections to WebSocket and registers
// them with the broadcaster. Mount it at the path a dashboard connects
// to, e.g. "/progress".
func (o *Observer) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	o.b.Register(conn)

	go func() {
		defer o.b.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (o *Observer) publish(ev Event) {
	ev.Timestamp = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		o.logger.Warn("failed to marshal progress event", zap.Error(err))
		return
	}
	o.b.Broadcast(data)
}

func (o *Observer) OnStart(symbol string, totalDays int) {
	o.publish(Event{Symbol: symbol, Kind: "start", Total: totalDays})
}

func (o *Observer) OnUpdate(symbol string, done, total int, success bool) {
	o.publish(Event{Symbol: symbol, Kind: "update", Done: done, Total: total, Success: success})
}

func (o *Observer) OnFinish(symbol string, outputPath string) {
	o.publish(Event{Symbol: symbol, Kind: "finish", OutputPath: outputPath, Success: true})
}

func (o *Observer) OnError(symbol string, err error) {
	o.publish(Event{Symbol: symbol, Kind: "error", Error: err.Error()})
}

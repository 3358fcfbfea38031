// Package batcher coalesces orchestrator progress events into fixed-size
// or fixed-interval batches before they reach a WebSocket client, so a
// burst of day-completion updates doesn't turn into one frame per event.
package batcher

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProgressBatch is the wire envelope one flush produces: a run of
// progress events accumulated since the last batch, optionally
// gzip-compressed if that shrinks the payload.
type ProgressBatch struct {
	Kind       string        `json:"kind"`
	Events     []interface{} `json:"events"`
	Count      int           `json:"count"`
	Timestamp  int64         `json:"timestamp"`
	Compressed bool          `json:"compressed,omitempty"`
}

// EventBatcher accumulates progress events and flushes them as a single
// ProgressBatch once maxSize events have queued or timeout has elapsed
// since the first unflushed event, whichever comes first.
type EventBatcher struct {
	logger      *zap.Logger
	events      []interface{}
	mu          sync.Mutex
	timer       *time.Timer
	maxSize     int
	timeout     time.Duration
	maxBytes    int
	compression bool
	outputCh    chan []byte
}

// NewEventBatcher builds an EventBatcher. compression gzips a flushed
// batch when it is over 1KB and doing so actually shrinks it; maxBytes
// bounds the final wire size, above which the batch is split into
// maxSize/2-sized chunks instead of being sent whole.
func NewEventBatcher(logger *zap.Logger, maxSize int, timeout time.Duration, maxBytes int, compression bool) *EventBatcher {
	return &EventBatcher{
		logger:      logger.Named("batcher"),
		events:      make([]interface{}, 0, maxSize),
		maxSize:     maxSize,
		timeout:     timeout,
		maxBytes:    maxBytes,
		compression: compression,
		outputCh:    make(chan []byte, 100),
	}
}

// Start returns the channel that receives each flushed, JSON-encoded
// ProgressBatch.
func (mb *EventBatcher) Start() <-chan []byte {
	return mb.outputCh
}

// AddEvent queues a progress event, flushing immediately once maxSize
// events are pending, or arming a timeout flush otherwise.
func (mb *EventBatcher) AddEvent(event interface{}) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.events = append(mb.events, event)

	if len(mb.events) >= mb.maxSize {
		mb.flushBatch()
		return
	}

	if mb.timer == nil {
		mb.timer = time.AfterFunc(mb.timeout, func() {
			mb.mu.Lock()
			defer mb.mu.Unlock()
			mb.flushBatch()
		})
	}
}

// flushBatch sends the pending events as one ProgressBatch. Must be
// called with mb.mu held.
func (mb *EventBatcher) flushBatch() {
	if len(mb.events) == 0 {
		return
	}

	if mb.timer != nil {
		mb.timer.Stop()
		mb.timer = nil
	}

	batch := ProgressBatch{
		Kind:      "progress_batch",
		Events:    make([]interface{}, len(mb.events)),
		Count:     len(mb.events),
		Timestamp: time.Now().UnixMilli(),
	}
	copy(batch.Events, mb.events)
	mb.events = mb.events[:0]

	data, err := json.Marshal(batch)
	if err != nil {
		mb.logger.Error("failed to marshal progress batch", zap.Error(err))
		return
	}

	if mb.compression && len(data) > 1024 {
		compressed := mb.compressData(data)
		if len(compressed) < len(data) {
			batch.Compressed = true
			data = compressed
		}
	}

	if len(data) > mb.maxBytes {
		mb.logger.Warn("progress batch exceeds max size, splitting",
			zap.Int("size", len(data)),
			zap.Int("max", mb.maxBytes),
			zap.Int("count", batch.Count))
		mb.splitAndFlush(batch.Events)
		return
	}

	select {
	case mb.outputCh <- data:
		mb.logger.Debug("progress batch sent",
			zap.Int("count", batch.Count),
			zap.Int("size", len(data)),
			zap.Bool("compressed", batch.Compressed))
	default:
		mb.logger.Warn("output channel full, dropping progress batch")
	}
}

// compressData gzips data, falling back to the uncompressed input on
// failure.
func (mb *EventBatcher) compressData(data []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		mb.logger.Error("progress batch compression failed", zap.Error(err))
		return data
	}
	if err := gz.Close(); err != nil {
		mb.logger.Error("progress batch compression close failed", zap.Error(err))
		return data
	}
	return buf.Bytes()
}

// splitAndFlush re-chunks an oversized batch into maxSize/2-event
// ProgressBatches and sends each independently.
func (mb *EventBatcher) splitAndFlush(events []interface{}) {
	chunkSize := mb.maxSize / 2
	if chunkSize < 1 {
		chunkSize = 1
	}

	for i := 0; i < len(events); i += chunkSize {
		end := i + chunkSize
		if end > len(events) {
			end = len(events)
		}

		chunk := ProgressBatch{
			Kind:      "progress_batch",
			Events:    events[i:end],
			Count:     end - i,
			Timestamp: time.Now().UnixMilli(),
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			mb.logger.Error("failed to marshal progress batch chunk", zap.Error(err))
			continue
		}

		select {
		case mb.outputCh <- data:
			mb.logger.Debug("progress batch chunk sent", zap.Int("count", chunk.Count))
		default:
			mb.logger.Warn("output channel full, dropping progress batch chunk")
		}
	}
}

// Close flushes any pending events and closes the output channel.
func (mb *EventBatcher) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.flushBatch()
	close(mb.outputCh)
}

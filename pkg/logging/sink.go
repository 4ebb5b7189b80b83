package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/litellm-go/gateway/pkg/logger"
)

// Sink is a LoggingRecord backend (spec §5: "LoggingSink: emit(LoggingRecord);
// implementations: Langfuse, Datadog, S3 (batched), Prometheus (metrics
// only), SQS, stdout"). Emit must not block the calling request past the
// dispatcher's queueing; slow or unreachable backends only ever cost queue
// capacity, never caller latency.
type Sink interface {
	Emit(ctx context.Context, rec *Record)
}

// Dispatcher fans one Record out to every registered Sink over a bounded
// queue per sink, dropping (and counting) records a sink can't keep up
// with rather than blocking the request path — the same non-blocking,
// buffered-channel-with-default shape pkg/config/provider.FileProvider uses
// for its watch-event channel.
type Dispatcher struct {
	mu      sync.RWMutex
	workers []*sinkWorker
}

type sinkWorker struct {
	name    string
	sink    Sink
	queue   chan *Record
	dropped atomic.Int64
}

// NewDispatcher builds a Dispatcher with no sinks registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a Sink with the given queue depth and starts its worker
// goroutine. name identifies the sink in dropped-record log messages.
func (d *Dispatcher) Register(name string, sink Sink, queueDepth int) {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	w := &sinkWorker{name: name, sink: sink, queue: make(chan *Record, queueDepth)}
	go w.run()

	d.mu.Lock()
	d.workers = append(d.workers, w)
	d.mu.Unlock()
}

func (w *sinkWorker) run() {
	for rec := range w.queue {
		w.sink.Emit(context.Background(), rec)
	}
}

// Emit hands rec to every registered sink's queue, non-blocking: a full
// queue drops the record for that sink and increments its drop counter
// rather than stalling the request that produced it.
func (d *Dispatcher) Emit(rec *Record) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.workers {
		select {
		case w.queue <- rec:
		default:
			n := w.dropped.Add(1)
			logger.GetLogger().Warn("logging sink dropped record, queue full",
				slog.String("sink", w.name),
				slog.String("call_id", rec.CallID),
				slog.Int64("total_dropped", n),
			)
		}
	}
}

// Dropped returns the total number of records dropped for the named sink,
// or 0 if no such sink is registered.
func (d *Dispatcher) Dropped(name string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.workers {
		if w.name == name {
			return w.dropped.Load()
		}
	}
	return 0
}

// Close drains and stops every sink worker. Records already queued are
// still delivered; no new Emit calls should occur after Close starts.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range d.workers {
		close(w.queue)
	}
	d.workers = nil
}

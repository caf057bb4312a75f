package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"loanpipe/internal/api"
	"loanpipe/internal/book"
)

// Executor runs store operations. *failover.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, req api.StoreRequest) api.Result
}

// State is a worker's position in the per-request state machine.
type State int

const (
	Idle State = iota
	AwaitFetch
	Decide
	AwaitPersist
	Respond
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case AwaitFetch:
		return "AWAIT_FETCH"
	case Decide:
		return "DECIDE"
	case AwaitPersist:
		return "AWAIT_PERSIST"
	case Respond:
		return "RESPOND"
	default:
		return "UNKNOWN"
	}
}

// Worker handles the request kinds it is subscribed to.
type Worker struct {
	name   string
	topics []book.Kind
	store  Executor
	clock  clock.Clock
	logger *zap.Logger

	mu    sync.Mutex // one request at a time
	state State

	processed *prometheus.CounterVec
}

// NewWorker creates a worker for topics. A nil clock uses real time.
func NewWorker(name string, topics []book.Kind, store Executor, clk clock.Clock, logger *zap.Logger) *Worker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:   name,
		topics: append([]book.Kind(nil), topics...),
		store:  store,
		clock:  clk,
		logger: logger.With(zap.String("worker", name)),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loanpipe",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Requests processed by kind and status.",
		}, []string{"kind", "status"}),
	}
}

// Topics returns the request kinds the worker handles.
func (w *Worker) Topics() []book.Kind {
	return append([]book.Kind(nil), w.topics...)
}

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Process carries one request through fetch, decide and persist and returns
// the result for the caller. Every failure is a result, never a panic or an
// error return.
func (w *Worker) Process(ctx context.Context, req book.Request) api.Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.process(ctx, req)
	w.state = Idle

	w.processed.WithLabelValues(string(req.Kind), res.Status).Inc()
	w.logger.Info("Request processed",
		zap.String("kind", string(req.Kind)),
		zap.String("isbn", req.ISBN),
		zap.String("user", req.User),
		zap.String("status", res.Status),
		zap.String("message", res.Message))
	return res
}

// process must be called with mu held.
func (w *Worker) process(ctx context.Context, req book.Request) api.Result {
	if err := req.Validate(); err != nil {
		w.state = Respond
		return api.Error(err.Error())
	}
	if !w.handles(req.Kind) {
		w.state = Respond
		return api.Error(fmt.Sprintf("worker %s does not handle %s", w.name, req.Kind))
	}

	w.state = AwaitFetch
	fetched := w.store.Execute(ctx, api.GetRecord(req.ISBN))
	if !fetched.IsOK() {
		// Not-found and unavailable results go back unchanged.
		w.state = Respond
		return api.Result{Status: api.StatusError, Message: fetched.Message}
	}
	if fetched.Record == nil {
		w.state = Respond
		return api.Error("store returned no record for " + req.ISBN)
	}

	w.state = Decide
	rec := fetched.Record.Clone()
	msg, err := book.Apply(req.Kind, rec, req.User, w.clock.Now())
	if err != nil {
		w.state = Respond
		return api.Error(err.Error())
	}

	w.state = AwaitPersist
	persisted := w.store.Execute(ctx, api.UpdateRecord(rec))
	w.state = Respond
	if !persisted.IsOK() {
		return api.Error(fmt.Sprintf("could not persist %s: %s", req.Kind, persisted.Message))
	}
	return api.OK(msg, rec)
}

func (w *Worker) handles(kind book.Kind) bool {
	for _, k := range w.topics {
		if k == kind {
			return true
		}
	}
	return false
}

// PrometheusCollectors returns the worker's metrics.
func (w *Worker) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{w.processed}
}

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"loanpipe/internal/api"
	"loanpipe/internal/book"
)

// DefaultReplyTimeout bounds how long a submission waits for a worker.
const DefaultReplyTimeout = 10 * time.Second

// Dispatcher implements the Dispatcher gRPC service.
type Dispatcher struct {
	broker       *Broker
	replyTimeout time.Duration
	clock        clock.Clock
	logger       *zap.Logger

	submitMu sync.Mutex // one submission in flight

	mu       sync.Mutex
	inflight string // correlation id awaiting a reply
	replies  chan api.Result

	submitted *prometheus.CounterVec
	dropped   prometheus.Counter
}

// NewDispatcher creates a dispatcher over broker. A nil clock uses real time.
func NewDispatcher(broker *Broker, replyTimeout time.Duration, clk clock.Clock, logger *zap.Logger) *Dispatcher {
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		broker:       broker,
		replyTimeout: replyTimeout,
		clock:        clk,
		logger:       logger.With(zap.String("service", "dispatcher")),
		replies:      make(chan api.Result, 1),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loanpipe",
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Submitted requests by kind and outcome status.",
		}, []string{"kind", "status"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loanpipe",
			Subsystem: "dispatcher",
			Name:      "stale_replies_total",
			Help:      "Worker replies that matched no in-flight request.",
		}),
	}
}

// Submit decodes a request, dispatches it and encodes the worker's result.
func (d *Dispatcher) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req book.Request
	if err := api.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	res := d.Dispatch(ctx, req)
	out, err := api.ToStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	return out, nil
}

// Dispatch publishes req on its topic and waits for the matching worker
// reply. Submissions are handled one at a time. A request nobody is
// subscribed to, or that gets no reply within the timeout, yields an error
// result.
func (d *Dispatcher) Dispatch(ctx context.Context, req book.Request) api.Result {
	if err := req.Validate(); err != nil {
		return d.finish(req, api.Error(err.Error()))
	}

	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	req.ID = uuid.NewString()
	d.setInflight(req.ID)
	defer d.setInflight("")

	if n := d.broker.Publish(req); n == 0 {
		d.logger.Warn("No worker accepted request",
			zap.String("kind", string(req.Kind)), zap.String("isbn", req.ISBN))
		return d.finish(req, api.Error(fmt.Sprintf("no worker subscribed to %s", req.Kind)))
	}
	d.logger.Debug("Published request",
		zap.String("id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("isbn", req.ISBN),
		zap.String("user", req.User))

	timer := d.clock.Timer(d.replyTimeout)
	defer timer.Stop()

	select {
	case res := <-d.replies:
		return d.finish(req, res)
	case <-timer.C:
		d.logger.Warn("Worker reply timed out",
			zap.String("id", req.ID), zap.Duration("timeout", d.replyTimeout))
		return d.finish(req, api.Error(fmt.Sprintf("no worker reply for %s", req.Kind)))
	case <-ctx.Done():
		return d.finish(req, api.Error(ctx.Err().Error()))
	}
}

// Reply accepts a worker result. It is always acknowledged; a result whose id
// does not match the in-flight request is dropped.
func (d *Dispatcher) Reply(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var res api.Result
	if err := api.FromStruct(in, &res); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid result: %v", err)
	}
	d.Deliver(res)
	return api.ToStruct(api.Ack)
}

// Deliver hands res to the waiting submission and reports whether it was
// accepted.
func (d *Dispatcher) Deliver(res api.Result) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res.ID == "" || res.ID != d.inflight {
		d.dropped.Inc()
		d.logger.Debug("Dropping stale reply", zap.String("id", res.ID))
		return false
	}
	// Later replies for the same id are stale.
	d.inflight = ""
	select {
	case d.replies <- res:
	default:
	}
	return true
}

// Subscribe streams requests on the subscribed topics until the client goes
// away.
func (d *Dispatcher) Subscribe(in *structpb.Struct, stream api.DispatcherSubscribeServer) error {
	var sub api.Subscription
	if err := api.FromStruct(in, &sub); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid subscription: %v", err)
	}
	if len(sub.Topics) == 0 {
		return status.Error(codes.InvalidArgument, "subscription needs at least one topic")
	}
	for _, t := range sub.Topics {
		if !t.Valid() {
			return status.Errorf(codes.InvalidArgument, "unknown topic: %q", t)
		}
	}

	ch, cancel := d.broker.Subscribe(sub.Topics)
	defer cancel()

	d.logger.Info("Worker subscribed", zap.Any("topics", sub.Topics))
	defer d.logger.Info("Worker unsubscribed", zap.Any("topics", sub.Topics))

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-ch:
			out, err := api.ToStruct(req)
			if err != nil {
				return status.Errorf(codes.Internal, "failed to encode request: %v", err)
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}

// PrometheusCollectors returns the dispatcher's metrics.
func (d *Dispatcher) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{d.submitted, d.dropped}
}

func (d *Dispatcher) setInflight(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight = id
	// Discard a reply left over from an earlier submission.
	select {
	case <-d.replies:
	default:
	}
}

func (d *Dispatcher) finish(req book.Request, res api.Result) api.Result {
	kind := string(req.Kind)
	if !req.Kind.Valid() {
		kind = "invalid"
	}
	d.submitted.WithLabelValues(kind, res.Status).Inc()
	// Correlation ids stay between the dispatcher and its workers.
	res.ID = ""
	return res
}

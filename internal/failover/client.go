package failover

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"loanpipe/internal/api"
	"loanpipe/internal/node"
)

const (
	// DefaultTimeout bounds one exchange with one replica.
	DefaultTimeout = 2 * time.Second

	// UnavailableMessage is the result message when neither replica answers.
	UnavailableMessage = "primary and secondary stores unavailable"
)

// Replica is a connection handle to one record store.
type Replica interface {
	// Exchange returns an error only when no reply arrived. A gRPC status
	// sent by the store counts as a reply and becomes an error result.
	Exchange(ctx context.Context, req api.StoreRequest) (api.Result, error)
	Close() error
}

// Dialer opens a handle to the store at addr without waiting for it to be
// reachable.
type Dialer func(addr string) (Replica, error)

// GRPCDialer opens gRPC replica handles.
func GRPCDialer(addr string) (Replica, error) {
	conn, err := node.Dial(addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Client.
type Options struct {
	PrimaryAddr   string
	SecondaryAddr string
	Timeout       time.Duration
	Dialer        Dialer
	Logger        *zap.Logger
}

// Client is a failover client over a primary and a secondary store.
type Client struct {
	primaryAddr   string
	secondaryAddr string
	timeout       time.Duration
	dial          Dialer
	logger        *zap.Logger

	mu        sync.Mutex
	primary   Replica // nil when absent
	secondary Replica // nil when absent
	pending   [][]byte

	metrics *metrics
}

// New creates a client and opens handles to both stores. A handle that
// cannot be opened is left absent and retried on later calls.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = GRPCDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		primaryAddr:   opts.PrimaryAddr,
		secondaryAddr: opts.SecondaryAddr,
		timeout:       opts.Timeout,
		dial:          opts.Dialer,
		logger:        opts.Logger.With(zap.String("service", "failover")),
		metrics:       newMetrics(),
	}

	c.mu.Lock()
	c.primary = c.open(c.primaryAddr, "primary")
	c.secondary = c.open(c.secondaryAddr, "secondary")
	c.mu.Unlock()
	return c
}

// Execute sends req to the primary, or to the secondary when the primary is
// absent or does not answer within the timeout. Any answer from the primary,
// including an error status, is returned as is. A write answered only by the
// secondary is queued for replay. When neither store answers, an error
// result is returned and nothing is queued.
func (c *Client) Execute(ctx context.Context, req api.StoreRequest) api.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.primary != nil {
		res, err := c.exchange(ctx, c.primary, req)
		if err == nil {
			return res
		}
		c.logger.Warn("Primary did not respond, handle will be recreated",
			zap.String("type", req.Type), zap.Error(err))
	}
	c.primary = c.reopen(c.primary, c.primaryAddr, "primary")

	if c.secondary != nil {
		res, err := c.exchange(ctx, c.secondary, req)
		if err == nil {
			c.metrics.secondaryServed.Inc()
			if req.IsWrite() && res.IsOK() {
				c.enqueueLocked(req)
			}
			return res
		}
		c.logger.Warn("Secondary did not respond", zap.String("type", req.Type), zap.Error(err))
		c.secondary = c.reopen(c.secondary, c.secondaryAddr, "secondary")
	} else {
		c.secondary = c.open(c.secondaryAddr, "secondary")
	}

	c.metrics.unavailable.Inc()
	return api.Error(UnavailableMessage)
}

// ResyncReport describes one resync pass.
type ResyncReport struct {
	PrimaryLive bool
	Replayed    int
	Remaining   int
}

// Resync probes the primary and, if it answers, replays queued writes onto
// it in order until the queue is empty or an entry is not accepted.
func (c *Client) Resync(ctx context.Context) ResyncReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.resyncRuns.Inc()
	report := ResyncReport{Remaining: len(c.pending)}

	if c.primary == nil {
		c.primary = c.open(c.primaryAddr, "primary")
		if c.primary == nil {
			return report
		}
	}

	// Any answer, including not-found for the sentinel, proves liveness.
	if _, err := c.exchange(ctx, c.primary, api.GetRecord(api.PingISBN)); err != nil {
		c.logger.Debug("Primary still down", zap.Error(err))
		c.primary = c.reopen(c.primary, c.primaryAddr, "primary")
		return report
	}
	report.PrimaryLive = true

	for len(c.pending) > 0 {
		var req api.StoreRequest
		if err := api.Unmarshal(c.pending[0], &req); err != nil {
			c.logger.Error("Undecodable pending update left at queue head", zap.Error(err))
			break
		}

		res, err := c.exchange(ctx, c.primary, req)
		if err != nil {
			c.logger.Warn("Primary did not respond during replay", zap.Error(err))
			c.primary = c.reopen(c.primary, c.primaryAddr, "primary")
			break
		}
		if !res.IsOK() {
			c.logger.Warn("Primary rejected replayed update", zap.String("message", res.Message))
			break
		}

		c.pending[0] = nil
		c.pending = c.pending[1:]
		report.Replayed++
		c.metrics.replayed.Inc()
	}

	c.metrics.pending.Set(float64(len(c.pending)))
	report.Remaining = len(c.pending)
	if report.Replayed > 0 || report.Remaining > 0 {
		c.logger.Info("Resync finished",
			zap.Int("replayed", report.Replayed),
			zap.Int("pending", report.Remaining))
	}
	return report
}

// PendingLen returns the number of queued writes.
func (c *Client) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Pending returns the queued writes in replay order.
func (c *Client) Pending() []api.StoreRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]api.StoreRequest, 0, len(c.pending))
	for _, b := range c.pending {
		var req api.StoreRequest
		if err := api.Unmarshal(b, &req); err == nil {
			out = append(out, req)
		}
	}
	return out
}

// Close releases both handles. Queued writes are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result *multierror.Error
	for _, r := range []Replica{c.primary, c.secondary} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.primary, c.secondary = nil, nil
	if len(c.pending) > 0 {
		c.logger.Warn("Closing with unreplayed updates", zap.Int("pending", len(c.pending)))
	}
	return result.ErrorOrNil()
}

// PrometheusCollectors returns the client's metrics.
func (c *Client) PrometheusCollectors() []prometheus.Collector {
	return c.metrics.collectors()
}

// exchange must be called with mu held.
func (c *Client) exchange(ctx context.Context, r Replica, req api.StoreRequest) (api.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := r.Exchange(ctx, req)
	if err != nil && answered(err) {
		return api.Error(status.Convert(err).Message()), nil
	}
	return res, err
}

// answered reports whether err is a status the store itself sent back, as
// opposed to a failure to reach it in time.
func answered(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return false
	}
	return true
}

// enqueueLocked must be called with mu held.
func (c *Client) enqueueLocked(req api.StoreRequest) {
	b, err := api.Marshal(req)
	if err != nil {
		c.logger.Error("Cannot serialize update for replay", zap.Error(err))
		return
	}
	c.pending = append(c.pending, b)
	c.metrics.pending.Set(float64(len(c.pending)))
	c.logger.Info("Update applied on secondary only, queued for resync",
		zap.Int("pending", len(c.pending)))
}

// reopen discards old and opens a fresh handle. It must be called with mu
// held.
func (c *Client) reopen(old Replica, addr, role string) Replica {
	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Debug("Closing stale handle failed", zap.String("role", role), zap.Error(err))
		}
	}
	return c.open(addr, role)
}

func (c *Client) open(addr, role string) Replica {
	if addr == "" {
		return nil
	}
	r, err := c.dial(addr)
	if err != nil {
		c.logger.Warn("Cannot open store handle", zap.String("role", role), zap.String("addr", addr), zap.Error(err))
		return nil
	}
	return r
}

package replication

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"
	"loanpipe/internal/api"
)

const (
	// Metadata key marking an update that is itself a mirror, so the peer
	// does not forward it again.
	mirroredMetadataKey = "x-mirrored"
	mirroredValue       = "true"

	// DefaultTimeout bounds a single mirror exchange.
	DefaultTimeout = 2 * time.Second
)

// Peer is a store that can receive a mirrored update.
type Peer interface {
	Exchange(ctx context.Context, req api.StoreRequest) (api.Result, error)
}

// WithMirrored marks an outgoing context as carrying a mirrored update.
func WithMirrored(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, mirroredMetadataKey, mirroredValue)
}

// IsMirrored reports whether an incoming request was sent by a mirror.
func IsMirrored(ctx context.Context) bool {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return false
	}
	for _, v := range md.Get(mirroredMetadataKey) {
		if v == mirroredValue {
			return true
		}
	}
	return false
}

// Mirror forwards updates to a single peer store.
type Mirror struct {
	peer    Peer
	timeout time.Duration
	logger  *zap.Logger

	mirrored prometheus.Counter
	failures prometheus.Counter
}

// NewMirror creates a mirror to peer.
func NewMirror(peer Peer, timeout time.Duration, logger *zap.Logger) *Mirror {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		peer:    peer,
		timeout: timeout,
		logger:  logger.With(zap.String("service", "mirror")),
		mirrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loanpipe",
			Subsystem: "store",
			Name:      "mirrored_updates_total",
			Help:      "Updates acknowledged by the peer store.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loanpipe",
			Subsystem: "store",
			Name:      "mirror_failures_total",
			Help:      "Updates the peer store did not acknowledge.",
		}),
	}
}

// Forward sends req to the peer and waits at most the mirror timeout. The
// returned error is informational; callers must not fail the local write.
// The exchange runs on a context detached from the caller's request.
func (m *Mirror) Forward(req api.StoreRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	isbn := ""
	if req.Record != nil {
		isbn = req.Record.ISBN
	}

	res, err := m.peer.Exchange(WithMirrored(ctx), req)
	if err != nil {
		m.failures.Inc()
		m.logger.Warn("Peer did not acknowledge update", zap.String("isbn", isbn), zap.Error(err))
		return fmt.Errorf("mirror %s: %w", isbn, err)
	}
	if !res.IsOK() {
		m.failures.Inc()
		m.logger.Warn("Peer rejected update", zap.String("isbn", isbn), zap.String("message", res.Message))
		return fmt.Errorf("mirror %s: peer answered %s: %s", isbn, res.Status, res.Message)
	}

	m.mirrored.Inc()
	m.logger.Debug("Peer updated", zap.String("isbn", isbn))
	return nil
}

// PrometheusCollectors returns the mirror's metrics.
func (m *Mirror) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.mirrored, m.failures}
}

package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
	"loanpipe/internal/api"
	"loanpipe/internal/replication"
	"loanpipe/internal/storage"
)

// Server implements the RecordStore gRPC service.
type Server struct {
	store  storage.Store
	mirror *replication.Mirror // nil when no peer is configured
	nodeID string
	logger *zap.Logger

	requests *prometheus.CounterVec
	updates  prometheus.Counter
}

// NewServer creates a new record store server. mirror may be nil.
func NewServer(store storage.Store, mirror *replication.Mirror, nodeID string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:  store,
		mirror: mirror,
		nodeID: nodeID,
		logger: logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loanpipe",
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Store requests by type and status.",
		}, []string{"type", "status"}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loanpipe",
			Subsystem: "store",
			Name:      "updates_total",
			Help:      "Records overwritten and persisted.",
		}),
	}
}

// Exchange decodes a store request, handles it and encodes the result.
func (s *Server) Exchange(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := protoToStoreRequest(in)
	if err != nil {
		return nil, err
	}
	res := s.Handle(ctx, req)
	s.requests.WithLabelValues(req.Type, res.Status).Inc()
	return resultToProto(res)
}

// Handle runs one store request. Failures are reported in the result, never
// as transport errors.
func (s *Server) Handle(ctx context.Context, req api.StoreRequest) api.Result {
	switch req.Type {
	case api.TypeGetRecord:
		return s.get(req)
	case api.TypeUpdateRecord:
		return s.update(ctx, req)
	default:
		s.logger.Warn("Unknown request type", zap.String("type", req.Type))
		return api.Error(fmt.Sprintf("unknown type: %s", req.Type))
	}
}

func (s *Server) get(req api.StoreRequest) api.Result {
	if req.ISBN == "" {
		return api.Error("isbn cannot be empty")
	}
	rec, err := s.store.Get(req.ISBN)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("Record not found", zap.String("isbn", req.ISBN))
		return api.Error(fmt.Sprintf("book not found: %s", req.ISBN))
	}
	if err != nil {
		return api.Error(err.Error())
	}
	return api.OK("record found", rec)
}

func (s *Server) update(ctx context.Context, req api.StoreRequest) api.Result {
	if req.Record == nil || req.Record.ISBN == "" {
		return api.Error("update requires a record with an isbn")
	}

	if err := s.store.Put(req.Record); err != nil {
		s.logger.Error("Failed to persist update", zap.String("isbn", req.Record.ISBN), zap.Error(err))
		return api.Error(err.Error())
	}

	s.updates.Inc()
	mirrored := replication.IsMirrored(ctx)
	s.logger.Info("Record updated",
		zap.String("isbn", req.Record.ISBN),
		zap.Int("copies", req.Record.CopiesAvailable),
		zap.Bool("from_peer", mirrored))

	if s.mirror != nil && !mirrored {
		// Peer failure is already logged and counted by the mirror.
		_ = s.mirror.Forward(req)
	}
	return api.OK("record updated", nil)
}

// PrometheusCollectors returns the server's metrics, including the mirror's.
func (s *Server) PrometheusCollectors() []prometheus.Collector {
	cs := []prometheus.Collector{s.requests, s.updates}
	if s.mirror != nil {
		cs = append(cs, s.mirror.PrometheusCollectors()...)
	}
	return cs
}

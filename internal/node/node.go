package node

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"loanpipe/internal/api"
	"loanpipe/internal/replication"
	"loanpipe/internal/storage"
)

// Options configures a record store node.
type Options struct {
	NodeID     string
	ListenAddr string
	// PeerAddr, when set, is the store every update is mirrored to.
	PeerAddr      string
	MirrorTimeout time.Duration
}

// Node is a single record store process.
type Node struct {
	nodeID     string
	listenAddr string
	store      *storage.InMemoryStore
	server     *Server
	peer       *ReplicaConn
	logger     *zap.Logger

	mu         sync.Mutex
	grpcServer *grpc.Server
	lis        net.Listener
	stopped    bool
}

// NewNode creates a node serving store.
func NewNode(opts Options, store *storage.InMemoryStore, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("node", opts.NodeID))

	n := &Node{
		nodeID:     opts.NodeID,
		listenAddr: opts.ListenAddr,
		store:      store,
		logger:     logger,
	}

	var mirror *replication.Mirror
	if opts.PeerAddr != "" {
		peer, err := Dial(opts.PeerAddr)
		if err != nil {
			return nil, err
		}
		n.peer = peer
		mirror = replication.NewMirror(peer, opts.MirrorTimeout, logger)
		logger.Info("Mirroring updates to peer", zap.String("peer", opts.PeerAddr))
	}

	n.server = NewServer(store, mirror, opts.NodeID, logger)
	return n, nil
}

// Start listens on the configured address and serves until Stop.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.listenAddr, err)
	}
	return n.Serve(lis)
}

// Serve serves on an existing listener until Stop.
func (n *Node) Serve(lis net.Listener) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return lis.Close()
	}
	n.lis = lis
	n.grpcServer = grpc.NewServer()
	api.RegisterRecordStoreServer(n.grpcServer, n.server)
	gs := n.grpcServer
	n.mu.Unlock()

	n.logger.Info("Starting record store",
		zap.String("addr", lis.Addr().String()),
		zap.Int("records", n.store.Len()))

	if err := gs.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Addr returns the bound address once serving, or the configured one.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lis != nil {
		return n.lis.Addr().String()
	}
	return n.listenAddr
}

// Store returns the node's record store.
func (n *Node) Store() *storage.InMemoryStore {
	return n.store
}

// Stop gracefully stops serving and releases the peer connection and the
// persister.
func (n *Node) Stop() error {
	n.mu.Lock()
	gs := n.grpcServer
	n.stopped = true
	n.mu.Unlock()

	if gs != nil {
		n.logger.Info("Stopping record store")
		gs.GracefulStop()
	}

	var result *multierror.Error
	if n.peer != nil {
		if err := n.peer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := n.store.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// PrometheusCollectors returns the node's metrics.
func (n *Node) PrometheusCollectors() []prometheus.Collector {
	return n.server.PrometheusCollectors()
}

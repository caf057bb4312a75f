package it

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"loanpipe/internal/actor"
	"loanpipe/internal/api"
	"loanpipe/internal/book"
	"loanpipe/internal/dispatch"
	"loanpipe/internal/failover"
	"loanpipe/internal/node"
	"loanpipe/internal/storage"
)

// StartTime is the mock clock's initial time; due dates derive from it.
var StartTime = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

// Cluster is an in-process loan pipeline: record stores, a dispatcher and
// workers, all on loopback addresses.
type Cluster struct {
	dataDir  string
	seedPath string
	logger   *zap.Logger

	// Clock drives worker due dates and resync schedulers.
	Clock *clock.Mock

	mu         sync.Mutex
	stores     map[string]*Store
	dispatcher *dispatch.Server
	broker     *dispatch.Broker
	workers    []*Worker
	requester  *dispatch.Client
}

// Store is one record store replica of the cluster.
type Store struct {
	ID       string
	Addr     string
	PeerID   string
	dataPath string
	node     *node.Node
}

// Worker is one running actor worker and its failover client.
type Worker struct {
	Name      string
	Failover  *failover.Client
	worker    *actor.Worker
	scheduler *failover.Scheduler
	conn      *dispatch.Client
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCluster creates a cluster whose stores persist under dataDir and are
// seeded with seed.
func NewCluster(dataDir string, seed []*book.Record, logger *zap.Logger) (*Cluster, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	seedPath := filepath.Join(dataDir, "seed.json")
	b, err := api.Marshal(seed)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(seedPath, b, 0644); err != nil {
		return nil, fmt.Errorf("failed to write seed: %w", err)
	}

	mock := clock.NewMock()
	mock.Set(StartTime)

	return &Cluster{
		dataDir:  dataDir,
		seedPath: seedPath,
		logger:   logger,
		Clock:    mock,
		stores:   make(map[string]*Store),
	}, nil
}

// AddStore reserves a loopback address for a store without starting it.
// peerID names the store updates are mirrored to, if any.
func (c *Cluster) AddStore(id, peerID string) (*Store, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to reserve address for %s: %w", id, err)
	}
	addr := lis.Addr().String()
	lis.Close()

	s := &Store{
		ID:       id,
		Addr:     addr,
		PeerID:   peerID,
		dataPath: filepath.Join(c.dataDir, id+".json"),
	}
	c.mu.Lock()
	c.stores[id] = s
	c.mu.Unlock()
	return s, nil
}

// StartNode starts a store added with AddStore, loading its persisted
// records or the seed, and waits until it answers.
func (c *Cluster) StartNode(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stores[id]
	if !ok {
		return fmt.Errorf("store %s not found", id)
	}
	if s.node != nil {
		return fmt.Errorf("store %s already running", id)
	}

	peerAddr := ""
	if peer, ok := c.stores[s.PeerID]; ok {
		peerAddr = peer.Addr
	}

	store, err := storage.Open(storage.NewFilePersister(s.dataPath), c.seedPath)
	if err != nil {
		return err
	}
	n, err := node.NewNode(node.Options{
		NodeID:        id,
		ListenAddr:    s.Addr,
		PeerAddr:      peerAddr,
		MirrorTimeout: 500 * time.Millisecond,
	}, store, c.logger)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		n.Stop()
		return fmt.Errorf("failed to listen for %s: %w", id, err)
	}
	go func() {
		if err := n.Serve(lis); err != nil {
			c.logger.Error("Store stopped with error", zap.String("store", id), zap.Error(err))
		}
	}()
	s.node = n

	return waitForReady(ctx, s, 5*time.Second)
}

// waitForReady probes the store until it answers.
func waitForReady(ctx context.Context, s *Store, timeout time.Duration) error {
	conn, err := node.Dial(s.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	for {
		probeCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		_, err := conn.Exchange(probeCtx, api.GetRecord(api.PingISBN))
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for store %s to be ready: %w", s.ID, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// KillNode stops a running store. Its persisted records are kept.
func (c *Cluster) KillNode(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stores[id]
	if !ok || s.node == nil {
		return fmt.Errorf("store %s not running", id)
	}
	err := s.node.Stop()
	s.node = nil
	return err
}

// Record reads isbn directly from a running store.
func (c *Cluster) Record(id, isbn string) (*book.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stores[id]
	if !ok || s.node == nil {
		return nil, fmt.Errorf("store %s not running", id)
	}
	return s.node.Store().Get(isbn)
}

// StartDispatcher starts the dispatcher and connects the cluster's
// requester to it.
func (c *Cluster) StartDispatcher(replyTimeout time.Duration) error {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.broker = dispatch.NewBroker(dispatch.DefaultBuffer)
	d := dispatch.NewDispatcher(c.broker, replyTimeout, nil, c.logger)
	c.dispatcher = dispatch.NewServer(lis.Addr().String(), d, c.logger)
	go func() {
		if err := c.dispatcher.Serve(lis); err != nil {
			c.logger.Error("Dispatcher stopped with error", zap.Error(err))
		}
	}()

	c.requester, err = dispatch.Dial(lis.Addr().String())
	return err
}

// StartWorker starts a worker for topics over the primary and secondary
// stores and waits until the dispatcher sees its subscription.
func (c *Cluster) StartWorker(ctx context.Context, name string, topics []book.Kind, primaryID, secondaryID string) (*Worker, error) {
	c.mu.Lock()
	primary, okP := c.stores[primaryID]
	secondary, okS := c.stores[secondaryID]
	dispatcherAddr := ""
	if c.dispatcher != nil {
		dispatcherAddr = c.dispatcher.Addr()
	}
	c.mu.Unlock()

	if !okP || !okS {
		return nil, fmt.Errorf("unknown stores %s/%s", primaryID, secondaryID)
	}
	if dispatcherAddr == "" {
		return nil, fmt.Errorf("dispatcher not started")
	}

	before := c.subscribers(topics[0])

	fc := failover.New(failover.Options{
		PrimaryAddr:   primary.Addr,
		SecondaryAddr: secondary.Addr,
		Timeout:       500 * time.Millisecond,
		Logger:        c.logger,
	})
	conn, err := dispatch.Dial(dispatcherAddr)
	if err != nil {
		fc.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		Name:      name,
		Failover:  fc,
		worker:    actor.NewWorker(name, topics, fc, c.Clock, c.logger),
		scheduler: failover.NewScheduler(fc, failover.DefaultResyncInterval, c.Clock),
		conn:      conn,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	w.scheduler.Start(runCtx)
	go func() {
		defer close(w.done)
		_ = w.worker.Run(runCtx, conn)
	}()

	c.mu.Lock()
	c.workers = append(c.workers, w)
	c.mu.Unlock()

	deadline := time.Now().Add(5 * time.Second)
	for c.subscribers(topics[0]) <= before {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("worker %s did not subscribe", name)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return w, nil
}

func (c *Cluster) subscribers(topic book.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broker == nil {
		return 0
	}
	return c.broker.Subscribers(topic)
}

// Submit sends a request through the dispatcher and returns the worker's
// result.
func (c *Cluster) Submit(ctx context.Context, kind book.Kind, isbn, user string) (api.Result, error) {
	c.mu.Lock()
	requester := c.requester
	c.mu.Unlock()
	if requester == nil {
		return api.Result{}, fmt.Errorf("dispatcher not started")
	}
	return requester.Submit(ctx, book.Request{Kind: kind, ISBN: isbn, User: user})
}

// Stop stops workers, the dispatcher and every running store.
func (c *Cluster) Stop() error {
	c.mu.Lock()
	workers := c.workers
	c.workers = nil
	c.mu.Unlock()

	var result *multierror.Error
	for _, w := range workers {
		w.cancel()
		w.scheduler.Stop()
		<-w.done
		if err := w.conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := w.Failover.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.requester != nil {
		if err := c.requester.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		c.requester = nil
	}
	if c.dispatcher != nil {
		c.dispatcher.Stop()
		c.dispatcher = nil
	}
	for _, s := range c.stores {
		if s.node == nil {
			continue
		}
		if err := s.node.Stop(); err != nil {
			result = multierror.Append(result, err)
		}
		s.node = nil
	}
	return result.ErrorOrNil()
}

package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"loanpipe/internal/config"
	"loanpipe/internal/node"
	"loanpipe/internal/replication"
	"loanpipe/internal/storage"
)

func newStoreCommand() *cobra.Command {
	var (
		proc processOpts
		cfg  config.Store
	)
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Run a record store replica",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStore(&proc, cfg)
		},
	}

	v := newViper()
	BindOptions(v, cmd, append(proc.options(),
		NewOpt(&cfg.NodeID, "node-id", "ga", "store identifier used in logs"),
		NewOpt(&cfg.ListenAddr, "listen-addr", "127.0.0.1:7001", "address to serve the store on"),
		NewOpt(&cfg.PeerAddr, "peer-addr", "", "peer store to mirror updates to"),
		NewOpt(&cfg.MirrorTimeout, "mirror-timeout", replication.DefaultTimeout, "bound on one mirror exchange"),
		NewOpt(&cfg.Backend, "backend", config.BackendFile, "persistence backend: file or bolt"),
		NewOpt(&cfg.DataPath, "data", "books.json", "path of the persisted record set"),
		NewOpt(&cfg.SeedPath, "seed", "", "JSON array of records loaded when the store is empty"),
	))
	return cmd
}

func runStore(proc *processOpts, cfg config.Store) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := proc.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	p, err := openPersister(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(p, cfg.SeedPath)
	if err != nil {
		p.Close()
		return errors.Wrap(err, "failed to open record store")
	}

	n, err := node.NewNode(node.Options{
		NodeID:        cfg.NodeID,
		ListenAddr:    cfg.ListenAddr,
		PeerAddr:      cfg.PeerAddr,
		MirrorTimeout: cfg.MirrorTimeout,
	}, store, log)
	if err != nil {
		store.Close()
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	return runGroup(ctx, log, proc.metricsAddr, n.PrometheusCollectors(),
		func(context.Context) error {
			return n.Start()
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			log.Info("Shutting down")
			return n.Stop()
		},
	)
}

func openPersister(cfg config.Store) (storage.Persister, error) {
	if cfg.Backend == config.BackendBolt {
		return storage.OpenBoltPersister(cfg.DataPath)
	}
	return storage.NewFilePersister(cfg.DataPath), nil
}

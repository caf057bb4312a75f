package main

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"loanpipe/internal/actor"
	"loanpipe/internal/config"
	"loanpipe/internal/dispatch"
	"loanpipe/internal/failover"
)

func newWorkerCommand() *cobra.Command {
	var (
		proc   processOpts
		cfg    config.Worker
		topics string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run an actor worker for one or more request kinds",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			kinds, err := config.ParseKinds(topics)
			if err != nil {
				return err
			}
			cfg.Topics = kinds
			if cfg.Name == "" {
				cfg.Name = strings.ToLower(strings.ReplaceAll(topics, ",", "-"))
			}
			return runWorker(&proc, cfg)
		},
	}

	v := newViper()
	BindOptions(v, cmd, append(proc.options(),
		NewOpt(&cfg.Name, "name", "", "worker name used in logs; defaults to the topics"),
		NewOpt(&topics, "topics", "", "comma-separated request kinds to handle, e.g. RENEW,RETURN"),
		NewOpt(&cfg.DispatcherAddr, "dispatcher-addr", "127.0.0.1:7000", "load dispatcher address"),
		NewOpt(&cfg.PrimaryAddr, "primary-addr", "127.0.0.1:7001", "primary record store address"),
		NewOpt(&cfg.SecondaryAddr, "secondary-addr", "127.0.0.1:7002", "secondary record store address"),
		NewOpt(&cfg.StoreTimeout, "store-timeout", failover.DefaultTimeout, "bound on one store exchange"),
		NewOpt(&cfg.ResyncInterval, "resync-interval", failover.DefaultResyncInterval, "how often queued updates are replayed onto the primary"),
	))
	return cmd
}

func runWorker(proc *processOpts, cfg config.Worker) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := proc.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With(zap.String("worker", cfg.Name))

	fc := failover.New(failover.Options{
		PrimaryAddr:   cfg.PrimaryAddr,
		SecondaryAddr: cfg.SecondaryAddr,
		Timeout:       cfg.StoreTimeout,
		Logger:        log,
	})
	dc, err := dispatch.Dial(cfg.DispatcherAddr)
	if err != nil {
		fc.Close()
		return err
	}

	w := actor.NewWorker(cfg.Name, cfg.Topics, fc, nil, log)
	scheduler := failover.NewScheduler(fc, cfg.ResyncInterval, nil)

	ctx, cancel := signalContext()
	defer cancel()

	scheduler.Start(ctx)
	collectors := append([]prometheus.Collector{}, w.PrometheusCollectors()...)
	collectors = append(collectors, fc.PrometheusCollectors()...)

	runErr := runGroup(ctx, log, proc.metricsAddr, collectors,
		func(ctx context.Context) error {
			return w.Run(ctx, dc)
		},
	)
	scheduler.Stop()

	var result *multierror.Error
	if runErr != nil {
		result = multierror.Append(result, runErr)
	}
	if err := dc.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := fc.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

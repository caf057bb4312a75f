package main

import (
	"context"

	"github.com/spf13/cobra"
	"loanpipe/internal/config"
	"loanpipe/internal/dispatch"
)

func newDispatcherCommand() *cobra.Command {
	var (
		proc processOpts
		cfg  config.Dispatcher
	)
	cmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "Run the load dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDispatcher(&proc, cfg)
		},
	}

	v := newViper()
	BindOptions(v, cmd, append(proc.options(),
		NewOpt(&cfg.ListenAddr, "listen-addr", "127.0.0.1:7000", "address to serve the dispatcher on"),
		NewOpt(&cfg.ReplyTimeout, "reply-timeout", dispatch.DefaultReplyTimeout, "how long a submission waits for its worker"),
		NewOpt(&cfg.Buffer, "buffer", dispatch.DefaultBuffer, "requests queued per subscribed worker"),
	))
	return cmd
}

func runDispatcher(proc *processOpts, cfg config.Dispatcher) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := proc.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	d := dispatch.NewDispatcher(dispatch.NewBroker(cfg.Buffer), cfg.ReplyTimeout, nil, log)
	srv := dispatch.NewServer(cfg.ListenAddr, d, log)

	ctx, cancel := signalContext()
	defer cancel()

	return runGroup(ctx, log, proc.metricsAddr, d.PrometheusCollectors(),
		func(context.Context) error {
			return srv.Start()
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			srv.Stop()
			return nil
		},
	)
}

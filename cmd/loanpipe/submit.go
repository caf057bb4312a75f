package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"loanpipe/internal/config"
	"loanpipe/internal/dispatch"
	"loanpipe/internal/source"
)

func newSubmitCommand() *cobra.Command {
	var (
		proc processOpts
		cfg  config.Submit
	)
	cmd := &cobra.Command{
		Use:   "submit <requests-file>",
		Short: "Submit the requests in a file to the dispatcher, one at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg.RequestsPath = args[0]
			return runSubmit(&proc, cfg)
		},
	}

	v := newViper()
	BindOptions(v, cmd, append(proc.logOptions(),
		NewOpt(&cfg.DispatcherAddr, "dispatcher-addr", "127.0.0.1:7000", "load dispatcher address"),
		NewOpt(&cfg.OutputPath, "output", "", "file to append kind,isbn,user,status,message lines to"),
		NewOpt(&cfg.Pause, "pause", source.DefaultPause, "delay between requests"),
	))
	return cmd
}

func runSubmit(proc *processOpts, cfg config.Submit) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := proc.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	reqs, err := source.ReadFile(cfg.RequestsPath)
	if err != nil {
		return err
	}

	var out io.Writer
	if cfg.OutputPath != "" {
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrapf(err, "failed to open output file %s", cfg.OutputPath)
		}
		defer f.Close()
		out = f
	}

	dc, err := dispatch.Dial(cfg.DispatcherAddr)
	if err != nil {
		return err
	}
	defer dc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	src := source.New(dc, source.Options{Pause: cfg.Pause, Output: out, Logger: log})
	sum, err := src.Run(ctx, reqs)
	log.Info("Run finished",
		zap.Int("submitted", sum.Submitted),
		zap.Int("ok", sum.OK),
		zap.Int("failed", sum.Failed))
	return err
}

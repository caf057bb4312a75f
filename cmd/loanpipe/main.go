// Command loanpipe runs the processes of the library loan pipeline: record
// stores, the load dispatcher, actor workers and the request source.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"loanpipe/internal/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "loanpipe",
		Short:         "Fault-tolerant library loan pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newStoreCommand(),
		newDispatcherCommand(),
		newWorkerCommand(),
		newSubmitCommand(),
	)
	return root
}

// processOpts are the options shared by every subcommand.
type processOpts struct {
	logLevel    string
	logFormat   string
	metricsAddr string
}

func (p *processOpts) logOptions() []Opt {
	return []Opt{
		NewOpt(&p.logLevel, "log-level", "info", "log level: debug, info, warn, error"),
		NewOpt(&p.logFormat, "log-format", "auto", "log format: auto, console, json"),
	}
}

func (p *processOpts) options() []Opt {
	return append(p.logOptions(),
		NewOpt(&p.metricsAddr, "metrics-addr", "", "address to serve /metrics on; empty disables it"),
	)
}

func (p *processOpts) newLogger() (*zap.Logger, error) {
	level, err := logger.ParseLevel(p.logLevel)
	if err != nil {
		return nil, err
	}
	return logger.Config{Format: p.logFormat, Level: level}.New(os.Stderr)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runGroup runs fns until one fails or ctx is cancelled, serving collectors
// on metricsAddr alongside them when it is set.
func runGroup(ctx context.Context, log *zap.Logger, metricsAddr string, collectors []prometheus.Collector, fns ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors...)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}

		g.Go(func() error {
			log.Info("Serving metrics", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			return fn(ctx)
		})
	}
	return g.Wait()
}

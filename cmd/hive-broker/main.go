// Command hive-broker runs the message broker process: it loads
// configuration, bootstraps the metadata store and virtual host (recovering
// every durable queue's pipeline), starts the TCP acceptor and the
// Prometheus metrics endpoint, and shuts down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go.bryk.io/hive/cli"
	"go.bryk.io/hive/errors"
	"go.bryk.io/hive/internal/metrics"
	"go.bryk.io/hive/internal/pool"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/session"
	"go.bryk.io/hive/vhost"
)

func main() {
	root := &cobra.Command{
		Use:   "hive-broker",
		Short: "Run the message broker server",
		RunE:  run,
	}
	if err := cli.SetupCommandParams(root, params); err != nil {
		xlog.WithCharm(xlog.CharmOptions{Prefix: "hive-broker"}).Fatalf("invalid command setup: %v", err)
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	logger := xlog.WithCharm(xlog.CharmOptions{Prefix: "hive-broker", AsJSON: cfg.LogJSON})
	logger.Infof("starting broker, listening on %s", cfg.ListenAddr)

	vh, err := vhost.Open(cfg.MetaDBPath, cfg.QueueBasedir, logger)
	if err != nil {
		return errors.Wrap(err, "open virtual host")
	}
	defer func() { _ = vh.Close() }()

	registry, err := metrics.NewRegistry()
	if err != nil {
		return errors.Wrap(err, "build metrics registry")
	}
	vh.SetMetrics(registry)

	workers := pool.New(cfg.Workers, cfg.QueueDepth)
	defer workers.Stop()

	srv := session.NewServer(vh, workers, logger, session.WithMaxConnections(cfg.MaxConnections))
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "bind listener")
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: registry.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Serve(listener)
	})
	group.Go(func() error {
		logger.Infof("metrics endpoint listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				vh.SampleMetrics()
			}
		}
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received, stopping broker")
		_ = srv.Close()
		_ = metricsSrv.Shutdown(context.Background())
		return nil
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "broker terminated unexpectedly")
	}
	return nil
}

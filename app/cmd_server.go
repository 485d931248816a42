package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/coastalwx/alert-engine/queue"
	"github.com/coastalwx/alert-engine/version"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCmdServer(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.WithField("v", version.VERSION).Info("Starting server...")
			return doServer(logger, config)
		},
	}
}

func doServer(logger logrus.FieldLogger, config *Config) error {
	e, err := buildEngine(logger, config)
	if err != nil {
		return err
	}

	var g run.Group
	{
		alertsURL, err := e.publisher.URL(context.Background(), config.Engine.AlertsQueue)
		if err != nil {
			return err
		}
		c := queue.NewConsumer(
			logger.WithField("component", "alerts-consumer"),
			e.sqsClient, alertsURL,
			func(ctx context.Context, ref queue.Ref) error {
				return e.aggregator.EnrichStored(ctx, ref.ID)
			},
			e.metrics.alertMessages)

		g.Add(func() error {
			c.Run()
			return nil
		}, func(error) {
			c.Stop()
		})
	}
	{
		zonesURL, err := e.publisher.URL(context.Background(), config.Engine.ZonesQueue)
		if err != nil {
			return err
		}
		c := queue.NewConsumer(
			logger.WithField("component", "zones-consumer"),
			e.sqsClient, zonesURL,
			func(ctx context.Context, ref queue.Ref) error {
				return e.zones.CacheGeometry(ctx, ref.ID)
			},
			e.metrics.zoneMessages)

		g.Add(func() error {
			c.Run()
			return nil
		}, func(error) {
			c.Stop()
		})
	}
	if interval := duration(config.Engine.PollInterval); interval > 0 {
		cancel := make(chan struct{})
		g.Add(func() error {
			return runEvery(logger.WithField("component", "poller"), interval, cancel, func(ctx context.Context) error {
				_, err := e.ingestor.PollActive(ctx)
				return err
			})
		}, func(error) {
			close(cancel)
		})
	}
	if interval := duration(config.Engine.SweepInterval); interval > 0 {
		cancel := make(chan struct{})
		g.Add(func() error {
			return runEvery(logger.WithField("component", "sweeper"), interval, cancel, func(ctx context.Context) error {
				_, err := e.sweeper.SweepExpired(ctx)
				return err
			})
		}, func(error) {
			close(cancel)
		})
	}
	{
		ln, err := net.Listen("tcp", ":6060")
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")

		g.Add(func() error {
			mux := http.NewServeMux()

			// Health check.
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "OK")
			})

			// Prometheus metrics.
			mux.Handle("/metrics", promhttp.Handler())

			// Alert queries.
			api := newAPIHandler(logger.WithField("component", "api"), e.queries)
			mux.Handle("/v1/alerts", api)
			mux.Handle("/v1/alerts/search", api)
			mux.Handle("/v1/alerts/export", api)

			// Profiling data.
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			mux.Handle("/debug/pprof/block", pprof.Handler("block"))
			mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
			mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
			mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))

			return http.Serve(ln, mux)
		}, func(error) {
			ln.Close()
		})
	}
	{
		cancel := make(chan struct{})

		g.Add(func() error {
			err := interrupt(cancel, e)
			logger.Warn("Shutting down...")
			return err
		}, func(error) {
			close(cancel)
		})
	}

	return g.Run()
}

// runEvery runs fn on every tick until cancel closes. Errors are logged and
// the loop keeps going: a failed pass is retried on the next tick.
func runEvery(logger logrus.FieldLogger, interval time.Duration, cancel <-chan struct{}, fn func(ctx context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return nil
		case <-ticker.C:
			if err := fn(context.Background()); err != nil {
				logger.Error("Pass failed: ", err)
			}
		}
	}
}

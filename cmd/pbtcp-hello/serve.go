package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pbtcp/internal/hello"
	"pbtcp/middleware"
	"pbtcp/server"
)

type serveCommandeer struct {
	cmd         *cobra.Command
	root        *rootCommandeer
	metricsAddr string
	rateLimit   float64
	callTimeout time.Duration
}

func newServeCommandeer(root *rootCommandeer) *serveCommandeer {
	commandeer := &serveCommandeer{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the greeter until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commandeer.run()
		},
	}

	cmd.Flags().StringVar(&commandeer.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	cmd.Flags().Float64Var(&commandeer.rateLimit, "rate-limit", 0, "Calls per second accepted, 0 for no limit")
	cmd.Flags().DurationVar(&commandeer.callTimeout, "call-timeout", 0, "Fail calls running longer than this, 0 for no limit")

	commandeer.cmd = cmd
	return commandeer
}

func (sc *serveCommandeer) run() error {
	logger := sc.root.logger
	props, err := sc.root.properties()
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithHost(props.Hostname),
		server.WithLogger(logger),
		server.WithCapabilities(server.Interface[hello.Greeter]()),
		server.WithMiddleware(middleware.Logging(logger)),
	}

	if sc.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := middleware.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithMiddleware(metrics.Middleware()))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(sc.metricsAddr, mux); err != nil {
				logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}
	if sc.rateLimit > 0 {
		opts = append(opts, server.WithMiddleware(middleware.RateLimit(sc.rateLimit, int(sc.rateLimit)+1)))
	}
	if sc.callTimeout > 0 {
		opts = append(opts, server.WithMiddleware(middleware.Timeout(sc.callTimeout)))
	}

	reg, err := sc.root.registry()
	if err != nil {
		return err
	}
	if reg != nil {
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, serviceName, server.DefaultRegistryTTL))
	}

	srv, err := server.New(&hello.Service{}, props.Port, opts...)
	if err != nil {
		return errors.Wrap(err, "create server")
	}
	if err := srv.Run(); err != nil {
		return err
	}
	logger.Info("serving", zap.String("endpoint", srv.Endpoint()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return srv.Close()
}

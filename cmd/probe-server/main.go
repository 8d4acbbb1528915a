package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	metrics "github.com/VanDung-dev/ColumnBridge/api"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/api"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/config"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/ffi"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/network"
	"github.com/docopt/docopt.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const usage = `ColumnBridge probe server.

Exports every column of the Arrow IPC batches it receives through the
Arrow C Data Interface and answers with the exported layout.

Usage:
  probe-server [--config=<file>] [--addr=<addr>]
  probe-server (-h | --help)

Options:
  -h --help          Show this screen.
  --config=<file>    YAML config file; COLBRIDGE_* environment variables override it.
  --addr=<addr>      Listen address, overriding server.address.
`

func main() {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	path, _ := opts["--config"].(string)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if addr, ok := opts["--addr"].(string); ok {
		cfg.Server.Address = addr
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("probe server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Metrics.Namespace, reg)

	exporter := ffi.NewExporter(ffi.WithObserver(m), ffi.WithLogger(logger))
	handler := api.NewArrowHandler(
		api.WithExporter(exporter),
		api.WithParallelism(cfg.Server.Parallelism),
		api.WithRecorder(m),
		api.WithHandlerLogger(logger),
	)

	if cfg.Auth.TokenGenerated() {
		logger.Info("generated auth token", zap.String("token", cfg.Auth.Token))
	}

	server := api.NewArrowServer(&api.ServerConfig{
		Auth:        cfg.APIAuth(),
		IdleTimeout: cfg.Server.IdleTimeout,
		Handler:     handler,
		Recorder:    m,
		Logger:      logger,
	})
	if err := server.StartAsync(cfg.Server.Address); err != nil {
		return err
	}
	defer server.Stop()

	if cfg.ZMQ.Enabled {
		probe := network.NewZmqProbe(cfg.ZMQ.Address, handler, logger)
		if err := probe.Start(); err != nil {
			return err
		}
		defer probe.Stop()
	}

	if cfg.Metrics.Enabled {
		ms := metrics.NewMetricsServer(cfg.Metrics.Address, reg)
		if err := ms.StartAsync(); err != nil {
			return err
		}
		defer ms.Stop()
		logger.Info("metrics server listening", zap.String("address", ms.Addr()))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down", zap.String("signal", sig.String()), zap.Int("live_exports", ffi.LiveHandles()))
	return nil
}

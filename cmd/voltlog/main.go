package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voltlog/voltlog/internal/archive"
	"github.com/voltlog/voltlog/internal/config"
	"github.com/voltlog/voltlog/internal/forward"
	"github.com/voltlog/voltlog/internal/health"
	"github.com/voltlog/voltlog/internal/input"
	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/internal/metrics"
	"github.com/voltlog/voltlog/internal/parser"
	"github.com/voltlog/voltlog/internal/recorder"
	"github.com/voltlog/voltlog/internal/reject"
	"github.com/voltlog/voltlog/internal/server"
	"github.com/voltlog/voltlog/internal/shutdown"
	"github.com/voltlog/voltlog/internal/sink"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	version    = "0.1.0"
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOrDefault(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)

	logger.Info().Str("version", version).Msg("Starting voltlog")

	collector := metrics.NewCollector()
	collector.Start()
	defer collector.Stop()

	inputs, err := buildInputs(cfg, collector, logger)
	if err != nil {
		return err
	}

	lineParser, err := parser.New(cfg.Parser)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	snk, err := buildSink(cfg)
	if err != nil {
		return err
	}

	opts := []recorder.Option{recorder.WithRetry(cfg.Retry)}

	var rejectLog *reject.Log
	if cfg.Reject != nil && cfg.Reject.Enabled {
		rejectLog, err = reject.New(*cfg.Reject)
		if err != nil {
			return fmt.Errorf("failed to create reject log: %w", err)
		}
		opts = append(opts, recorder.WithRejectLog(rejectLog))
	}

	if cfg.Archive != nil && cfg.Archive.Dir != "" {
		archiver, err := archive.New(*cfg.Archive)
		if err != nil {
			return fmt.Errorf("failed to create archiver: %w", err)
		}
		opts = append(opts, recorder.WithArchiver(archiver))
	}

	var forwarder *forward.Forwarder
	if cfg.Forward != nil && cfg.Forward.Enabled {
		forwarder, err = forward.New(*cfg.Forward, logger)
		if err != nil {
			return fmt.Errorf("failed to create forwarder: %w", err)
		}
		opts = append(opts, recorder.WithForwarder(forwarder))
	}

	rec := recorder.New(cfg.Recorder, lineParser, snk, collector, logger, opts...)

	checker := health.NewChecker(5 * time.Second)
	checker.SetStatusGauge(collector.HealthStatus)
	for _, in := range inputs {
		checker.RegisterInput(in)
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(cfg.Server, collector.Registry(), checker, rec, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	for _, in := range inputs {
		if err := in.Start(); err != nil {
			return fmt.Errorf("failed to start input %s: %w", in.Name(), err)
		}
		logger.Info().Str("input", in.Name()).Str("type", in.Type()).Msg("Input started")
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	recDone := make(chan struct{})
	go func() {
		rec.Run(runCtx, inputs...)
		close(recDone)
	}()

	mgr := shutdown.New(cfg.ShutdownTimeout, logger)
	mgr.Register("inputs", func(ctx context.Context) error {
		for _, in := range inputs {
			if err := in.Stop(); err != nil {
				logger.Warn().Err(err).Str("input", in.Name()).Msg("Input stop failed")
			}
		}
		return nil
	})
	mgr.Register("recorder", func(ctx context.Context) error {
		cancelRun()
		select {
		case <-recDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if forwarder != nil {
		mgr.Register("forwarder", func(ctx context.Context) error {
			return forwarder.Close()
		})
	}
	if rejectLog != nil {
		mgr.Register("reject-log", func(ctx context.Context) error {
			return rejectLog.Close()
		})
	}
	mgr.Register("sink", func(ctx context.Context) error {
		return snk.Close()
	})
	if srv != nil {
		mgr.Register("server", srv.Stop)
	}

	mgr.WaitForSignal()
	<-mgr.Done()
	return nil
}

func buildInputs(cfg *config.Config, collector *metrics.Collector, logger *logging.Logger) ([]input.Input, error) {
	var inputs []input.Input

	for _, ic := range cfg.Inputs.Serial {
		in := input.NewSerialInput(ic.Name, ic.SerialConfig, logger)
		in.UseMetrics(collector)
		inputs = append(inputs, in)
	}
	for _, ic := range cfg.Inputs.TCP {
		in := input.NewTCPInput(ic.Name, ic.TCPConfig, logger)
		in.UseMetrics(collector)
		inputs = append(inputs, in)
	}
	for _, ic := range cfg.Inputs.Replay {
		in := input.NewReplayInput(ic.Name, ic.ReplayConfig, logger)
		in.UseMetrics(collector)
		inputs = append(inputs, in)
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs configured")
	}
	return inputs, nil
}

func buildSink(cfg *config.Config) (sink.Sink, error) {
	fileSink, err := sink.NewFile(cfg.Sink.File)
	if err != nil {
		return nil, fmt.Errorf("failed to create file sink: %w", err)
	}

	sinks := []sink.Sink{fileSink}

	if cfg.Sink.NDJSON != "" {
		nd, err := sink.NewNDJSON(cfg.Sink.NDJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to create ndjson sink: %w", err)
		}
		sinks = append(sinks, nd)
	}
	if cfg.Sink.Stdout {
		sinks = append(sinks, sink.NewStdout())
	}

	if len(sinks) == 1 {
		return fileSink, nil
	}
	return sink.NewMulti(sinks...), nil
}

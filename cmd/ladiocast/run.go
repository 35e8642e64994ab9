package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/broadcast"
	"github.com/skypro1111/ladiocast/internal/config"
	"github.com/skypro1111/ladiocast/internal/encoder"
	"github.com/skypro1111/ladiocast/internal/events"
	"github.com/skypro1111/ladiocast/internal/metrics"
	"github.com/skypro1111/ladiocast/internal/server"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	idle   bool
	mount  string
	server string
	title  string
	dj     string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the broadcaster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.mount != "" {
				cfg.Broadcast.Mount = opts.mount
			}
			if opts.server != "" {
				cfg.Broadcast.Server = opts.server
			}
			if opts.title != "" {
				cfg.Broadcast.Title = opts.title
			}
			if opts.dj != "" {
				cfg.Broadcast.DJName = opts.dj
			}
			return run(cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.idle, "idle", false, "wait for POST /start instead of broadcasting immediately")
	cmd.Flags().StringVar(&opts.mount, "mount", "", "mount point, overrides broadcast.mount")
	cmd.Flags().StringVar(&opts.server, "server", "", "streaming server name or host:port, overrides broadcast.server")
	cmd.Flags().StringVar(&opts.title, "title", "", "stream title, overrides broadcast.title")
	cmd.Flags().StringVar(&opts.dj, "dj", "", "DJ name, overrides broadcast.dj_name")
	return cmd
}

func run(cfg *config.Config, opts runOptions) error {
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("config_path", cfgFile),
	)

	logger.Info("Configuration loaded",
		slog.Int("bitrate", cfg.Broadcast.Bitrate),
		slog.Int("channels", cfg.Broadcast.Channels),
		slog.Int("sample_rate", cfg.Broadcast.SampleRate),
		slog.String("mount", cfg.Broadcast.Mount),
		slog.String("directory_source", cfg.Directory.Source),
		slog.Bool("reconnect", cfg.Reconnect.Enabled),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	if cfg.Stream.UserAgentVersion == "" {
		cfg.Stream.UserAgentVersion = version
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server directory: %w", err)
	}

	b, err := broadcast.New(broadcast.Options{
		Devices:   &audio.GstOpener{Source: cfg.Audio.Device, Logger: logger},
		Encoders:  &encoder.LameFactory{Logger: logger},
		Directory: fetcher,
		Settings:  cfg.BroadcastSettings(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create broadcaster: %w", err)
	}
	b.SetVolumeRate(cfg.Audio.VolumeRate)

	b.Notifier().OnEvent(func(e broadcast.Event) {
		if e.IsError() {
			logger.Warn("Broadcast event", slog.String("event", e.String()), slog.Int("code", int(e)))
		} else {
			logger.Info("Broadcast event", slog.String("event", e.String()))
		}
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(reg)
	appMetrics.Attach(b)
	defer appMetrics.Detach()
	logger.Info("Prometheus metrics initialized")

	if cfg.MQTT.Enabled {
		publisher := events.NewMQTTPublisher(events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, logger)
		if err := publisher.Connect(ctx); err != nil {
			logger.Warn("MQTT broker unavailable, publishing once connected",
				slog.String("error", err.Error()),
			)
		}
		publisher.Attach(b.Notifier())
		defer publisher.Close()
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(server.HTTPServerConfig{
			Port:    cfg.HTTP.Port,
			Address: cfg.HTTP.Address,
			Version: version,
		}, logger, cfg, b, fetcher, appMetrics, reg)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	var done <-chan struct{}
	if !opts.idle {
		bcfg, err := broadcast.NewConfig(cfg.Broadcast.Params())
		if err != nil {
			return err
		}
		b.Start(bcfg)
		// Without the HTTP API nothing can restart a finished broadcast.
		if httpServer == nil {
			done = b.Done()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-done:
		logger.Info("Broadcast finished, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	b.Stop()
	select {
	case <-b.Done():
	case <-time.After(shutdownTimeout):
		logger.Error("Broadcast did not stop in time", slog.String("state", b.State().String()))
	}

	stats := b.Stats()
	logger.Info("Final broadcast statistics",
		slog.Uint64("sessions", stats.Sessions),
		slog.Uint64("samples_captured", stats.SamplesCaptured),
		slog.Uint64("bytes_encoded", stats.BytesEncoded),
		slog.Uint64("bytes_sent", stats.BytesSent),
		slog.Uint64("reconnects", stats.Reconnects),
	)

	logger.Info("Service stopped")
	return nil
}

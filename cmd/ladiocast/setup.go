package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/skypro1111/ladiocast/internal/broadcast"
	"github.com/skypro1111/ladiocast/internal/config"
	"github.com/skypro1111/ladiocast/internal/directory"
)

// loadConfig reads the configuration file. A missing file at the default
// path falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
		return cfg, cfg.Validate()
	}
	return nil, err
}

// newFetcher builds the server directory selected by directory.source
func newFetcher(cfg *config.Config, logger *slog.Logger) (directory.Fetcher, error) {
	d := cfg.Directory
	switch d.Source {
	case "http":
		return directory.NewHTTPFetcher(directory.HTTPConfig{
			URL:        d.URL,
			Timeout:    d.GetTimeoutDuration(),
			MaxRetries: d.MaxRetries,
			UserAgent:  broadcast.UserAgent(cfg.Stream.UserAgentApp, cfg.Stream.UserAgentVersion),
		})
	case "static":
		list := make(directory.Static, 0, len(d.Servers))
		for _, s := range d.Servers {
			list = append(list, directory.Server{
				Name:      s.Name,
				Host:      s.Host,
				Port:      s.Port,
				Listeners: s.Listeners,
			})
		}
		return list, nil
	case "mdns":
		return &directory.MDNSFetcher{
			Service: d.MDNSService,
			Domain:  d.MDNSDomain,
			Timeout: d.GetBrowseTimeoutDuration(),
			Logger:  logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown directory source %q", d.Source)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

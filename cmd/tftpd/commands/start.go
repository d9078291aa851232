package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nullboot/tftpd/internal/logger"
	"github.com/nullboot/tftpd/internal/telemetry"
	"github.com/nullboot/tftpd/pkg/acceptor"
	"github.com/nullboot/tftpd/pkg/audit"
	"github.com/nullboot/tftpd/pkg/config"
	"github.com/nullboot/tftpd/pkg/jail"
	"github.com/nullboot/tftpd/pkg/metrics"
	"github.com/nullboot/tftpd/pkg/negotiate"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tftpd server",
	Long: `Start the tftpd server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/tftpd/config.yaml.

Examples:
  # Start with the default configuration
  tftpd start

  # Start with a custom configuration file
  tftpd start --config /etc/tftpd/config.yaml

  # Start with environment variable overrides
  TFTPD_LOGGING_LEVEL=DEBUG tftpd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", true, "Run in the foreground")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tftpd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	j, err := jail.New(cfg.Root.Directory)
	if err != nil {
		return fmt.Errorf("failed to initialize path jail: %w", err)
	}

	var m *metrics.Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		metricsServer = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), reg)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		m = metrics.Null()
		logger.Info("metrics disabled")
	}

	rateLimitPerSecond := 0.0
	rateLimitBurst := 0.0
	if cfg.RateLimit.Enabled {
		rateLimitPerSecond = cfg.RateLimit.RequestsPerSecond
		rateLimitBurst = float64(cfg.RateLimit.Burst)
	}

	a := acceptor.New(acceptor.Config{
		ListenAddress: cfg.Listen.Address,
		Jail:          j,
		Limits: negotiate.Limits{
			DefaultBlockSize: cfg.Transfer.DefaultBlockSize,
			MaxBlockSize:     cfg.Transfer.MaxBlockSize,
			DefaultTimeout:   int(cfg.Transfer.DefaultTimeout.Seconds()),
			MaxWindowSize:    cfg.Transfer.MaxWindowSize,
		},
		MaxFileSize:         int64(cfg.Transfer.MaxFileSize),
		MaxRetries:          cfg.Transfer.MaxRetries,
		MaxTransferDuration: cfg.Transfer.MaxTransferDuration,
		RateLimitPerSecond:  rateLimitPerSecond,
		RateLimitBurst:      rateLimitBurst,
		Sink:                audit.NewLogSink(),
		Metrics:             m,
	})

	logger.Info("tftpd starting", "listen", cfg.Listen.Address, "root", cfg.Root.Directory)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- a.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if metricsServer != nil {
			_ = metricsServer.Shutdown(context.Background())
		}
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}

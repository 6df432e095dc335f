// Codematrixd is the codematrix daemon. It clones repositories on request,
// indexes their source into an in-memory vector index, and answers
// questions about the code over HTTP.
//
// Configuration is read from a YAML file and CODEMATRIX_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (~/.config/codematrix/config.yaml if present)
//	codematrixd
//
//	# Use an explicit config file
//	codematrixd -config ./codematrix.yaml
//
//	# Configure via environment
//	CODEMATRIX_SERVER_PORT=9000 GROQ_API_KEY=... codematrixd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
	"github.com/fyrsmithlabs/codematrix/internal/logging"
	"github.com/fyrsmithlabs/codematrix/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/codematrix/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion(os.Stdout)
			os.Exit(0)
		case "init":
			initFlags := flag.NewFlagSet("init", flag.ExitOnError)
			force := initFlags.Bool("force", false, "re-download even if the ONNX runtime exists")
			_ = initFlags.Parse(args[1:])
			if err := initCommand(context.Background(), *configPath, *force); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  codematrixd [-config path]   Start the codematrix daemon\n")
			fmt.Fprintf(os.Stderr, "  codematrixd init [-force]    Download the ONNX runtime for local embeddings\n")
			fmt.Fprintf(os.Stderr, "  codematrixd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "codematrixd by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Load and validate configuration
//  2. Initialize telemetry, then the logger bridged to it
//  3. Build the service graph (tracker, registry, pipeline, engine)
//  4. Start the HTTP server and the config watcher
//  5. On cancellation: stop accepting requests, cancel runs, flush telemetry
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()
	zl := logger.Underlying()

	zl.Info("Starting codematrixd",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.Bool("telemetry", tel.IsEnabled()),
		zap.Any("providers", cfg.ConfiguredProviders()))

	svc, err := initServices(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svc.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.server.Start()
	}()

	if path := watchPath(configPath); path != "" {
		go func() {
			err := config.Watch(ctx, path, zl, func(c *config.Config) {
				applyReload(logger, c)
			})
			if err != nil {
				zl.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		zl.Info("Received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			zl.Error("http server failed", zap.Error(serveErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := svc.server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := svc.pipeline.Shutdown(shutdownCtx); err != nil {
		zl.Warn("background runs did not finish before shutdown", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		zl.Warn("telemetry shutdown failed", zap.Error(err))
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

// initCommand runs "codematrixd init" with the daemon's configuration and
// logger.
func initCommand(ctx context.Context, configPath string, force bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := initLogger(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	return runInit(ctx, cfg, force, logger.Underlying())
}

func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Fields = map[string]string{"service": "codematrixd", "version": version}
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// applyReload applies the settings that can change without a restart.
// Only the log level is live; other changes are logged and take effect on
// the next start.
func applyReload(logger *logging.Logger, cfg *config.Config) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		logger.Underlying().Warn("ignoring invalid logging settings", zap.Error(err))
		return
	}
	if logCfg.Level != logger.Level() {
		logger.SetLevel(logCfg.Level)
		logger.Underlying().Info("log level changed", zap.Stringer("level", logCfg.Level))
	}
}

// watchPath returns the config file to watch, or "" when there is none.
func watchPath(explicit string) string {
	path := explicit
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return ""
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}


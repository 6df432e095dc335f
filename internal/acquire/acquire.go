// Package acquire fetches remote repositories onto local disk. Each fetch
// runs through an ordered list of clone strategies, every attempt bounded by
// its own timeout, and fails only when all of them have failed.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

func tracer() trace.Tracer { return otel.Tracer("codematrix.acquire") }

// Strategy names, in the order they are tried.
const (
	StrategyShallow   = "shallow"
	StrategyRelaxed   = "relaxed"
	StrategyAlternate = "alternate"
)

// Config controls where repositories land and how long attempts may take.
type Config struct {
	// ReposDir holds the deterministic <name> checkouts.
	ReposDir string

	// ScratchDir receives fallback checkouts when ReposDir is unusable.
	ScratchDir string

	// AttemptTimeout bounds each strategy.
	// Default: 60 seconds
	AttemptTimeout time.Duration

	// CleanupRetryDelay is the pause before retrying a failed removal.
	// Default: 1 second
	CleanupRetryDelay time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 60 * time.Second
	}
	if c.CleanupRetryDelay <= 0 {
		c.CleanupRetryDelay = time.Second
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(os.TempDir(), "codematrix")
	}
}

// FromSettings converts the loaded configuration section.
func FromSettings(s config.RepositoryConfig) Config {
	return Config{
		ReposDir:          s.ReposDir,
		ScratchDir:        s.ScratchDir,
		AttemptTimeout:    s.AttemptTimeout.Duration(),
		CleanupRetryDelay: s.CleanupRetryDelay.Duration(),
	}
}

type strategy struct {
	name string
	opts CloneOptions
	// alternate clones into a fresh scratch path instead of ReposDir.
	alternate bool
}

var strategies = []strategy{
	{name: StrategyShallow, opts: CloneOptions{Depth: 1}},
	{name: StrategyRelaxed, opts: CloneOptions{Depth: 1, SingleBranch: true, NoTags: true}},
	{name: StrategyAlternate, opts: CloneOptions{Depth: 1, SingleBranch: true, NoTags: true}, alternate: true},
}

// Acquirer fetches repositories with fallback strategies.
type Acquirer struct {
	config    Config
	fetcher   Fetcher
	logger    *zap.Logger
	removeAll func(string) error
	now       func() time.Time
}

// New creates an Acquirer.
func New(cfg Config, fetcher Fetcher, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Acquirer{
		config:    cfg,
		fetcher:   fetcher,
		logger:    logger,
		removeAll: os.RemoveAll,
		now:       time.Now,
	}
}

// Acquire fetches sourceURL and returns the local path it was written to.
// Failures are returned as *Error.
func (a *Acquirer) Acquire(ctx context.Context, sourceURL string) (localPath string, err error) {
	ctx, span := tracer().Start(ctx, "acquire.Acquire")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "acquisition failed")
		}
	}()

	src, err := ParseSource(sourceURL)
	if err != nil {
		return "", &Error{URL: sourceURL, Cause: err}
	}
	span.SetAttributes(attribute.String("repo.name", src.Name))

	target := filepath.Join(a.config.ReposDir, src.Name)
	a.clean(ctx, target)

	acqErr := &Error{URL: src.URL}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			acqErr.Cause = err
			return "", acqErr
		}

		dest := target
		if s.alternate {
			dest = filepath.Join(a.config.ScratchDir, src.Name+"_"+strconv.FormatInt(a.now().UnixNano(), 10))
		} else if s.name != strategies[0].name {
			a.clean(ctx, dest)
		}

		err := a.attempt(ctx, s, src.URL, dest)
		if err == nil {
			span.AddEvent("strategy.succeeded", trace.WithAttributes(
				attribute.String("strategy", s.name),
				attribute.String("path", dest),
			))
			a.logger.Info("repository acquired",
				zap.String("url", src.URL),
				zap.String("strategy", s.name),
				zap.String("path", dest))
			return dest, nil
		}

		span.AddEvent("strategy.failed", trace.WithAttributes(
			attribute.String("strategy", s.name),
			attribute.String("error", err.Error()),
		))
		a.logger.Warn("clone strategy failed",
			zap.String("url", src.URL),
			zap.String("strategy", s.name),
			zap.Error(err))
		acqErr.Attempts = append(acqErr.Attempts, Attempt{Strategy: s.name, Path: dest, Err: err})
	}

	return "", acqErr
}

func (a *Acquirer) attempt(ctx context.Context, s strategy, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dest, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, a.config.AttemptTimeout)
	defer cancel()

	start := time.Now()
	err := a.fetcher.Fetch(attemptCtx, url, dest, s.opts)
	AttemptDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

	if err == nil {
		AttemptsTotal.WithLabelValues(s.name, "success").Inc()
		return nil
	}
	AttemptsTotal.WithLabelValues(s.name, "error").Inc()
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("timed out after %s: %w", a.config.AttemptTimeout, err)
	}
	return err
}

// clean removes path if present, retrying once after a short pause. A path
// that cannot be removed is logged and left for the next strategy to avoid.
func (a *Acquirer) clean(ctx context.Context, path string) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return
	}

	err := a.removeAll(path)
	if err == nil {
		return
	}
	a.logger.Debug("removal failed, retrying", zap.String("path", path), zap.Error(err))

	select {
	case <-time.After(a.config.CleanupRetryDelay):
	case <-ctx.Done():
		return
	}
	if err := a.removeAll(path); err != nil {
		a.logger.Warn("could not remove existing checkout", zap.String("path", path), zap.Error(err))
	}
}

//go:build cgo

package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
	"github.com/fyrsmithlabs/codematrix/internal/embeddings"
)

// runInit installs the ONNX runtime configured for the fastembed provider
// so the daemon does not download it on first start.
func runInit(ctx context.Context, cfg *config.Config, force bool, logger *zap.Logger) error {
	rt, err := embeddings.NewRuntime(embeddings.RuntimeConfigFromSettings(cfg.Embeddings), logger.Named("onnx"))
	if err != nil {
		return fmt.Errorf("configuring onnx runtime: %w", err)
	}

	if !force {
		if path := rt.LibraryPath(); path != "" {
			logger.Info("onnx runtime already installed; use -force to re-download", zap.String("path", path))
			return nil
		}
	}

	if _, err := rt.Install(ctx); err != nil {
		return fmt.Errorf("installing onnx runtime %s: %w", rt.Version(), err)
	}
	return nil
}

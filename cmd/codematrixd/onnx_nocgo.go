//go:build !cgo

package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

func runInit(context.Context, *config.Config, bool, *zap.Logger) error {
	return errors.New("local embeddings require a cgo build; use the openai or tei provider")
}

package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"constellation/internal/logging"
	"constellation/internal/services"
)

// Func is the body of one pipeline stage.
type Func func(ctx context.Context, logger *slog.Logger) error

// Options controls stage execution logging.
type Options struct {
	Logger   *slog.Logger
	Stage    string
	Language string
	// Attrs are appended to the "stage started" record.
	Attrs []slog.Attr
}

// Run executes fn with stage and language annotations on the context and
// emits the standard started/completed/failed records.
func Run(ctx context.Context, opts Options, fn Func) error {
	if fn == nil {
		return fmt.Errorf("stage function unavailable: %s", opts.Stage)
	}
	stageCtx := services.WithStage(ctx, opts.Stage)
	stageCtx = services.WithLanguage(stageCtx, opts.Language)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	startArgs := logging.Args(append([]slog.Attr{logging.String(logging.FieldEventType, "stage_start")}, opts.Attrs...)...)
	stageLogger.Info("stage started", startArgs...)

	started := time.Now()
	err := fn(stageCtx, stageLogger)
	elapsed := time.Since(started)
	if err != nil {
		return handleFailure(stageLogger, opts.Stage, err, elapsed)
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", elapsed),
	)
	return nil
}

func handleFailure(logger *slog.Logger, stage string, stageErr error, elapsed time.Duration) error {
	if errors.Is(stageErr, context.Canceled) {
		logger.Info(
			"stage canceled",
			logging.String(logging.FieldEventType, "stage_canceled"),
			logging.Duration("stage_duration", elapsed),
		)
		return stageErr
	}
	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorHint, hintFor(stageErr)),
		logging.String(logging.FieldImpact, impactFor(stage, stageErr)),
		logging.String("reason", services.Kind(stageErr)),
		logging.Duration("stage_duration", elapsed),
		logging.Error(stageErr),
	)
	return stageErr
}

func hintFor(err error) string {
	switch services.Kind(err) {
	case "configuration":
		return "check API keys and model names in the config file"
	case "budget_exceeded":
		return "raise budget.max_episode_usd or budget.max_daily_usd, or choose a cheaper cost tier"
	case "store_unavailable":
		return "check the cache database path and disk space, then run constellation doctor"
	case "fingerprint_collision":
		return "purge the cache entry with constellation cache purge"
	case "rate_limited", "timeout", "transient":
		return "provider was unavailable; rerun to resume from cached stages"
	default:
		return "inspect the run log for the provider response"
	}
}

func impactFor(stage string, err error) string {
	if services.IsFatal(err) {
		return "run aborted"
	}
	switch strings.TrimSpace(stage) {
	case "research", "dialogue":
		return "no episode produced"
	default:
		return "language branch skipped"
	}
}

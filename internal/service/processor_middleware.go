package service

import (
	"context"
	"log/slog"
	"time"
)

// ProcessorFunc adapts a function to TransactionProcessor.
type ProcessorFunc func(ctx context.Context, cmd *TransactionCommand) (*TransactionResult, error)

func (f ProcessorFunc) Process(ctx context.Context, cmd *TransactionCommand) (*TransactionResult, error) {
	return f(ctx, cmd)
}

// WithTimeout bounds every call to next. A non-positive timeout disables the bound.
func WithTimeout(next TransactionProcessor, timeout time.Duration) TransactionProcessor {
	if timeout <= 0 {
		return next
	}
	return ProcessorFunc(func(ctx context.Context, cmd *TransactionCommand) (*TransactionResult, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return next.Process(ctx, cmd)
	})
}

// WithLogging records the duration and outcome of every call to next.
func WithLogging(next TransactionProcessor, logger *slog.Logger) TransactionProcessor {
	return ProcessorFunc(func(ctx context.Context, cmd *TransactionCommand) (*TransactionResult, error) {
		start := time.Now()
		result, err := next.Process(ctx, cmd)

		attrs := []any{
			"reference_id", cmd.ReferenceID,
			"operation", cmd.Operation,
			"duration", time.Since(start),
		}
		switch {
		case err != nil:
			logger.Warn("transaction request errored", append(attrs, "error", err)...)
		default:
			logger.Info("transaction request completed", append(attrs, "transaction_id", result.TransactionID, "status", result.Status)...)
		}
		return result, err
	})
}

package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/pulse-os/pulse-observer/internal/policy"
	"github.com/pulse-os/pulse-observer/internal/storage"
	"go.uber.org/zap"
)

// Error taxonomy. Policy denials arrive as *policy.DeniedError and match
// the first three sentinels with errors.Is.
var (
	ErrUnknownTable       = policy.ErrUnknownTable
	ErrColumnPolicy       = policy.ErrColumnPolicy
	ErrMissingUserScope   = policy.ErrMissingUserScope
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
	ErrCancelled          = errors.New("cancelled")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// StorageError reports a failed storage call with its original cause.
// It matches ErrStorageUnavailable and unwraps to the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage unavailable: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// invalidArgf builds an ErrInvalidArgument with a message.
func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// storageErr classifies an error returned by the backend.
func (g *Gateway) storageErr(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		g.logger.Info("storage call cancelled", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w: %w", op, ErrCancelled, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		g.logger.Error("storage call failed", zap.String("op", op), zap.Error(err))
		return &StorageError{Op: op, Err: err}
	}
}

// checkCtx reports ErrCancelled if ctx is already done.
func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrCancelled, err)
	}
	return nil
}

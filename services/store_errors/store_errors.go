// Package store_errors translates repository sentinels into the caller-facing
// error taxonomy.
package store_errors

import (
	"errors"
	"fmt"

	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/utils"
)

// Map converts err for an operation on entity ("Booking", "Professional").
// Errors that already carry a kind pass through untouched.
func Map(err error, entity string) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &utils.AppError{Kind: utils.ErrNotFound, Message: entity + " not found", Err: err}
	case errors.Is(err, repository.ErrSerialization):
		return utils.NewRetryableError("Concurrent update, please retry", err)
	case errors.Is(err, repository.ErrDuplicate):
		return &utils.AppError{Kind: utils.ErrConflict, Message: entity + " already exists", Err: err}
	}
	return fmt.Errorf("%s store error: %w", entity, err)
}

package store_errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/utils"
)

func TestMap(t *testing.T) {
	assert.NoError(t, Map(nil, "Booking"))

	nf := Map(fmt.Errorf("lookup: %w", repository.ErrNotFound), "Booking")
	assert.ErrorIs(t, nf, utils.ErrNotFound)
	assert.Equal(t, "Booking not found", utils.Message(nf))

	assert.ErrorIs(t, Map(repository.ErrSerialization, "Booking"), utils.ErrRetryable)
	assert.ErrorIs(t, Map(repository.ErrDuplicate, "Professional"), utils.ErrConflict)

	conflict := utils.NewConflictError("Booking already processed")
	assert.Same(t, conflict, Map(conflict, "Booking"))

	plain := Map(errors.New("disk full"), "Booking")
	assert.False(t, errors.Is(plain, utils.ErrNotFound))
	assert.Contains(t, plain.Error(), "disk full")
}

package utils

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerificationCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateVerificationCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestAppErrorKinds(t *testing.T) {
	err := fmt.Errorf("accept: %w", NewConflictError("Booking already processed"))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "Booking already processed", Message(err))

	cause := errors.New("40001")
	retry := NewRetryableError("transaction aborted", cause)
	assert.True(t, errors.Is(retry, ErrRetryable))
	assert.True(t, errors.Is(retry, cause))
	assert.Equal(t, "transaction aborted: 40001", retry.Error())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewValidationError("bad"), 400},
		{NewNotFoundError("Booking not found"), 404},
		{NewConflictError(MsgAlreadyProcessed), 400},
		{NewConflictError(MsgInvalidCode), 400},
		{NewConflictError("Professional not available"), 409},
		{NewForbiddenError("no"), 403},
		{ErrUserIDNotFound, 401},
		{NewRetryableError("Concurrent update, please retry", errors.New("40001")), 503},
		{NewTimeoutError("Request accepted, processing continues", nil), 202},
		{errors.New("boom"), 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

package booking_models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	cases := []struct {
		from Status
		ev   Event
		want Status
		ok   bool
	}{
		{StatusPending, EventAccept, StatusAccepted, true},
		{StatusPending, EventReject, StatusRejected, true},
		{StatusPending, EventCancel, StatusCancelled, true},
		{StatusPending, EventComplete, "", false},
		{StatusPending, EventStart, "", false},
		{StatusAccepted, EventStart, StatusInProgress, true},
		{StatusAccepted, EventComplete, StatusCompleted, true},
		{StatusAccepted, EventAccept, "", false},
		{StatusAssigned, EventComplete, StatusCompleted, true},
		{StatusInProgress, EventComplete, StatusCompleted, true},
		{StatusInProgress, EventCancel, "", false},
		{StatusCompleted, EventComplete, "", false},
		{StatusCancelled, EventAccept, "", false},
		{StatusRejected, EventCancel, "", false},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.ev)
		if tc.ok {
			require.NoError(t, err, "%s on %s", tc.ev, tc.from)
			assert.Equal(t, tc.want, got)
		} else {
			assert.True(t, errors.Is(err, ErrInvalidTransition), "%s on %s", tc.ev, tc.from)
		}
	}
}

func TestAllowedFrom(t *testing.T) {
	assert.Equal(t, []Status{StatusAccepted, StatusAssigned, StatusInProgress}, AllowedFrom(EventComplete))
	assert.Equal(t, []Status{StatusPending}, AllowedFrom(EventAccept))
	assert.Equal(t, []Status{StatusPending, StatusAccepted, StatusAssigned}, AllowedFrom(EventCancel))
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRejected} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsActive(), s)
	}
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusInProgress.IsActive())
}

func TestCloneIsDeep(t *testing.T) {
	b, err := NewBooking([16]byte{1}, [16]byte{2}, pointAt(1, 2), fixedTime(), 500, "834219", false)
	require.NoError(t, err)
	eta := 4
	b.Tracking.ETAMinutes = &eta
	c := b.Clone()
	*c.Tracking.ETAMinutes = 9
	c.ReschedulingHistory = append(c.ReschedulingHistory, RescheduleEntry{Reason: "x"})
	assert.Equal(t, 4, *b.Tracking.ETAMinutes)
	assert.Empty(t, b.ReschedulingHistory)
	assert.Equal(t, PriorityNormal, b.Priority)
}

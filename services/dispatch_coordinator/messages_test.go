package dispatch_coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/dispatch/badwords"
	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/services/realtime_service"
	"github.com/joy095/dispatch/utils"
)

type sent struct {
	room    string
	event   string
	payload any
}

type recordingBus struct {
	mu   sync.Mutex
	fail error
	sent []sent
}

func (b *recordingBus) Emit(_ context.Context, room, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.sent = append(b.sent, sent{room: room, event: event, payload: payload})
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) messages() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, s := range b.sent {
		if s.event == realtime_service.EventNewMessage {
			out = append(out, s)
		}
	}
	return out
}

func withBus(bus realtime_service.Bus) option {
	return func(d *Deps, _ *config.MatchingSettings) { d.Bus = bus }
}

func withFilter(words ...string) option {
	return func(d *Deps, _ *config.MatchingSettings) {
		f := badwords.NewFilter()
		for _, w := range words {
			_ = f.Add(w)
		}
		d.Filter = f
	}
}

func TestSendMessageRelaysBetweenParties(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	f := newFixture(t, withBus(bus))
	p := f.addPro(t, north(1))
	b := f.request(t)
	_, err := f.c.AcceptBooking(ctx, b.ID, p.ID)
	require.NoError(t, err)

	msg, err := f.c.SendMessage(ctx, b.ID, f.customer, "  gate code is 4411  ")
	require.NoError(t, err)
	assert.Equal(t, p.ID, msg.RecipientID)
	assert.Equal(t, "gate code is 4411", msg.Message)

	_, err = f.c.SendMessage(ctx, b.ID, asPro(p), "five minutes away")
	require.NoError(t, err)

	got := bus.messages()
	require.Len(t, got, 2)
	assert.Equal(t, realtime_service.UserRoom(p.ID), got[0].room)
	assert.Equal(t, realtime_service.UserRoom(f.customer.ID), got[1].room)
	relayed, ok := got[1].payload.(*Message)
	require.True(t, ok)
	assert.Equal(t, b.ID, relayed.BookingID)
	assert.Equal(t, p.ID, relayed.SenderID)
}

func TestSendMessageRejections(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	f := newFixture(t, withBus(bus), withFilter("scoundrel"))
	p := f.addPro(t, north(60))
	b := f.request(t)

	_, err := f.c.SendMessage(ctx, b.ID, f.customer, "hello")
	assert.ErrorIs(t, err, utils.ErrConflict, "nobody assigned yet")
	assert.Equal(t, MsgNoRecipient, utils.Message(err))

	_, err = f.c.SendMessage(ctx, b.ID, f.customer, "   ")
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = f.c.SendMessage(ctx, b.ID, f.customer, strings.Repeat("a", MaxMessageLength+1))
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = f.c.SendMessage(ctx, b.ID, f.customer, "you Scoundrel")
	assert.ErrorIs(t, err, utils.ErrValidation)
	assert.Equal(t, MsgInappropriateMessage, utils.Message(err))

	_, err = f.c.SendMessage(ctx, b.ID, asPro(p), "hi")
	assert.ErrorIs(t, err, utils.ErrNotFound, "outsiders cannot see the booking")

	_, err = f.c.SendMessage(ctx, uuid.New(), f.customer, "hi")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	assert.Empty(t, bus.messages())
}

func TestSendMessageSurfacesBusFailure(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	f := newFixture(t, withBus(bus))
	p := f.addPro(t, north(1))
	b := f.request(t)
	_, err := f.c.AcceptBooking(ctx, b.ID, p.ID)
	require.NoError(t, err)

	bus.mu.Lock()
	bus.fail = errors.New("broker down")
	bus.mu.Unlock()
	_, err = f.c.SendMessage(ctx, b.ID, f.customer, "hello")
	assert.ErrorIs(t, err, utils.ErrRetryable)
}

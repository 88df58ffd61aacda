package realtime_service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/dispatch/logger"
)

func init() {
	logger.Silence()
}

type mockToken struct {
	err      error
	finished bool
}

func (t *mockToken) Wait() bool                       { return t.finished }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return t.finished }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{}            { return make(chan struct{}) }

type mockClient struct {
	topics       []string
	payloads     [][]byte
	qos          byte
	token        *mockToken
	disconnected bool
}

func (m *mockClient) IsConnected() bool  { return true }
func (m *mockClient) Disconnect(_ uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, payload.([]byte))
	m.qos = qos
	return m.token
}

func TestMQTTBusPublishesEnvelope(t *testing.T) {
	mc := &mockClient{token: &mockToken{finished: true}}
	bus := &MQTTBus{client: mc}
	id := uuid.New()

	err := bus.Emit(context.Background(), BookingRoom(id), EventBookingStatus, map[string]string{"status": "accepted"})
	require.NoError(t, err)
	require.Len(t, mc.topics, 1)
	assert.Equal(t, "dispatch/rooms/booking_"+id.String()+"/booking_status", mc.topics[0])
	assert.Equal(t, byte(1), mc.qos)

	var env struct {
		Room    string            `json:"room"`
		Event   string            `json:"event"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(mc.payloads[0], &env))
	assert.Equal(t, BookingRoom(id), env.Room)
	assert.Equal(t, "accepted", env.Payload["status"])

	require.NoError(t, bus.Close())
	assert.True(t, mc.disconnected)
}

func TestMQTTBusReportsFailures(t *testing.T) {
	bus := &MQTTBus{client: &mockClient{token: &mockToken{finished: false}}}
	assert.Error(t, bus.Emit(context.Background(), "user_x", EventBookingStatus, nil))

	boom := errors.New("not connected")
	bus = &MQTTBus{client: &mockClient{token: &mockToken{finished: true, err: boom}}}
	assert.ErrorIs(t, bus.Emit(context.Background(), "user_x", EventBookingStatus, nil), boom)
}

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisBusPublishesToRoomChannel(t *testing.T) {
	pub := &fakePublisher{}
	bus := &RedisBus{client: pub}
	id := uuid.New()

	require.NoError(t, bus.Emit(context.Background(), UserRoom(id), EventProfessionalLocation, map[string]float64{"lat": 22.5}))
	assert.Equal(t, "realtime:user_"+id.String(), pub.channel)
	assert.Contains(t, string(pub.message), `"event":"professional_location"`)

	pub.err = errors.New("redis down")
	assert.Error(t, bus.Emit(context.Background(), UserRoom(id), EventProfessionalLocation, nil))
}

func TestRoomsMembershipExpires(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRooms(time.Minute)
	r.now = func() time.Time { return clock }

	r.Join("booking_1", "pro-a")
	r.Join("booking_1", "cust-b")
	r.Join("user_b", "cust-b")
	assert.Equal(t, []string{"cust-b", "pro-a"}, r.Members("booking_1"))

	clock = clock.Add(30 * time.Second)
	r.Join("booking_1", "pro-a") // refresh

	clock = clock.Add(45 * time.Second)
	assert.Equal(t, []string{"pro-a"}, r.Members("booking_1"))
	assert.Equal(t, 2, r.Sweep())
	assert.Empty(t, r.Members("user_b"))
	assert.Equal(t, 1, r.LeaveAll("pro-a"))
	assert.Empty(t, r.Members("booking_1"))
}

func TestRoomsLeave(t *testing.T) {
	r := NewRooms(0)
	r.Join("booking_1", "a")
	r.Join("booking_2", "a")
	r.Leave("booking_1", "a")
	assert.Empty(t, r.Members("booking_1"))
	assert.Equal(t, []string{"a"}, r.Members("booking_2"))
	assert.Equal(t, 1, r.LeaveAll("a"))
	assert.Zero(t, r.LeaveAll("a"))
}

func TestRoomsRunStops(t *testing.T) {
	r := NewRooms(time.Millisecond)
	r.Join("booking_1", "a")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 2*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(r.Members("booking_1")) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

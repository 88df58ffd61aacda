// services/realtime_service
package realtime_service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"

	"github.com/joy095/dispatch/logger"
)

// Event names pushed to clients.
const (
	EventBookingStatus        = "booking_status"
	EventProfessionalLocation = "professional_location"
	EventNewMessage           = "new_message"
)

// BookingRoom and UserRoom name the rooms clients subscribe to.
func BookingRoom(id fmt.Stringer) string { return "booking_" + id.String() }
func UserRoom(id fmt.Stringer) string    { return "user_" + id.String() }

// Bus fans events out to the clients connected to a room.
type Bus interface {
	Emit(ctx context.Context, room, event string, payload any) error
	Close() error
}

// Envelope is what subscribers receive.
type Envelope struct {
	Room      string    `json:"room"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emittedAt"`
}

func encode(room, event string, payload any) ([]byte, error) {
	body, err := json.Marshal(Envelope{Room: room, Event: event, Payload: payload, EmittedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", event, err)
	}
	return body, nil
}

// NopBus drops every event.
type NopBus struct{}

func (NopBus) Emit(context.Context, string, string, any) error { return nil }
func (NopBus) Close() error                                    { return nil }

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBus publishes envelopes on "realtime:<room>" for the socket gateway.
type RedisBus struct {
	client redisPublisher
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func RedisChannel(room string) string { return "realtime:" + room }

func (b *RedisBus) Emit(ctx context.Context, room, event string, payload any) error {
	body, err := encode(room, event, payload)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, RedisChannel(room), body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", room, err)
	}
	return nil
}

// Close is a no-op; the redis client is shared and closed by its owner.
func (b *RedisBus) Close() error { return nil }

// MQTTClient is the part of the paho client the bus uses.
type MQTTClient interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

const mqttPublishTimeout = 5 * time.Second

// MQTTBus publishes to "dispatch/rooms/<room>/<event>" with QoS 1.
type MQTTBus struct {
	client MQTTClient
}

func NewMQTTBus(broker, clientID string) (*MQTTBus, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WarnLogger.Warnf("MQTT connection lost: %v", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, token.Error())
	}
	logger.InfoLogger.Infof("Connected to MQTT broker %s", broker)
	return &MQTTBus{client: client}, nil
}

func MQTTTopic(room, event string) string {
	return "dispatch/rooms/" + room + "/" + event
}

func (b *MQTTBus) Emit(_ context.Context, room, event string, payload any) error {
	body, err := encode(room, event, payload)
	if err != nil {
		return err
	}
	token := b.client.Publish(MQTTTopic(room, event), 1, false, body)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", room)
	}
	return token.Error()
}

func (b *MQTTBus) Close() error {
	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	return nil
}

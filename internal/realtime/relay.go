package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRelayChannel is the Redis channel used when none is configured.
const DefaultRelayChannel = "taskboard:live"

// Relay fans live messages out across instances through Redis pub/sub. Every
// instance subscribes with Run and feeds the messages into its local registry.
type Relay struct {
	client  redis.UniversalClient
	channel string
	local   *Registry
	log     *zap.Logger
}

type relayEnvelope struct {
	UserID    string  `json:"user_id,omitempty"`
	Broadcast bool    `json:"broadcast,omitempty"`
	Message   Message `json:"message"`
}

// NewRelay constructs a relay publishing on channel and delivering into local.
func NewRelay(client redis.UniversalClient, channel string, local *Registry) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{
		client:  client,
		channel: channel,
		local:   local,
		log:     local.log.With(zap.String("relay_channel", channel)),
	}
}

// SendToUser publishes msg for userID. The result is the number of instances that
// received the publication. When publishing fails the message is delivered to
// the local registry instead and the local delivery count is returned.
func (r *Relay) SendToUser(ctx context.Context, userID string, msg Message) int {
	return r.publish(ctx, relayEnvelope{UserID: userID, Message: msg})
}

// Broadcast publishes msg for every connected user on every instance.
func (r *Relay) Broadcast(ctx context.Context, msg Message) int {
	return r.publish(ctx, relayEnvelope{Broadcast: true, Message: msg})
}

func (r *Relay) publish(ctx context.Context, env relayEnvelope) int {
	payload, err := encodeEnvelope(env)
	if err == nil {
		var receivers int64
		receivers, err = r.client.Publish(ctx, r.channel, payload).Result()
		if err == nil {
			return int(receivers)
		}
	}

	r.log.Warn("relay publish failed, delivering locally", zap.String("user_id", env.UserID), zap.Error(err))
	return r.deliver(ctx, env)
}

// Run subscribes to the relay channel and delivers messages until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe %s: %w", r.channel, err)
	}
	r.log.Info("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, payload string) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		r.log.Warn("discarding malformed relay payload", zap.Error(err))
		return
	}
	r.deliver(ctx, env)
}

func (r *Relay) deliver(ctx context.Context, env relayEnvelope) int {
	if env.Broadcast {
		return r.local.Broadcast(ctx, env.Message)
	}
	return r.local.SendToUser(ctx, env.UserID, env.Message)
}

func encodeEnvelope(env relayEnvelope) (string, error) {
	if !env.Broadcast && env.UserID == "" {
		return "", errors.New("relay envelope requires a user id or broadcast flag")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode relay envelope: %w", err)
	}
	return string(data), nil
}

func decodeEnvelope(payload string) (relayEnvelope, error) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return relayEnvelope{}, fmt.Errorf("decode relay envelope: %w", err)
	}
	if !env.Broadcast && env.UserID == "" {
		return relayEnvelope{}, errors.New("relay envelope missing user id")
	}
	if env.Message.Type == "" {
		return relayEnvelope{}, errors.New("relay envelope missing message type")
	}
	return env, nil
}

// Package relay fans call events out to every API instance over Redis Pub/Sub,
// so an astrologer receives events no matter which instance holds the stream.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultPoolSize    = 10

	targetAstrologer = "astrologer"
	targetGlobal     = "global"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewConnection opens a Redis client and checks it with PING.
func (c Config) NewConnection(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: defaultDialTimeout,
		PoolSize:    defaultPoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Local is the in-process hub events are finally written to.
type Local interface {
	Send(astrologerID string, ev model.Event) bool
	BroadcastGlobal(ev model.Event) int
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type envelope struct {
	Origin       string      `json:"origin"`
	Target       string      `json:"target"`
	AstrologerID string      `json:"astrologerId,omitempty"`
	Event        model.Event `json:"event"`
}

// Relay delivers to the local hub right away and publishes the event for the
// other instances. Messages published by this instance are ignored on receipt.
type Relay struct {
	client  *redis.Client
	pub     publisher
	channel string
	origin  string
	local   Local
	log     *zap.Logger
}

// New creates a relay over an open client.
func New(client *redis.Client, channel string, local Local, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		client:  client,
		pub:     client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		log:     log,
	}
}

// NotifyAstrologer returns whether this instance delivered the event.
func (r *Relay) NotifyAstrologer(ctx context.Context, astrologerID string, ev model.Event) bool {
	ok := r.local.Send(astrologerID, ev)
	r.publish(ctx, envelope{Target: targetAstrologer, AstrologerID: astrologerID, Event: ev})
	return ok
}

// NotifyGlobal returns the number of local global listeners reached.
func (r *Relay) NotifyGlobal(ctx context.Context, ev model.Event) int {
	n := r.local.BroadcastGlobal(ev)
	r.publish(ctx, envelope{Target: targetGlobal, Event: ev})
	return n
}

func (r *Relay) publish(ctx context.Context, env envelope) {
	env.Origin = r.origin
	body, err := json.Marshal(env)
	if err != nil {
		r.log.Warn("encode relay envelope failed", zap.Error(err))
		return
	}
	if err := r.pub.Publish(ctx, r.channel, body).Err(); err != nil {
		r.log.Warn("redis publish failed",
			zap.String("channel", r.channel),
			zap.String("type", string(env.Event.Type)),
			zap.Error(err))
	}
}

// Run subscribes to the channel and delivers foreign events to the local hub
// until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.log.Info("redis relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

func (r *Relay) handle(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.log.Warn("drop malformed relay message", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	switch env.Target {
	case targetAstrologer:
		r.local.Send(env.AstrologerID, env.Event)
	case targetGlobal:
		r.local.BroadcastGlobal(env.Event)
	default:
		r.log.Warn("drop relay message with unknown target", zap.String("target", env.Target))
	}
}

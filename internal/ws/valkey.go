package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/valkey-io/valkey-go"
)

// ValkeyBus relays scene events through Valkey pub/sub so every gateway
// process sees every post. Publish sends to Valkey; Run feeds what Valkey
// delivers into the local hub.
type ValkeyBus struct {
	client valkey.Client
	prefix string
	hub    *Hub
}

// NewValkeyBus connects to the Valkey server at addr.
func NewValkeyBus(addr, prefix string, hub *Hub) (*ValkeyBus, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey at %s: %w", addr, err)
	}
	return &ValkeyBus{client: client, prefix: prefix, hub: hub}, nil
}

// Publish sends data to the scene's channel. Each call waits for the server
// to accept the message, so calls for one scene keep their order.
func (b *ValkeyBus) Publish(ctx context.Context, sceneID string, data []byte) error {
	cmd := b.client.B().Publish().Channel(b.channel(sceneID)).Message(valkey.BinaryString(data)).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("publish to scene %s: %w", sceneID, err)
	}
	return nil
}

// Run subscribes to every scene channel and forwards messages to the hub
// until ctx is cancelled.
func (b *ValkeyBus) Run(ctx context.Context) error {
	log.Printf("[Hub] Subscribing to valkey channels %s*", b.prefix)
	err := b.client.Receive(ctx, b.client.B().Psubscribe().Pattern(b.prefix+"*").Build(), func(msg valkey.PubSubMessage) {
		sceneID, ok := b.sceneID(msg.Channel)
		if !ok {
			return
		}
		if err := b.hub.Publish(ctx, sceneID, []byte(msg.Message)); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Hub] Dropped valkey message for scene %s: %v", sceneID, err)
		}
	})
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the Valkey connections.
func (b *ValkeyBus) Close() {
	b.client.Close()
}

func (b *ValkeyBus) channel(sceneID string) string {
	return b.prefix + sceneID
}

func (b *ValkeyBus) sceneID(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, b.prefix)
	return id, ok && id != ""
}

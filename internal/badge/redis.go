package badge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const badgeTTL = 24 * time.Hour

// Connect parses a redis URL and checks the server is reachable.
func Connect(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

type update struct {
	Origin string         `json:"origin"`
	Counts map[string]int `json:"counts"`
}

// RedisMirror keeps the counts in a hash and announces changes on a channel.
type RedisMirror struct {
	client  *redis.Client
	key     string
	channel string
	origin  string
}

func NewRedisMirror(client *redis.Client, adminID string) *RedisMirror {
	return &RedisMirror{
		client:  client,
		key:     "console:badge:" + adminID,
		channel: "console:badge:" + adminID + ":updates",
		origin:  uuid.NewString(),
	}
}

func (m *RedisMirror) Load(ctx context.Context) (map[string]int, error) {
	raw, err := m.client.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load badge: %w", err)
	}
	return parseCounts(raw), nil
}

func (m *RedisMirror) Publish(ctx context.Context, counts map[string]int) error {
	body, err := json.Marshal(update{Origin: m.origin, Counts: counts})
	if err != nil {
		return err
	}
	fields := make(map[string]interface{}, len(counts))
	for k, v := range counts {
		fields[k] = v
	}
	pipe := m.client.TxPipeline()
	if len(fields) > 0 {
		pipe.HSet(ctx, m.key, fields)
	}
	pipe.Expire(ctx, m.key, badgeTTL)
	pipe.Publish(ctx, m.channel, body)
	_, err = pipe.Exec(ctx)
	return err
}

// Watch delivers updates published by other processes until ctx ends.
func (m *RedisMirror) Watch(ctx context.Context, fn func(map[string]int)) error {
	sub := m.client.Subscribe(ctx, m.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			counts, ok := m.decode(msg.Payload)
			if ok {
				fn(counts)
			}
		}
	}
}

func (m *RedisMirror) decode(payload string) (map[string]int, bool) {
	var u update
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return nil, false
	}
	if u.Origin == m.origin || u.Counts == nil {
		return nil, false
	}
	return u.Counts, true
}

func parseCounts(raw map[string]string) map[string]int {
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out
}

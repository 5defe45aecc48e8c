package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// ValidStatus reports whether s may be set by a client.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Status is the shared presence record of one user.
type Status struct {
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"lastSeen"`
	Connections int64     `json:"connections"`
}

// Mirror publishes presence where other instances and the HTTP API can read
// it. The hub stays authoritative for its own connections.
type Mirror interface {
	Connected(ctx context.Context, userID string) error
	Disconnected(ctx context.Context, userID string) error
	SetStatus(ctx context.Context, userID, status string) error
	Get(ctx context.Context, userID string) (Status, bool, error)
}

// NopMirror keeps nothing.
type NopMirror struct{}

func (NopMirror) Connected(context.Context, string) error         { return nil }
func (NopMirror) Disconnected(context.Context, string) error      { return nil }
func (NopMirror) SetStatus(context.Context, string, string) error { return nil }
func (NopMirror) Get(context.Context, string) (Status, bool, error) {
	return Status{}, false, nil
}

// RedisMirror keeps presence in one hash per user:
//
//	<prefix>:presence:<userID> -> {status, lastSeen, connections}
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisMirror(client *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", m.prefix, userID)
}

func (m *RedisMirror) Connected(ctx context.Context, userID string) error {
	key := m.key(userID)
	pipe := m.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "connections", 1)
	pipe.HSet(ctx, key, "status", StatusOnline, "lastSeen", time.Now().Unix())
	pipe.Expire(ctx, key, m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Disconnected(ctx context.Context, userID string) error {
	key := m.key(userID)
	left, err := m.client.HIncrBy(ctx, key, "connections", -1).Result()
	if err != nil {
		return err
	}
	fields := []interface{}{"lastSeen", time.Now().Unix()}
	if left <= 0 {
		fields = append(fields, "status", StatusOffline, "connections", 0)
	}
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, fields...)
	pipe.Expire(ctx, key, m.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) SetStatus(ctx context.Context, userID, status string) error {
	key := m.key(userID)
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, "status", status, "lastSeen", time.Now().Unix())
	pipe.Expire(ctx, key, m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Get(ctx context.Context, userID string) (Status, bool, error) {
	vals, err := m.client.HGetAll(ctx, m.key(userID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(vals) == 0 {
		return Status{}, false, nil
	}
	return parseStatus(userID, vals), true, nil
}

func parseStatus(userID string, vals map[string]string) Status {
	s := Status{UserID: userID, Status: vals["status"]}
	if s.Status == "" {
		s.Status = StatusOffline
	}
	if ts, err := strconv.ParseInt(vals["lastSeen"], 10, 64); err == nil {
		s.LastSeen = time.Unix(ts, 0).UTC()
	}
	s.Connections, _ = strconv.ParseInt(vals["connections"], 10, 64)
	return s
}

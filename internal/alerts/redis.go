package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	redisAlertsKey  = "fleetsentry:alerts"
	redisSeqKey     = "fleetsentry:alerts:seq"
	redisCounterKey = "fleetsentry:alerts:counter"
)

// upsertScript replaces the stored alert only when the incoming write
// sequence is not older than the stored one, so a stale evaluation can never
// clobber a newer alert even across processes.
var upsertScript = redis.NewScript(`
	local cur = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
	local seq = tonumber(ARGV[2])
	if seq >= cur then
		redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
		redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
		return 1
	end
	return 0
`)

// RedisStore keeps the active-alert table in Redis for consumers that want
// alert state to outlive the process. Same contract as MemoryStore.
type RedisStore struct {
	client *redis.Client

	// Local fallback counters when Redis is unreachable during NextSeq.
	mu   sync.Mutex
	seqs map[string]uint64
}

// NewRedisStore wraps a Redis client as an alert store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, seqs: make(map[string]uint64)}
}

// NextSeq issues the next per-vehicle write sequence.
func (s *RedisStore) NextSeq(vehicleID string) uint64 {
	n, err := s.client.HIncrBy(context.Background(), redisCounterKey, vehicleID, 1).Result()
	if err == nil {
		return uint64(n)
	}
	s.mu.Lock()
	s.seqs[vehicleID]++
	local := s.seqs[vehicleID]
	s.mu.Unlock()
	return local
}

// Upsert stores the alert keyed by vehicle, newest sequence wins.
func (s *RedisStore) Upsert(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	_, err = upsertScript.Run(ctx, s.client,
		[]string{redisAlertsKey, redisSeqKey},
		alert.VehicleID, alert.Seq, payload,
	).Result()
	if err != nil {
		return fmt.Errorf("upsert alert: %w", err)
	}
	return nil
}

// Get returns the active alert for a vehicle.
func (s *RedisStore) Get(ctx context.Context, vehicleID string) (Alert, bool, error) {
	payload, err := s.client.HGet(ctx, redisAlertsKey, vehicleID).Bytes()
	if err == redis.Nil {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, fmt.Errorf("get alert: %w", err)
	}

	var alert Alert
	if err := json.Unmarshal(payload, &alert); err != nil {
		return Alert{}, false, fmt.Errorf("decode alert: %w", err)
	}
	return alert, true, nil
}

// Active returns all active alerts ordered by vehicle id.
func (s *RedisStore) Active(ctx context.Context) ([]Alert, error) {
	entries, err := s.client.HGetAll(ctx, redisAlertsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	out := make([]Alert, 0, len(entries))
	for _, payload := range entries {
		var alert Alert
		if err := json.Unmarshal([]byte(payload), &alert); err != nil {
			continue
		}
		out = append(out, alert)
	}

	sortAlerts(out)
	return out, nil
}

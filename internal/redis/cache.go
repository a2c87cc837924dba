package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"cabdispatch/internal/domain"
)

// CacheStore handles assignment caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client, ttl: AssignmentCacheTTL}
}

// AssignmentCacheTTL bounds staleness if an invalidation is lost.
const AssignmentCacheTTL = 30 * time.Second

const assignmentCachePrefix = "cache:assignment:"

// CachedAssignment represents a cached ride assignment.
type CachedAssignment struct {
	ID             string     `json:"id"`
	VehicleID      string     `json:"vehicle_id"`
	RequestID      string     `json:"request_id"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	DistanceMeters float64    `json:"distance_meters"`
	AssignedAt     time.Time  `json:"assigned_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// NewCachedAssignment copies an assignment into its cached form.
func NewCachedAssignment(a *domain.RideAssignment) *CachedAssignment {
	return &CachedAssignment{
		ID:             a.ID,
		VehicleID:      a.VehicleID,
		RequestID:      a.RequestID,
		Status:         string(a.Status),
		Source:         string(a.Source),
		DistanceMeters: a.DistanceMeters,
		AssignedAt:     a.AssignedAt,
		CompletedAt:    a.CompletedAt,
	}
}

// Assignment converts the cached form back into a domain assignment.
func (c *CachedAssignment) Assignment() *domain.RideAssignment {
	return &domain.RideAssignment{
		ID:             c.ID,
		VehicleID:      c.VehicleID,
		RequestID:      c.RequestID,
		Status:         domain.AssignmentStatus(c.Status),
		Source:         domain.AssignmentSource(c.Source),
		DistanceMeters: c.DistanceMeters,
		AssignedAt:     c.AssignedAt,
		CompletedAt:    c.CompletedAt,
	}
}

// Entries are hashes of {stage, data}. setAssignmentScript writes only when
// the incoming stage is not behind the stored one, so a slow read-through fill
// cannot put a PENDING copy over a terminal one.
//
// KEYS[1] entry key; ARGV[1] stage, ARGV[2] JSON, ARGV[3] TTL in milliseconds.
var setAssignmentScript = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'stage')
if stored and tonumber(stored) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'stage', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// GetAssignment retrieves an assignment from cache. A miss returns nil, nil.
func (s *CacheStore) GetAssignment(ctx context.Context, id string) (*CachedAssignment, error) {
	data, err := s.client.HGet(ctx, assignmentCachePrefix+id, "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedAssignment
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// SetAssignment stores an assignment unless the cache already holds it at a
// later lifecycle stage. It reports whether the entry was written.
func (s *CacheStore) SetAssignment(ctx context.Context, a *CachedAssignment) (bool, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return false, err
	}

	stage := domain.AssignmentStatus(a.Status).Stage()
	written, err := setAssignmentScript.Run(ctx, s.client,
		[]string{assignmentCachePrefix + a.ID},
		stage, data, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

// InvalidateAssignments removes assignments from cache in one pipeline.
func (s *CacheStore) InvalidateAssignments(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, assignmentCachePrefix+id)
	}

	_, err := pipe.Exec(ctx)
	return err
}

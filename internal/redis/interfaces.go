package redis

import "context"

// AssignmentCacheInterface defines the read-through cache used for assignments.
type AssignmentCacheInterface interface {
	GetAssignment(ctx context.Context, id string) (*CachedAssignment, error)
	SetAssignment(ctx context.Context, a *CachedAssignment) (bool, error)
	InvalidateAssignments(ctx context.Context, ids ...string) error
}

// Ensure concrete types implement interfaces.
var _ AssignmentCacheInterface = (*CacheStore)(nil)

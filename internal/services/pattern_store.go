package services

import (
	"context"
	"errors"

	"prismx/internal/models"
)

// Pattern storage and lifecycle errors
var (
	ErrPatternNotFound    = errors.New("pattern not found")
	ErrDuplicateKey       = errors.New("pattern id already exists")
	ErrStorageUnavailable = errors.New("pattern storage unavailable")
	ErrGenerationFailed   = errors.New("failed to generate pattern")
)

// TagOutcome reports what a tag merge did to a pattern
type TagOutcome int

const (
	// TagsPatternMissing means no pattern has the given id
	TagsPatternMissing TagOutcome = iota
	// TagsUnchanged means the pattern exists and already had every tag
	TagsUnchanged
	// TagsAdded means at least one new tag was stored
	TagsAdded
)

// Modified reports whether the merge changed the stored record
func (o TagOutcome) Modified() bool {
	return o == TagsAdded
}

// Found reports whether the pattern exists
func (o TagOutcome) Found() bool {
	return o != TagsPatternMissing
}

func (o TagOutcome) String() string {
	switch o {
	case TagsAdded:
		return "added"
	case TagsUnchanged:
		return "unchanged"
	default:
		return "missing"
	}
}

// PatternStore is the durable pattern collection.
// Implementations wrap I/O failures in ErrStorageUnavailable and never retry.
type PatternStore interface {
	// Insert adds a new pattern; ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, p *models.Pattern) error
	// FindByID returns ErrPatternNotFound when absent.
	FindByID(ctx context.Context, id string) (*models.Pattern, error)
	// IncrementUsageCount atomically adds one to metadata.usageCount.
	IncrementUsageCount(ctx context.Context, id string) error
	// ListTopByEffectiveness orders by effectiveness desc, then id asc.
	ListTopByEffectiveness(ctx context.Context, limit int) ([]*models.Pattern, error)
	// ListNewestFirst orders by timestamp desc, then id asc. limit <= 0 lists all.
	ListNewestFirst(ctx context.Context, limit int) ([]*models.Pattern, error)
	// DeleteByID is idempotent.
	DeleteByID(ctx context.Context, id string) error
	// DeleteOlderThan removes patterns with timestamp strictly below threshold.
	DeleteOlderThan(ctx context.Context, threshold int64) (int64, error)
	// AddTags merges tags into metadata.tags without duplicates.
	AddTags(ctx context.Context, id string, tags []string) (TagOutcome, error)
	Count(ctx context.Context) (int64, error)
}

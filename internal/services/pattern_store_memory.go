package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"prismx/internal/models"

	"github.com/patrickmn/go-cache"
)

// MemoryPatternStore keeps patterns in process memory.
// It backs the engine and handler tests.
type MemoryPatternStore struct {
	cache *cache.Cache
	mu    sync.Mutex // serialises every write; records are re-keyed by their own ID
}

// NewMemoryPatternStore creates an empty in-memory store
func NewMemoryPatternStore() *MemoryPatternStore {
	return &MemoryPatternStore{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// Insert adds a new pattern
func (s *MemoryPatternStore) Insert(ctx context.Context, p *models.Pattern) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if p == nil || p.ID == "" {
		return fmt.Errorf("pattern id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Add(p.ID, p.Clone(), cache.NoExpiration); err != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, p.ID)
	}
	return nil
}

// FindByID returns a copy of the stored pattern
func (s *MemoryPatternStore) FindByID(ctx context.Context, id string) (*models.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.get(id)
	if !ok {
		return nil, ErrPatternNotFound
	}
	return p.Clone(), nil
}

// IncrementUsageCount bumps metadata.usageCount by one
func (s *MemoryPatternStore) IncrementUsageCount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.get(id)
	if !ok {
		return ErrPatternNotFound
	}
	updated := p.Clone()
	updated.Metadata.UsageCount++
	s.cache.Set(updated.ID, updated, cache.NoExpiration)
	return nil
}

// ListTopByEffectiveness returns up to limit patterns, best first
func (s *MemoryPatternStore) ListTopByEffectiveness(ctx context.Context, limit int) ([]*models.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	all := s.snapshot()
	sort.Slice(all, func(i, j int) bool {
		if all[i].Effectiveness != all[j].Effectiveness {
			return all[i].Effectiveness > all[j].Effectiveness
		}
		return all[i].ID < all[j].ID
	})
	return truncate(all, limit), nil
}

// ListNewestFirst returns patterns ordered by creation time, newest first
func (s *MemoryPatternStore) ListNewestFirst(ctx context.Context, limit int) ([]*models.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	all := s.snapshot()
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp > all[j].Timestamp
		}
		return all[i].ID < all[j].ID
	})
	if limit <= 0 {
		return all, nil
	}
	return truncate(all, limit), nil
}

// DeleteByID removes a pattern; missing ids are not an error
func (s *MemoryPatternStore) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(id)
	return nil
}

// DeleteOlderThan removes every pattern with timestamp < threshold
func (s *MemoryPatternStore) DeleteOlderThan(ctx context.Context, threshold int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, item := range s.cache.Items() {
		if p, ok := item.Object.(*models.Pattern); ok && p.Timestamp < threshold {
			s.cache.Delete(id)
			deleted++
		}
	}
	return deleted, nil
}

// AddTags merges tags into the pattern's tag set
func (s *MemoryPatternStore) AddTags(ctx context.Context, id string, tags []string) (TagOutcome, error) {
	if err := ctx.Err(); err != nil {
		return TagsPatternMissing, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.get(id)
	if !ok {
		return TagsPatternMissing, nil
	}

	updated := p.Clone()
	existing := make(map[string]bool, len(updated.Metadata.Tags))
	for _, tag := range updated.Metadata.Tags {
		existing[tag] = true
	}

	added := false
	for _, tag := range tags {
		if existing[tag] {
			continue
		}
		existing[tag] = true
		updated.Metadata.Tags = append(updated.Metadata.Tags, tag)
		added = true
	}
	if !added {
		return TagsUnchanged, nil
	}

	s.cache.Set(updated.ID, updated, cache.NoExpiration)
	return TagsAdded, nil
}

// Count returns the number of stored patterns
func (s *MemoryPatternStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return int64(s.cache.ItemCount()), nil
}

func (s *MemoryPatternStore) get(id string) (*models.Pattern, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	p, ok := v.(*models.Pattern)
	return p, ok
}

func (s *MemoryPatternStore) snapshot() []*models.Pattern {
	items := s.cache.Items()
	out := make([]*models.Pattern, 0, len(items))
	for _, item := range items {
		if p, ok := item.Object.(*models.Pattern); ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

func truncate(patterns []*models.Pattern, limit int) []*models.Pattern {
	if limit < 0 {
		limit = 0
	}
	if len(patterns) > limit {
		return patterns[:limit]
	}
	return patterns
}

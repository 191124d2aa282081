package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"prismx/internal/logging"
	"prismx/internal/models"
)

const (
	// DefaultMaxPatterns bounds the number of stored patterns
	DefaultMaxPatterns = 1000
	// DefaultBootstrapCount patterns are generated into an empty store
	DefaultBootstrapCount = 10
	// DefaultPatternListCount is used when callers ask for a non-positive count
	DefaultPatternListCount = 10

	// A pattern stays valid while its recomputed score keeps this share of the stored one
	validationTolerance = 0.8
	patternIDBytes      = 16
)

// PrivacyEngine owns the pattern lifecycle: generation, lookup, validation,
// tagging and retention. It keeps no state between calls; everything lives
// in the PatternStore.
type PrivacyEngine struct {
	store          PatternStore
	maxPatterns    int
	bootstrapCount int
	lock           CleanupLock
	metrics        *Metrics
	now            func() time.Time
	random         io.Reader
	logger         *slog.Logger
}

// EngineOption configures a PrivacyEngine
type EngineOption func(*PrivacyEngine)

// WithMaxPatterns sets the retention maximum
func WithMaxPatterns(n int) EngineOption {
	return func(e *PrivacyEngine) {
		if n > 0 {
			e.maxPatterns = n
		}
	}
}

// WithBootstrapCount sets how many patterns seed an empty store; 0 disables seeding
func WithBootstrapCount(n int) EngineOption {
	return func(e *PrivacyEngine) {
		if n >= 0 {
			e.bootstrapCount = n
		}
	}
}

// WithCleanupLock serialises retention cleanup through lock
func WithCleanupLock(lock CleanupLock) EngineOption {
	return func(e *PrivacyEngine) {
		e.lock = lock
	}
}

// WithMetrics records lifecycle metrics
func WithMetrics(m *Metrics) EngineOption {
	return func(e *PrivacyEngine) {
		e.metrics = m
	}
}

// WithClock overrides the time source used for pattern timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *PrivacyEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRandom overrides the source of pattern ids and data
func WithRandom(r io.Reader) EngineOption {
	return func(e *PrivacyEngine) {
		if r != nil {
			e.random = r
		}
	}
}

// NewPrivacyEngine creates the engine and, if the store is empty, seeds it
// with the bootstrap patterns before returning. Seeding failures are logged
// and do not prevent the engine from being used.
func NewPrivacyEngine(ctx context.Context, store PatternStore, opts ...EngineOption) *PrivacyEngine {
	e := &PrivacyEngine{
		store:          store,
		maxPatterns:    DefaultMaxPatterns,
		bootstrapCount: DefaultBootstrapCount,
		now:            time.Now,
		random:         rand.Reader,
		logger:         logging.WithComponent("privacy-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.bootstrap(ctx)
	return e
}

// MaxPatterns returns the retention maximum
func (e *PrivacyEngine) MaxPatterns() int {
	return e.maxPatterns
}

func (e *PrivacyEngine) bootstrap(ctx context.Context) {
	if e.bootstrapCount == 0 {
		return
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		e.logger.Error("failed to count patterns during bootstrap", "error", err)
		return
	}
	if count > 0 {
		e.logger.Debug("pattern store already populated, skipping bootstrap", "count", count)
		return
	}

	for i := 0; i < e.bootstrapCount; i++ {
		if _, err := e.GeneratePattern(ctx); err != nil {
			e.logger.Error("bootstrap stopped early", "generated", i, "error", err)
			return
		}
	}
	e.logger.Info("seeded empty pattern store", "generated", e.bootstrapCount)
}

// GeneratePattern creates, scores and stores a new random pattern, then runs
// retention cleanup. Errors wrap ErrGenerationFailed; a failed call stores nothing.
func (e *PrivacyEngine) GeneratePattern(ctx context.Context) (*models.Pattern, error) {
	idBytes := make([]byte, patternIDBytes)
	if _, err := io.ReadFull(e.random, idBytes); err != nil {
		return nil, fmt.Errorf("%w: reading id entropy: %v", ErrGenerationFailed, err)
	}

	data := make([]byte, NominalPatternSize)
	if _, err := io.ReadFull(e.random, data); err != nil {
		return nil, fmt.Errorf("%w: reading pattern data: %v", ErrGenerationFailed, err)
	}

	pattern := &models.Pattern{
		ID:            hex.EncodeToString(idBytes),
		Data:          data,
		Effectiveness: MeasureEffectiveness(data),
		ResourceUsage: MeasureResourceUsage(data),
		Timestamp:     e.now().UnixMilli(),
		Metadata: models.PatternMetadata{
			Source:     models.DefaultPatternSource,
			Tags:       []string{},
			UsageCount: 0,
		},
	}

	if err := e.store.Insert(ctx, pattern); err != nil {
		e.metrics.RecordGenerationFailure()
		logging.WithPattern(e.logger, pattern.ID).Error("failed to save pattern", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	e.metrics.RecordGenerated()

	if _, err := e.CleanupOldPatterns(ctx); err != nil {
		e.logger.Error("retention cleanup failed", "error", err)
	}

	return pattern, nil
}

// CleanupOldPatterns enforces the retention maximum: when the store holds
// more than maxPatterns, everything strictly older than the maxPatterns-th
// newest pattern is deleted. Patterns sharing the boundary timestamp are all
// kept, so the store may end slightly above the maximum.
func (e *PrivacyEngine) CleanupOldPatterns(ctx context.Context) (int64, error) {
	if e.lock != nil {
		release, ok, err := e.lock.TryAcquire(ctx)
		switch {
		case err != nil:
			// lock backend down: clean up unlocked
			e.metrics.RecordCleanupLockError()
			e.logger.Warn("cleanup lock unavailable, running unlocked", "error", err)
		case !ok:
			e.metrics.RecordCleanupSkipped()
			return 0, nil
		default:
			defer release()
		}
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count <= int64(e.maxPatterns) {
		return 0, nil
	}

	keep, err := e.store.ListNewestFirst(ctx, e.maxPatterns)
	if err != nil {
		return 0, err
	}
	if len(keep) == 0 {
		return 0, nil
	}

	oldestKept := keep[len(keep)-1].Timestamp
	deleted, err := e.store.DeleteOlderThan(ctx, oldestKept)
	if err != nil {
		return 0, err
	}

	e.metrics.RecordEvicted("retention", deleted)
	e.logger.Info("retention cleanup removed old patterns",
		"deleted", deleted, "count_before", count, "oldest_kept", oldestKept)
	return deleted, nil
}

// GetPattern returns the pattern and records the lookup in its usage count.
// The returned snapshot carries the usage count from before this lookup.
// Absence and storage failures both yield ok=false.
func (e *PrivacyEngine) GetPattern(ctx context.Context, id string) (*models.Pattern, bool) {
	pattern, err := e.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatternNotFound) {
			e.metrics.RecordLookup("miss")
			return nil, false
		}
		e.metrics.RecordLookup("error")
		logging.WithPattern(e.logger, id).Error("failed to retrieve pattern", "error", err)
		return nil, false
	}

	// Awaited so that N completed lookups always read back as usageCount == N
	if err := e.store.IncrementUsageCount(ctx, id); err != nil && !errors.Is(err, ErrPatternNotFound) {
		logging.WithPattern(e.logger, id).Warn("failed to increment usage count", "error", err)
	}

	e.metrics.RecordLookup("hit")
	return pattern, true
}

// GetPatterns returns up to count patterns ordered by effectiveness, best first.
// Non-positive counts fall back to DefaultPatternListCount; counts above the
// retention maximum are capped. Storage failures yield an empty list.
func (e *PrivacyEngine) GetPatterns(ctx context.Context, count int) []*models.Pattern {
	if count <= 0 {
		count = DefaultPatternListCount
	}
	if count > e.maxPatterns {
		count = e.maxPatterns
	}

	patterns, err := e.store.ListTopByEffectiveness(ctx, count)
	if err != nil {
		e.logger.Error("failed to retrieve patterns", "error", err)
		return []*models.Pattern{}
	}
	return patterns
}

// ValidatePattern recomputes the pattern's effectiveness from its stored data.
// A pattern whose score dropped below 80% of the recorded one is deleted.
func (e *PrivacyEngine) ValidatePattern(ctx context.Context, id string) bool {
	logger := logging.WithPattern(e.logger, id)

	pattern, err := e.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatternNotFound) {
			e.metrics.RecordValidation("missing")
		} else {
			e.metrics.RecordValidation("error")
			logger.Error("failed to load pattern for validation", "error", err)
		}
		return false
	}

	current := MeasureEffectiveness(pattern.Data)
	valid := current >= pattern.Effectiveness*validationTolerance
	if valid {
		e.metrics.RecordValidation("valid")
		return true
	}

	e.metrics.RecordValidation("invalid")
	logger.Warn("pattern failed validation, deleting",
		"stored_effectiveness", pattern.Effectiveness, "current_effectiveness", current)

	if err := e.store.DeleteByID(ctx, id); err != nil {
		logger.Error("failed to delete invalid pattern", "error", err)
	} else {
		e.metrics.RecordEvicted("invalid", 1)
	}
	return false
}

// AddPatternMetadata merges tags into the pattern's tag set.
// Outcome.Modified() is false when the pattern is missing, when every tag was
// already present, when tags is empty, and when storage fails.
func (e *PrivacyEngine) AddPatternMetadata(ctx context.Context, id string, tags []string) TagOutcome {
	outcome, err := e.store.AddTags(ctx, id, dedupeTags(tags))
	if err != nil {
		logging.WithPattern(e.logger, id).Error("failed to add pattern metadata", "error", err)
		return TagsPatternMissing
	}
	return outcome
}

// Stats summarises the pattern collection
func (e *PrivacyEngine) Stats(ctx context.Context) (models.PatternStats, error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return models.PatternStats{}, err
	}
	return models.PatternStats{
		Count:            count,
		MaxPatterns:      e.maxPatterns,
		NominalSizeBytes: NominalPatternSize,
	}, nil
}

// dedupeTags drops repeated tags, keeping first-seen order
func dedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

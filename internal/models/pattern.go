package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pattern is a stored blob of random bytes together with its derived scores.
// Everything except Metadata is immutable once the pattern has been inserted.
type Pattern struct {
	ObjectID primitive.ObjectID `bson:"_id,omitempty" json:"-"` // storage-assigned, never exposed

	ID            string          `bson:"id" json:"id"`     // external lookup key (hex)
	Data          []byte          `bson:"data" json:"-"`    // raw blob, never serialized to clients
	Effectiveness float64         `bson:"effectiveness" json:"effectiveness"`
	ResourceUsage float64         `bson:"resourceUsage" json:"resourceUsage"`
	Timestamp     int64           `bson:"timestamp" json:"timestamp"` // ms since epoch
	Metadata      PatternMetadata `bson:"metadata" json:"metadata"`

	CreatedAt time.Time `bson:"createdAt" json:"-"`
	UpdatedAt time.Time `bson:"updatedAt" json:"-"`
}

// PatternMetadata is the mutable part of a pattern
type PatternMetadata struct {
	Source     string   `bson:"source" json:"source"`
	Tags       []string `bson:"tags" json:"tags"`
	UsageCount int64    `bson:"usageCount" json:"usageCount"`
}

// DefaultPatternSource tags locally generated patterns
const DefaultPatternSource = "local"

// Clone returns a deep copy so callers never share slices with a store.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	c.Metadata.Tags = append(make([]string, 0, len(p.Metadata.Tags)), p.Metadata.Tags...)
	return &c
}

// PatternResponse is the client-facing view of a pattern (no raw data)
type PatternResponse struct {
	ID            string          `json:"id"`
	Effectiveness float64         `json:"effectiveness"`
	ResourceUsage float64         `json:"resourceUsage"`
	Timestamp     int64           `json:"timestamp"`
	Metadata      PatternMetadata `json:"metadata"`
}

// ToResponse converts a pattern to its API view
func (p *Pattern) ToResponse() PatternResponse {
	tags := p.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}
	return PatternResponse{
		ID:            p.ID,
		Effectiveness: p.Effectiveness,
		ResourceUsage: p.ResourceUsage,
		Timestamp:     p.Timestamp,
		Metadata: PatternMetadata{
			Source:     p.Metadata.Source,
			Tags:       tags,
			UsageCount: p.Metadata.UsageCount,
		},
	}
}

// PatternStats summarises the pattern collection
type PatternStats struct {
	Count            int64      `json:"count"`
	MaxPatterns      int        `json:"maxPatterns"`
	SweepSchedule    string     `json:"sweepSchedule,omitempty"`
	NextSweepAt      *time.Time `json:"nextSweepAt,omitempty"`
	NominalSizeBytes int        `json:"nominalSizeBytes"`
}

package handlers

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"prismx/internal/jobs"
	"prismx/internal/models"
	"prismx/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// PatternHandler handles privacy pattern HTTP requests
type PatternHandler struct {
	engine        *services.PrivacyEngine
	sweepSchedule string
}

// NewPatternHandler creates a new pattern handler.
// sweepSchedule is reported by Stats; pass "" when the periodic sweep is off.
func NewPatternHandler(engine *services.PrivacyEngine, sweepSchedule string) *PatternHandler {
	return &PatternHandler{
		engine:        engine,
		sweepSchedule: sweepSchedule,
	}
}

// AddMetadataRequest is the body of POST /patterns/:id/metadata
type AddMetadataRequest struct {
	Tags json.RawMessage `json:"tags"`
}

// Generate creates and stores a new pattern
// POST /patterns/generate
func (h *PatternHandler) Generate(c *fiber.Ctx) error {
	pattern, err := h.engine.GeneratePattern(c.UserContext())
	if err != nil {
		log.Printf("❌ [PATTERN] Failed to generate pattern: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to generate pattern",
		})
	}

	log.Printf("✅ [PATTERN] Generated pattern %s (effectiveness: %.4f)", pattern.ID, pattern.Effectiveness)
	return c.JSON(fiber.Map{
		"success": true,
		"pattern": pattern.ToResponse(),
	})
}

// Get returns a single pattern and records the lookup
// GET /patterns/:id
func (h *PatternHandler) Get(c *fiber.Ctx) error {
	pattern, ok := h.engine.GetPattern(c.UserContext(), patternID(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Pattern not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"pattern": pattern.ToResponse(),
	})
}

// List returns the most effective patterns
// GET /patterns?count=N
func (h *PatternHandler) List(c *fiber.Ctx) error {
	count := services.DefaultPatternListCount
	if raw := c.Query("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			count = n
		}
	}

	patterns := h.engine.GetPatterns(c.UserContext(), count)

	response := make([]models.PatternResponse, len(patterns))
	for i, p := range patterns {
		response[i] = p.ToResponse()
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"patterns": response,
	})
}

// Validate re-scores a pattern, deleting it if it has drifted
// POST /patterns/:id/validate
func (h *PatternHandler) Validate(c *fiber.Ctx) error {
	isValid := h.engine.ValidatePattern(c.UserContext(), patternID(c))

	return c.JSON(fiber.Map{
		"success": true,
		"isValid": isValid,
	})
}

// AddMetadata merges tags into a pattern
// POST /patterns/:id/metadata
func (h *PatternHandler) AddMetadata(c *fiber.Ctx) error {
	var req AddMetadataRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	tags, ok := parseTags(req.Tags)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Tags must be an array",
		})
	}

	id := patternID(c)
	outcome := h.engine.AddPatternMetadata(c.UserContext(), id, tags)
	if !outcome.Found() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Pattern not found",
		})
	}

	if outcome.Modified() {
		log.Printf("🏷️  [PATTERN] Added tags to pattern %s", id)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "Pattern metadata updated successfully",
		"modified": outcome.Modified(),
	})
}

// Stats summarises the pattern collection and the retention sweep
// GET /patterns/stats
func (h *PatternHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.engine.Stats(c.UserContext())
	if err != nil {
		log.Printf("❌ [PATTERN] Failed to load stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to retrieve pattern stats",
		})
	}

	if h.sweepSchedule != "" {
		stats.SweepSchedule = h.sweepSchedule
		if next, err := jobs.NextRun(h.sweepSchedule, time.Now()); err == nil {
			stats.NextSweepAt = &next
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
	})
}

// parseTags accepts only a JSON array of strings
func parseTags(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, false
	}
	return tags, true
}

// patternID copies the :id route param out of Fiber's request buffer,
// which is reused once the handler returns.
func patternID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}

package jobs

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// PatternCleaner enforces the pattern retention maximum
type PatternCleaner interface {
	CleanupOldPatterns(ctx context.Context) (int64, error)
}

// RetentionSweepJob periodically trims the pattern collection, catching
// anything left behind when a post-generation cleanup was skipped or failed
type RetentionSweepJob struct {
	cleaner  PatternCleaner
	schedule string
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewRetentionSweepJob creates a sweep that runs on the given cron schedule
func NewRetentionSweepJob(cleaner PatternCleaner, schedule string) *RetentionSweepJob {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &RetentionSweepJob{
		cleaner:  cleaner,
		schedule: schedule,
		timeout:  2 * time.Minute,
		logger:   logger,
	}
}

// SetOutput redirects the job's log output
func (j *RetentionSweepJob) SetOutput(w io.Writer) {
	j.logger.SetOutput(w)
}

// Schedule returns the cron expression this job runs on
func (j *RetentionSweepJob) Schedule() string {
	return j.schedule
}

// Run performs one retention pass
func (j *RetentionSweepJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	startTime := time.Now()
	deleted, err := j.cleaner.CleanupOldPatterns(ctx)
	if err != nil {
		j.logger.WithError(err).Error("Pattern retention sweep failed")
		return err
	}

	j.logger.WithFields(logrus.Fields{
		"deleted":  deleted,
		"duration": time.Since(startTime).String(),
	}).Info("Pattern retention sweep complete")
	return nil
}

package etl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sentrydeck/internal/classify"
	"sentrydeck/internal/source"
	"sentrydeck/internal/staging"
	"sentrydeck/internal/storage"
)

// Run lifecycle statuses.
const (
	StatusRunning   = "running"
	StatusLoaded    = "loaded"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Store is the persistence surface the runner drives.
type Store interface {
	CreateRun(ctx context.Context, manifest []storage.SourceEntry) (uuid.UUID, error)
	UpdateRun(ctx context.Context, runID uuid.UUID, update storage.RunUpdate) error
	UpsertStaging(ctx context.Context, records []*staging.Record) error
	CallPublishStep(ctx context.Context, step string, runID uuid.UUID) error
	FinalizeRun(ctx context.Context, runID uuid.UUID) error
}

// Notifier is told when a run finishes, successfully or not.
type Notifier interface {
	RunCompleted(ctx context.Context, report Report) error
}

// SourceSpec names one CSV export and the row kind it holds.
type SourceSpec struct {
	File string              `yaml:"file"`
	Kind classify.SourceKind `yaml:"kind"`
}

// Config tunes batching and retry behavior.
type Config struct {
	// BatchSize is the number of staged rows per flush.
	BatchSize int `yaml:"batch_size"`

	// FlushAttempts is the total attempts per staging flush.
	FlushAttempts int `yaml:"flush_attempts"`

	// FlushBackoff is multiplied by the attempt number between flush retries.
	FlushBackoff time.Duration `yaml:"flush_backoff"`

	// PublishRetries is the number of extra attempts per publish step.
	PublishRetries int `yaml:"publish_retries"`

	// PublishBackoff is multiplied by the attempt number between publish retries.
	PublishBackoff time.Duration `yaml:"publish_backoff"`
}

// DefaultConfig returns the production batching parameters.
func DefaultConfig() Config {
	return Config{
		BatchSize:      250,
		FlushAttempts:  4,
		FlushBackoff:   250 * time.Millisecond,
		PublishRetries: 2,
		PublishBackoff: 500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushAttempts <= 0 {
		c.FlushAttempts = def.FlushAttempts
	}
	if c.FlushBackoff <= 0 {
		c.FlushBackoff = def.FlushBackoff
	}
	if c.PublishRetries < 0 {
		c.PublishRetries = def.PublishRetries
	}
	if c.PublishBackoff <= 0 {
		c.PublishBackoff = def.PublishBackoff
	}
	return c
}

// Report summarizes a finished run.
type Report struct {
	RunID        uuid.UUID      `json:"run_id"`
	Status       string         `json:"status"`
	RowsSeen     int            `json:"rows_seen"`
	RowsLoaded   int            `json:"rows_loaded"`
	RowsRejected int            `json:"rows_rejected"`
	Rejections   map[string]int `json:"rejections,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Runner drives one ingest run end to end: stream, classify, stage,
// then publish.
type Runner struct {
	store    Store
	fetcher  source.Fetcher
	builder  *staging.Builder
	notifier Notifier
	config   Config
	logger   *slog.Logger
}

// NewRunner creates a Runner. notifier may be nil.
func NewRunner(store Store, fetcher source.Fetcher, notifier Notifier, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    store,
		fetcher:  fetcher,
		builder:  staging.NewBuilder(),
		notifier: notifier,
		config:   cfg.withDefaults(),
		logger:   logger,
	}
}

// Run ingests the given sources as one run. A run record failure is fatal;
// everything after that point is accounted for on the run record, and the
// returned Report always reflects the final counters.
func (r *Runner) Run(ctx context.Context, sources []SourceSpec) (Report, error) {
	if len(sources) == 0 {
		return Report{}, fmt.Errorf("etl: no sources configured")
	}

	manifest := make([]storage.SourceEntry, len(sources))
	for i, src := range sources {
		manifest[i] = storage.SourceEntry{File: src.File, Kind: string(src.Kind)}
	}

	runID, err := r.store.CreateRun(ctx, manifest)
	if err != nil {
		return Report{}, fmt.Errorf("etl: create run: %w", err)
	}

	started := time.Now()
	state := NewRunState()
	logger := r.logger.With("run_id", runID)
	logger.Info("ingest run started", "sources", len(sources))

	runErr := r.load(ctx, runID, sources, state)

	if runErr == nil {
		runErr = r.store.UpdateRun(ctx, runID, storage.RunUpdate{
			Status:       StatusLoaded,
			RowsSeen:     state.RowsSeen,
			RowsLoaded:   state.RowsLoaded,
			RowsRejected: state.RowsRejected,
			ErrorSummary: state.Summary(),
		})
	}

	status := StatusPublished
	if runErr == nil {
		runErr = r.publish(ctx, runID, logger)
	}
	if runErr != nil {
		status = StatusFailed
	}

	summary := state.Summary()
	if runErr != nil {
		if summary != "" {
			summary = runErr.Error() + "; " + summary
		} else {
			summary = runErr.Error()
		}
	}

	// The terminal write must land even when the run was cancelled,
	// otherwise the run record stays in running forever.
	if err := r.store.UpdateRun(context.WithoutCancel(ctx), runID, storage.RunUpdate{
		Status:       status,
		RowsSeen:     state.RowsSeen,
		RowsLoaded:   state.RowsLoaded,
		RowsRejected: state.RowsRejected,
		ErrorSummary: summary,
		Finished:     true,
	}); err != nil {
		logger.Error("failed to record run completion", "error", err)
		if runErr == nil {
			runErr = err
			status = StatusFailed
		}
	}

	report := Report{
		RunID:        runID,
		Status:       status,
		RowsSeen:     state.RowsSeen,
		RowsLoaded:   state.RowsLoaded,
		RowsRejected: state.RowsRejected,
		Rejections:   state.Rejections(),
		Duration:     time.Since(started),
	}

	logger.Info("ingest run finished",
		"status", status,
		"rows_seen", report.RowsSeen,
		"rows_loaded", report.RowsLoaded,
		"rows_rejected", report.RowsRejected,
		"duration", report.Duration,
	)

	if r.notifier != nil {
		if err := r.notifier.RunCompleted(ctx, report); err != nil {
			logger.Warn("run completion notification failed", "error", err)
		}
	}

	return report, runErr
}

// load streams every source file into the staging table.
func (r *Runner) load(ctx context.Context, runID uuid.UUID, sources []SourceSpec, state *RunState) error {
	batch := make([]*staging.Record, 0, r.config.BatchSize)

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.loadFile(ctx, runID, src, state, &batch); err != nil {
			return err
		}
	}

	return r.flush(ctx, &batch, state)
}

func (r *Runner) loadFile(ctx context.Context, runID uuid.UUID, src SourceSpec, state *RunState, batch *[]*staging.Record) error {
	logger := r.logger.With("run_id", runID, "file", src.File, "kind", src.Kind)

	body, err := r.fetcher.Open(ctx, src.File)
	if err != nil {
		logger.Warn("source file unavailable", "error", err)
		state.Reject(MissingFileReason(src.File))
		return nil
	}
	defer body.Close()

	reader, err := source.NewReader(body)
	if err != nil {
		logger.Warn("source file unreadable", "error", err)
		state.Reject(MissingFileReason(src.File))
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn record mid-file rejects the row, not the run.
			logger.Warn("unreadable row", "error", err)
			state.RowsSeen++
			state.Reject(ReasonInvalidRecord)
			continue
		}
		state.RowsSeen++

		classified, err := classify.Classify(row.Fields, src.Kind, src.File)
		if err != nil {
			state.Reject(ReasonMissingTimestamp)
			continue
		}

		record, err := r.builder.Build(runID, row.Fields, classified, src.File, row.Number)
		if err != nil {
			logger.Warn("row failed validation", "row", row.Number, "error", err)
			state.Reject(ReasonInvalidRecord)
			continue
		}

		*batch = append(*batch, record)
		if len(*batch) >= r.config.BatchSize {
			if err := r.flush(ctx, batch, state); err != nil {
				return err
			}
		}
	}

	logger.Debug("source file loaded", "rows_seen", state.RowsSeen)
	return nil
}

// flush writes the pending batch with linear-backoff retries.
func (r *Runner) flush(ctx context.Context, batch *[]*staging.Record, state *RunState) error {
	records := *batch
	if len(records) == 0 {
		return nil
	}
	*batch = (*batch)[:0]

	var lastErr error
	for attempt := 0; attempt < r.config.FlushAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.config.FlushBackoff*time.Duration(attempt)); err != nil {
				return err
			}
		}

		if err := r.store.UpsertStaging(ctx, records); err != nil {
			lastErr = err
			r.logger.Warn("staging flush failed, retrying",
				"attempt", attempt+1,
				"max_attempts", r.config.FlushAttempts,
				"batch_size", len(records),
				"error", err,
			)
			continue
		}

		state.RowsLoaded += len(records)
		return nil
	}

	return fmt.Errorf("etl: staging flush failed after %d attempts: %w", r.config.FlushAttempts, lastErr)
}

// publish drives the stepwise publish pipeline. A missing database function
// on any step drops the whole run down to the single finalize call, which
// older schemas still provide.
func (r *Runner) publish(ctx context.Context, runID uuid.UUID, logger *slog.Logger) error {
	for _, step := range storage.PublishSteps {
		if err := r.publishStep(ctx, runID, step, logger); err != nil {
			if storage.IsFunctionMissing(err) {
				logger.Warn("publish step not installed, falling back to finalize",
					"step", step,
					"error", err,
				)
				if err := r.store.FinalizeRun(ctx, runID); err != nil {
					return fmt.Errorf("etl: finalize fallback: %w", err)
				}
				return nil
			}
			return err
		}
	}
	return nil
}

func (r *Runner) publishStep(ctx context.Context, runID uuid.UUID, step string, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.PublishRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.config.PublishBackoff*time.Duration(attempt)); err != nil {
				return err
			}
		}

		err := r.store.CallPublishStep(ctx, step, runID)
		if err == nil {
			logger.Debug("publish step complete", "step", step)
			return nil
		}
		lastErr = err
		if storage.IsFunctionMissing(err) {
			// Retrying will not install the function.
			return err
		}

		logger.Warn("publish step failed, retrying",
			"step", step,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return fmt.Errorf("etl: publish step %s failed after %d attempts: %w",
		step, r.config.PublishRetries+1, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-frame-expander/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-expander/internal/domain/port"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/metrics"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type ExpandFramesUseCase struct {
	repo      port.JobRepository
	storage   port.SourceStorage
	lister    port.SourceLister
	expander  port.FrameExpander
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type ExpandFramesConfig struct {
	TempDir    string
	MaxRetries int
}

type ExpandFramesDeps struct {
	Repo      port.JobRepository
	Storage   port.SourceStorage
	Lister    port.SourceLister
	Expander  port.FrameExpander
	Archiver  port.Archiver
	Publisher port.StatusPublisher
	DLQ       port.DLQPublisher
	Notifier  port.FailureNotifier
}

func NewExpandFramesUseCase(deps ExpandFramesDeps, logger *zap.Logger, cfg ExpandFramesConfig) *ExpandFramesUseCase {
	return &ExpandFramesUseCase{
		repo:      deps.Repo,
		storage:   deps.Storage,
		lister:    deps.Lister,
		expander:  deps.Expander,
		archiver:  deps.Archiver,
		publisher: deps.Publisher,
		dlq:       deps.DLQ,
		notifier:  deps.Notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

// Execute handles one expansion request. A nil return acks the message; an
// error asks the consumer to requeue it.
func (uc *ExpandFramesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := tracing.StartStage(ctx, "execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ExpansionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}
	if msg.JobID == uuid.Nil {
		uc.logger.Error("message without job id", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: missing job_id")
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.source_prefix", msg.SourcePrefix),
		attribute.Int("job.fps", msg.FPS),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("source_prefix", msg.SourcePrefix))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if errors.Is(err, port.ErrJobNotFound) {
		job = entity.NewJob(msg.UserID, msg.SourcePrefix, msg.FPS, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	} else if err != nil {
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("find job: %w", err)
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, skipping redelivery")
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.expandPipeline(ctx, job, msg, rawMsg, log); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if job.Status != entity.JobStatusCompleted {
		return nil
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ExpandFramesUseCase) expandPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExpansionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	workDir := filepath.Join(uc.tempDir, job.ID.String())
	sourcesDir := filepath.Join(workDir, "sources")
	framesDir := filepath.Join(workDir, "frames")
	for _, dir := range []string{sourcesDir, framesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create workdir: %w", err)
		}
	}
	defer os.RemoveAll(workDir)

	var downloaded int
	err := uc.stage(ctx, "download", func(ctx context.Context) error {
		var err error
		downloaded, err = uc.storage.DownloadSources(ctx, msg.SourcePrefix, sourcesDir)
		return err
	})
	if err != nil {
		log.Error("failed to download sources", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_sources: "+err.Error(), log)
	}

	names, err := uc.lister.ListSources(sourcesDir)
	if err != nil {
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "list_sources: "+err.Error(), log)
	}
	if len(names) == 0 {
		log.Warn("no source images under prefix", zap.Int("downloaded", downloaded))
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg,
			fmt.Sprintf("expand_frames: %v: no images under %q", entity.ErrNotFound, msg.SourcePrefix), log)
	}

	sources := make([]string, len(names))
	for i, name := range names {
		sources[i] = filepath.Join(sourcesDir, name)
	}

	var result *port.ExpansionResult
	err = uc.stage(ctx, "expand", func(ctx context.Context) error {
		var err error
		result, err = uc.expander.Expand(ctx, port.ExpansionRequest{
			Sources:        sources,
			Durations:      msg.Durations,
			FPS:            msg.FPS,
			DestinationDir: framesDir,
			StrictPairing:  msg.StrictPairing,
		})
		return err
	})
	if err != nil {
		log.Error("frame expansion failed", zap.Error(err))
		if entity.IsPermanent(err) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "expand_frames: "+err.Error(), log)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "expand_frames: "+err.Error(), log)
	}
	if len(result.Skipped) > 0 {
		log.Warn("sources without a duration were skipped",
			zap.Int("skipped", len(result.Skipped)),
			zap.Int("durations", len(msg.Durations)),
		)
	}
	metrics.FramesExpandedTotal.Add(float64(result.FrameCount()))

	zipPath := filepath.Join(workDir, "frames.zip")
	err = uc.stage(ctx, "archive", func(ctx context.Context) error {
		return uc.archiver.CreateArchive(ctx, result.Frames, zipPath)
	})
	if err != nil {
		log.Error("archive creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_archive: "+err.Error(), log)
	}

	archiveKey := fmt.Sprintf("%s/frames_%s.zip", msg.UserID, job.ID.String())
	err = uc.stage(ctx, "upload", func(ctx context.Context) error {
		f, err := os.Open(zipPath)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		return uc.storage.UploadArchive(ctx, archiveKey, f, info.Size())
	})
	if err != nil {
		log.Error("archive upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_archive: "+err.Error(), log)
	}

	job.MarkCompleted(archiveKey, len(sources), result.FrameCount())
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("source_count", len(sources)),
		zap.Int("frame_count", result.FrameCount()),
		zap.Float64("animation_secs", job.AnimationSecs),
		zap.String("archive_key", archiveKey),
	)

	return nil
}

// stage runs fn inside a span and records its duration when it succeeds.
func (uc *ExpandFramesUseCase) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := tracing.StartStage(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	metrics.JobProcessingDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return nil
}

func (uc *ExpandFramesUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExpansionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ExpandFramesUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExpansionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg); err != nil {
		log.Error("failed to publish to DLQ", zap.Error(err))
	}

	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.SourcePrefix, errMsg)
	}

	return nil
}

func (uc *ExpandFramesUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.ExpansionStatusMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		Status:        job.Status,
		SourcePrefix:  job.SourcePrefix,
		ArchiveKey:    job.ArchiveKey,
		SourceCount:   job.SourceCount,
		FrameCount:    job.FrameCount,
		AnimationSecs: job.AnimationSecs,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, statusMsg); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

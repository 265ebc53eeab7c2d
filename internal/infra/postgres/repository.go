package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-frame-expander/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-expander/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO expansion_jobs (
			id, user_id, source_prefix, archive_key, status, fps,
			source_count, frame_count, animation_seconds, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.SourcePrefix, job.ArchiveKey, string(job.Status),
		job.FPS, job.SourceCount, job.FrameCount, job.AnimationSecs,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE expansion_jobs SET
			status=$2, archive_key=$3, source_count=$4, frame_count=$5,
			animation_seconds=$6, attempt=$7, error_message=$8,
			updated_at=$9, completed_at=$10
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ArchiveKey, job.SourceCount,
		job.FrameCount, job.AnimationSecs, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, port.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, user_id, source_prefix, archive_key, status, fps,
			source_count, frame_count, animation_seconds, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		FROM expansion_jobs WHERE id=$1`

	job := &entity.Job{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.SourcePrefix, &job.ArchiveKey, &status,
		&job.FPS, &job.SourceCount, &job.FrameCount, &job.AnimationSecs,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}

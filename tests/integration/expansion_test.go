package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-expander/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-expander/internal/expander"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/email"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/localfs"
	miniostorage "github.com/fiapx/fiapx-frame-expander/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-expander/internal/usecase"
	"github.com/fiapx/fiapx-frame-expander/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

const (
	exchange      = "fiapx.frames"
	expansionQ    = "frames.expansion"
	statusQ       = "frames.status"
	dlq           = "frames.expansion.dlq"
	sourceBucket  = "sources"
	archiveBucket = "frames"
)

type env struct {
	pool        *pgxpool.Pool
	minioClient *miniogo.Client
	rmqConn     *amqp.Connection
	publish     func(body []byte)
}

// startEnv boots postgres, rabbitmq and minio, wires the use case the way
// cmd/worker does and starts a single-worker consumer.
func startEnv(t *testing.T, ctx context.Context) *env {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		SourceBucket:  sourceBucket,
		ArchiveBucket: archiveBucket,
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, exchange)
	require.NoError(t, err)

	log, err := logger.New("debug")
	require.NoError(t, err)

	uc := usecase.NewExpandFramesUseCase(usecase.ExpandFramesDeps{
		Repo:      postgres.NewJobRepository(pool),
		Storage:   storage,
		Lister:    localfs.NewLister(".png"),
		Expander:  expander.New(),
		Archiver:  archive.NewZipCreator(),
		Publisher: rabbitmq.NewStatusPublisher(pub, statusQ),
		DLQ:       rabbitmq.NewDLQPublisher(pub, dlq),
		Notifier:  email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
	}, log, usecase.ExpandFramesConfig{
		TempDir:    t.TempDir(),
		MaxRetries: 3,
	})

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       expansionQ,
		Exchange:    exchange,
		DLQ:         dlq,
		StatusQueue: statusQ,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)
	go consumer.Start(consumerCtx)

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	return &env{
		pool:        pool,
		minioClient: minioClient,
		rmqConn:     rmqConn,
		publish: func(body []byte) {
			ch, err := rmqConn.Channel()
			require.NoError(t, err)
			defer ch.Close()
			require.NoError(t, ch.PublishWithContext(ctx, exchange, expansionQ, false, false, amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			}))
		},
	}
}

func TestExpandFramesEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e := startEnv(t, ctx)

	// Source images; content is opaque to the expander.
	for _, name := range []string{"b.png", "a.png", "notes.txt"} {
		body := []byte("bytes of " + name)
		_, err := e.minioClient.PutObject(ctx, sourceBucket, "testuser/set1/"+name,
			bytes.NewReader(body), int64(len(body)), miniogo.PutObjectOptions{ContentType: "image/png"})
		require.NoError(t, err)
	}

	jobID := uuid.New()
	msgBody, err := json.Marshal(entity.ExpansionRequestMessage{
		JobID:        jobID,
		UserID:       "testuser",
		SourcePrefix: "testuser/set1/",
		Durations:    []float64{0.7, 0.3},
		FPS:          24,
		UserEmail:    "test@test.local",
	})
	require.NoError(t, err)
	e.publish(msgBody)

	statusCh, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume(statusQ, "", true, false, false, false, nil)
	require.NoError(t, err)

	var statusMsg entity.ExpansionStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &statusMsg))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.Equal(t, 23, statusMsg.FrameCount)
	assert.Equal(t, 2, statusMsg.SourceCount)
	require.NotEmpty(t, statusMsg.ArchiveKey)

	obj, err := e.minioClient.GetObject(ctx, archiveBucket, statusMsg.ArchiveKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 23)
	assert.Equal(t, "image0.png", zr.File[0].Name)
	assert.Equal(t, "image22.png", zr.File[22].Name)

	var dbStatus string
	var dbFrameCount int
	err = e.pool.QueryRow(ctx,
		"SELECT status, frame_count FROM expansion_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 23, dbFrameCount)

	t.Logf("Test passed: %d frames, archive at %s", dbFrameCount, statusMsg.ArchiveKey)
}

func TestExpandFramesPrefixWithoutSlash(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e := startEnv(t, ctx)

	for _, key := range []string{"testuser/set2/a.png", "testuser/set2-other/b.png"} {
		body := []byte("bytes of " + key)
		_, err := e.minioClient.PutObject(ctx, sourceBucket, key,
			bytes.NewReader(body), int64(len(body)), miniogo.PutObjectOptions{ContentType: "image/png"})
		require.NoError(t, err)
	}

	jobID := uuid.New()
	msgBody, err := json.Marshal(entity.ExpansionRequestMessage{
		JobID:        jobID,
		UserID:       "testuser",
		SourcePrefix: "testuser/set2",
		Durations:    []float64{0.5},
		FPS:          10,
	})
	require.NoError(t, err)

	statusCh, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume(statusQ, "", true, false, false, false, nil)
	require.NoError(t, err)

	e.publish(msgBody)

	var statusMsg entity.ExpansionStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &statusMsg))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.Equal(t, 1, statusMsg.SourceCount)
	assert.Equal(t, 5, statusMsg.FrameCount)
}

func TestExpandFramesMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	e := startEnv(t, ctx)
	e.publish([]byte(`{invalid json`))

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get(dlq, true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
}

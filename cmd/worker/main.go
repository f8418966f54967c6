package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"smartqa-backend/internal/bootstrap"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/shared/config"
	"smartqa-backend/internal/shared/metrics"
	"smartqa-backend/internal/shared/storage/db"
	"smartqa-backend/internal/shared/telemetry"
	"smartqa-backend/internal/workerproc"
)

const defaultShutdownTimeoutSec = 30

func main() {
	defer func() { _ = telemetry.Sync() }()
	cfg := config.Load()

	if cfg.QueueURL == "" {
		telemetry.Error("worker.config.invalid", map[string]any{"error": "SQA_SQS_QUEUE_URL is required"})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := max(1, cfg.WorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("SQA_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		telemetry.Error("worker.aws_config.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	dbOpts := db.DefaultWorkerOptions(concurrency)
	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{DBOptions: &dbOpts, SkipRouter: true})
	if err != nil {
		telemetry.Error("worker.bootstrap.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer app.Close()

	w := &worker{
		client:      sqsClient,
		queueURL:    cfg.QueueURL,
		runner:      app.Orchestrator,
		maxReceives: cfg.MaxReceives,
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue_url":    cfg.QueueURL,
		"concurrency":  concurrency,
		"visibility_s": cfg.VisibilitySeconds,
		"max_receives": cfg.MaxReceives,
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(cfg.QueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(cfg.VisibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Warn("worker.receive.failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// In-flight jobs finish even after a shutdown signal.
				w.handleMessage(context.WithoutCancel(ctx), m)
			}(msg)
		}
	}

	telemetry.Info("worker.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown.timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// jobRunner executes stage jobs and records jobs whose retries ran out.
type jobRunner interface {
	workerproc.Handler
	FailExhausted(ctx context.Context, msg queue.Message, cause error)
}

type worker struct {
	client      sqsAPI
	queueURL    string
	runner      jobRunner
	maxReceives int
}

func (w *worker) handleMessage(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	count := receiveCount(msg)

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, decoded)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		event := "worker.job.decode_failed"
		var invalid workerproc.ErrInvalidJob
		if errors.As(err, &invalid) {
			event = "worker.job.invalid"
		}
		telemetry.Error(event, fields)
		if w.deleteMessage(ctx, msg, decoded) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	telemetry.Info("worker.job.received", baseFields(msg, decoded))

	err = workerproc.HandleMessage(ctx, w.runner, decoded)
	decision := workerproc.Decide(err, count, w.maxReceives)
	if err != nil {
		fields := baseFields(msg, decoded)
		fields["error"] = err.Error()
		fields["decision"] = decision.Reason
		telemetry.Error("worker.job.failed", fields)
	}
	if decision.Exhausted {
		w.runner.FailExhausted(ctx, decoded, err)
	}
	if !decision.Delete {
		return
	}
	if w.deleteMessage(ctx, msg, decoded) {
		switch {
		case err == nil:
			telemetry.Info("worker.job.completed", baseFields(msg, decoded))
		default:
			metrics.IncJobsDeletedUnrecoverable()
		}
	}
}

func (w *worker) deleteMessage(ctx context.Context, msg sqstypes.Message, job queue.Message) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, job)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, job)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, job queue.Message) map[string]any {
	fields := map[string]any{
		"analysis_id":    job.AnalysisID,
		"job_id":         job.JobID,
		"stage":          string(job.Stage),
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(job.RequestID) != "" {
		fields["request_id"] = job.RequestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"smartqa-backend/internal/bootstrap"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/shared/config"
	"smartqa-backend/internal/shared/metrics"
	"smartqa-backend/internal/shared/storage/db"
	"smartqa-backend/internal/shared/telemetry"
	"smartqa-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp(ctx context.Context) {
	cfg := config.Load()
	dbOpts := db.DefaultWorkerOptions(1)
	built, err := bootstrap.Build(ctx, cfg, bootstrap.Options{DBOptions: &dbOpts, SkipRouter: true})
	if err != nil {
		initErr = err
		return
	}
	app = built
}

// jobRunner executes stage jobs and records jobs whose retries ran out.
type jobRunner interface {
	workerproc.Handler
	FailExhausted(ctx context.Context, msg queue.Message, cause error)
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(func() { initApp(context.WithoutCancel(ctx)) })
	if initErr != nil {
		telemetry.Error("lambda.worker.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, app.Orchestrator, app.Config.MaxReceives, event), nil
}

// processBatch reports only the records that should be redelivered.
// Everything else is acknowledged by omission.
func processBatch(ctx context.Context, runner jobRunner, maxReceives int, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncJobsReceived()
		fields := map[string]any{"sqs_message_id": record.MessageId}

		msg, _, err := workerproc.ParseMessage(record.Body)
		if err == nil {
			fields["job_id"] = msg.JobID
			fields["stage"] = string(msg.Stage)
			err = workerproc.HandleMessage(ctx, runner, msg)
		}
		decision := workerproc.Decide(err, receiveCount(record), maxReceives)
		if decision.Exhausted {
			runner.FailExhausted(ctx, msg, err)
		}
		if err != nil {
			fields["error"] = err.Error()
			fields["decision"] = decision.Reason
			telemetry.Error("lambda.worker.job_failed", fields)
		}
		if !decision.Delete {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		if err != nil {
			metrics.IncJobsDeletedUnrecoverable()
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func receiveCount(record events.SQSMessage) int {
	n, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"])
	if err != nil {
		return 0
	}
	return n
}

func main() {
	lambda.Start(handler)
}

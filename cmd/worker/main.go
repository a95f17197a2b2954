package main

import (
	"context"
	"errors"
	"log"
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

	"interview-analyzer/internal/bootstrap"
	"interview-analyzer/internal/shared/config"
	"interview-analyzer/internal/shared/metrics"
	"interview-analyzer/internal/shared/telemetry"
	"interview-analyzer/internal/workerproc"
)

const defaultRegion = "us-east-1"

func main() {
	cfg := config.Load()
	if cfg.SQSQueueURL == "" {
		log.Fatal("RA_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	region := cfg.AWSRegion
	if strings.TrimSpace(region) == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(ctx, cfg, bootstrap.RoleWorker)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	// The orchestrator outlives the poll loop so in-flight units can finish.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	app.Orchestrator.Start(runCtx)

	p := &poller{
		client:     sqsClient,
		queueURL:   cfg.SQSQueueURL,
		visibility: int32(cfg.SQSVisibility / time.Second),
		runner:     app.Orchestrator,
	}
	log.Printf("worker started queue=%s visibility=%ds", cfg.SQSQueueURL, p.visibility)
	p.run(ctx, runCtx)

	log.Printf("shutdown requested, waiting up to %s for in-flight units", cfg.ShutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		// the commentary queue lives in this process; give it one last pass
		if app.Batch != nil {
			app.Batch.Wait()
		}
		report := app.Orchestrator.DrainBatch(runCtx)
		log.Printf("final commentary drain processed=%d reason=%s", len(report.Outcomes), report.Reason)
		cancelRun()
		app.Orchestrator.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(cfg.ShutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight units")
	}
}

// poller receives one message at a time. The orchestrator runs a single unit,
// so a second message would only sit out its visibility timeout and be
// redelivered.
type poller struct {
	client     sqsAPI
	queueURL   string
	visibility int32
	runner     workerproc.UnitRunner

	wg   sync.WaitGroup
	slot chan struct{}
}

// run polls until ctx is done. Handlers run on runCtx so shutdown does not
// cut a unit short; call wg.Wait afterwards.
func (p *poller) run(ctx, runCtx context.Context) {
	if p.slot == nil {
		p.slot = make(chan struct{}, 1)
	}
	for {
		// take the slot before receiving so no message waits unhandled
		select {
		case <-ctx.Done():
			return
		case p.slot <- struct{}{}:
		}

		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(p.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   p.visibility,
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil || len(resp.Messages) == 0 {
			<-p.slot
			if err == nil {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			log.Printf("receive message: %v", err)
			continue
		}

		metrics.IncWorkerMessagesReceived()
		p.wg.Add(1)
		go func(m sqstypes.Message) {
			defer p.wg.Done()
			defer func() { <-p.slot }()
			handleMessage(runCtx, p.client, p.queueURL, p.runner, m)
		}(resp.Messages[0])
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// batchScheduler is implemented by runners that own a commentary queue.
type batchScheduler interface {
	ScheduleBatchCheck()
}

// handleMessage deletes the message once the unit has a terminal record or
// the payload can never succeed. Transient failures stay on the queue.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, runner workerproc.UnitRunner, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "", "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		event := "worker.message.decode_failed"
		switch e := err.(type) {
		case workerproc.ErrEmptyBody:
			event = "worker.message.empty_body"
		case workerproc.ErrMissingUnit:
			event = "worker.message.missing_unit"
			fields["request_id"] = e.RequestID
		default:
			fields["error"] = err.Error()
		}
		telemetry.Error(event, fields)
		if deleteMessage(ctx, client, queueURL, msg, fields) {
			metrics.IncWorkerMessagesDropped()
		}
		return
	}

	fields := baseFields(msg, decoded.OwnerID, decoded.UnitID, decoded.RequestID)
	telemetry.Info("worker.message.received", fields)

	job, err := workerproc.HandleMessage(ctx, runner, decoded)
	if err != nil {
		fields["error"] = err.Error()
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) && procErr.Permanent() {
			telemetry.Error("worker.message.rejected", fields)
			if deleteMessage(ctx, client, queueURL, msg, fields) {
				metrics.IncWorkerMessagesDropped()
			}
			return
		}
		telemetry.Error("worker.message.failed", fields)
		metrics.IncWorkerMessagesFailed()
		return
	}

	fields["analysis_id"] = job.AnalysisID
	fields["status"] = job.Status
	if deleteMessage(ctx, client, queueURL, msg, fields) {
		telemetry.Info("worker.message.completed", fields)
		metrics.IncWorkerMessagesCompleted()
	}
	if sched, ok := runner.(batchScheduler); ok {
		sched.ScheduleBatchCheck()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.message.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.message.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, ownerID, unitID, requestID string) map[string]any {
	fields := map[string]any{
		"owner_id":       ownerID,
		"unit_id":        unitID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
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

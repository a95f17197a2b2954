package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"interview-analyzer/internal/bootstrap"
	"interview-analyzer/internal/inventory"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/queue"
	"interview-analyzer/internal/shared/config"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeRunner struct {
	job jobs.Job
	err error
}

func (f fakeRunner) AnalyzeUnit(context.Context, string, string, string) (jobs.Job, error) {
	return f.job, f.err
}

func sqsMessage(t *testing.T, id string, msg queue.Message) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("r-" + id),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	runner := fakeRunner{job: jobs.Job{AnalysisID: "a-1", Status: jobs.StatusCompleted}}

	handleMessage(context.Background(), client, "queue", runner, sqsMessage(t, "m1", queue.Message{OwnerID: "u1", UnitID: "Q1", RequestID: "req-1"}))

	if len(client.deleted) != 1 || client.deleted[0] != "r-m1" {
		t.Fatalf("expected delete, got %v", client.deleted)
	}
}

func TestWorkerKeepsMessageOnTransientFailure(t *testing.T) {
	client := &fakeSQS{}
	runner := fakeRunner{err: errors.New("queue is full")}

	handleMessage(context.Background(), client, "queue", runner, sqsMessage(t, "m2", queue.Message{OwnerID: "u1", UnitID: "Q1"}))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDropsUnknownUnit(t *testing.T) {
	client := &fakeSQS{}
	runner := fakeRunner{err: inventory.ErrUnitNotFound}

	handleMessage(context.Background(), client, "queue", runner, sqsMessage(t, "m3", queue.Message{OwnerID: "u1", UnitID: "Q404"}))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete for unknown unit, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidPayload(t *testing.T) {
	for _, body := range []string{"{bad-json", "", `{"ownerId":"u1"}`} {
		client := &fakeSQS{}
		msg := sqstypes.Message{
			MessageId:     aws.String("m4"),
			ReceiptHandle: aws.String("r4"),
			Body:          aws.String(body),
		}

		handleMessage(context.Background(), client, "queue", fakeRunner{}, msg)

		if len(client.deleted) != 1 {
			t.Fatalf("body %q: expected delete, got %d", body, len(client.deleted))
		}
	}
}

// scriptedSQS hands out its messages one receive at a time, then blocks until
// the poll context ends.
type scriptedSQS struct {
	mu       sync.Mutex
	pending  []sqstypes.Message
	deleted  []string
	maxBatch int32
	busy     *atomic.Int32
	overlaps int
}

func (f *scriptedSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	if params.MaxNumberOfMessages > f.maxBatch {
		f.maxBatch = params.MaxNumberOfMessages
	}
	if f.busy.Load() > 0 {
		f.overlaps++
	}
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{msg}}, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *scriptedSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *scriptedSQS) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

type slowRunner struct {
	busy    *atomic.Int32
	maxBusy atomic.Int32
}

func (r *slowRunner) AnalyzeUnit(_ context.Context, ownerID, unitID, _ string) (jobs.Job, error) {
	n := r.busy.Add(1)
	defer r.busy.Add(-1)
	if n > r.maxBusy.Load() {
		r.maxBusy.Store(n)
	}
	time.Sleep(20 * time.Millisecond)
	return jobs.Job{AnalysisID: "a-" + ownerID + unitID, Status: jobs.StatusCompleted}, nil
}

func TestPollerHoldsOneMessageAtATime(t *testing.T) {
	busy := &atomic.Int32{}
	client := &scriptedSQS{busy: busy}
	for _, id := range []string{"m1", "m2", "m3"} {
		client.pending = append(client.pending, sqsMessage(t, id, queue.Message{OwnerID: "u1", UnitID: "Q" + id}))
	}
	runner := &slowRunner{busy: busy}
	p := &poller{client: client, queueURL: "queue", visibility: 60, runner: runner}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.run(ctx, context.Background())
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for client.deletedCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	p.wg.Wait()

	if got := client.deletedCount(); got != 3 {
		t.Fatalf("deleted = %d, want 3", got)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.maxBatch != 1 {
		t.Fatalf("requested up to %d messages per receive, want 1", client.maxBatch)
	}
	if client.overlaps != 0 {
		t.Fatalf("received %d times while a unit was still running", client.overlaps)
	}
	if got := runner.maxBusy.Load(); got != 1 {
		t.Fatalf("max concurrent units = %d, want 1", got)
	}
}

func TestWorkerMessageLeadsToEvaluation(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "media", "u1", "Q1", "answer.mp4")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("video-bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	app, err := bootstrap.Build(context.Background(), config.Config{
		Env:             "dev",
		ObjectStoreType: "local",
		LocalStoreDir:   base,
		S3Bucket:        "media",
		TempDir:         t.TempDir(),
		LLMProvider:     "keywords",
		ScanMaxAttempts: 3,
	}, bootstrap.RoleWorker)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	app.Orchestrator.Start(ctx)
	t.Cleanup(func() {
		cancel()
		app.Orchestrator.Wait()
		app.Close()
	})

	client := &fakeSQS{}
	handleMessage(ctx, client, "queue", app.Orchestrator, sqsMessage(t, "m1", queue.Message{OwnerID: "u1", UnitID: "Q1"}))
	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %v", client.deleted)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		eval, err := app.EvalRepo.Get(context.Background(), "u1", "Q1")
		if err == nil {
			if eval.AnalysisID == "" || eval.CommentText == "" {
				t.Fatalf("incomplete evaluation: %+v", eval)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no evaluation written after the worker handled the message")
}

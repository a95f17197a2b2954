package workerproc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"interview-analyzer/internal/analysis"
	"interview-analyzer/internal/inventory"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/queue"
)

type fakeRunner struct {
	job   jobs.Job
	err   error
	calls []string
}

func (f *fakeRunner) AnalyzeUnit(_ context.Context, ownerID, unitID, sessionTag string) (jobs.Job, error) {
	f.calls = append(f.calls, ownerID+"/"+unitID+"/"+sessionTag)
	return f.job, f.err
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "empty", body: "  ", want: ErrEmptyBody{}},
		{name: "bad json", body: "{bad", want: ErrDecode{}},
		{name: "missing unit", body: `{"ownerId":"u1","requestId":"r1"}`, want: ErrMissingUnit{}},
		{name: "ok", body: `{"ownerId":"u1","unitId":"Q1","version":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, meta, err := ParseMessage(tt.body)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if meta.BodyLen != len(tt.body) || meta.BodySHA == "" {
					t.Fatalf("unexpected meta: %+v", meta)
				}
				return
			}
			if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", tt.want) {
				t.Fatalf("expected %T, got %T (%v)", tt.want, err, err)
			}
		})
	}
}

func TestParseMessageKeepsRequestID(t *testing.T) {
	_, _, err := ParseMessage(`{"unitId":"Q1","requestId":"req-9"}`)
	var missing ErrMissingUnit
	if !errors.As(err, &missing) || missing.RequestID != "req-9" {
		t.Fatalf("expected ErrMissingUnit with request id, got %#v", err)
	}
}

func TestHandleMessageRunsUnit(t *testing.T) {
	runner := &fakeRunner{job: jobs.Job{AnalysisID: "a-1", Status: jobs.StatusError}}
	job, err := HandleMessage(context.Background(), runner, queue.Message{OwnerID: "u1", UnitID: "Q1", SessionTag: "manual"})
	if err != nil {
		t.Fatalf("error-status jobs are handled, got %v", err)
	}
	if job.AnalysisID != "a-1" || len(runner.calls) != 1 || runner.calls[0] != "u1/Q1/manual" {
		t.Fatalf("unexpected run: %+v %v", job, runner.calls)
	}
}

func TestHandleMessageClassifiesFailures(t *testing.T) {
	tests := []struct {
		err       error
		permanent bool
	}{
		{err: inventory.ErrUnitNotFound, permanent: true},
		{err: fmt.Errorf("%w: bad tag", analysis.ErrInvalidRequest), permanent: true},
		{err: analysis.ErrBusy, permanent: false},
		{err: fmt.Errorf("%w: list: timeout", inventory.ErrDiscovery), permanent: false},
	}
	for _, tt := range tests {
		runner := &fakeRunner{err: tt.err}
		_, err := HandleMessage(context.Background(), runner, queue.Message{OwnerID: "u1", UnitID: "Q1", RequestID: "r1"})
		var procErr ErrProcess
		if !errors.As(err, &procErr) {
			t.Fatalf("expected ErrProcess, got %v", err)
		}
		if procErr.RequestID != "r1" || !errors.Is(err, tt.err) {
			t.Fatalf("unexpected ErrProcess: %+v", procErr)
		}
		if procErr.Permanent() != tt.permanent {
			t.Fatalf("Permanent() for %v = %v", tt.err, procErr.Permanent())
		}
	}
}

func TestHandleMessageWithoutRunner(t *testing.T) {
	if _, err := HandleMessage(context.Background(), nil, queue.Message{OwnerID: "u1", UnitID: "Q1"}); err == nil {
		t.Fatalf("expected error without runner")
	}
}

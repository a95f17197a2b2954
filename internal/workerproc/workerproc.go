package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"interview-analyzer/internal/analysis"
	"interview-analyzer/internal/inventory"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingUnit indicates a message without an owner or unit id.
type ErrMissingUnit struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingUnit) Error() string { return "missing owner or unit id" }

// ErrProcess indicates the trigger failed after successful parsing.
type ErrProcess struct {
	OwnerID   string
	UnitID    string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process unit"
	}
	return "process unit: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Permanent reports whether redelivery cannot succeed.
func (e ErrProcess) Permanent() bool {
	return errors.Is(e.Err, inventory.ErrUnitNotFound) || errors.Is(e.Err, analysis.ErrInvalidRequest)
}

// UnitRunner runs one unit to a terminal state.
type UnitRunner interface {
	AnalyzeUnit(ctx context.Context, ownerID, unitID, sessionTag string) (jobs.Job, error)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.OwnerID) == "" || strings.TrimSpace(msg.UnitID) == "" {
		return msg, meta, ErrMissingUnit{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// HandleMessage runs a decoded trigger through runner. A job that ends in
// error still counts as handled: its error record is the outcome.
func HandleMessage(ctx context.Context, runner UnitRunner, msg queue.Message) (jobs.Job, error) {
	if runner == nil {
		return jobs.Job{}, errors.New("analysis runner not configured")
	}
	if strings.TrimSpace(msg.OwnerID) == "" || strings.TrimSpace(msg.UnitID) == "" {
		return jobs.Job{}, ErrMissingUnit{RequestID: msg.RequestID}
	}

	job, err := runner.AnalyzeUnit(ctx, msg.OwnerID, msg.UnitID, msg.SessionTag)
	if err != nil {
		return job, ErrProcess{OwnerID: msg.OwnerID, UnitID: msg.UnitID, RequestID: msg.RequestID, Err: err}
	}
	return job, nil
}

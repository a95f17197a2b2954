package queue

import (
	"strings"
	"testing"
	"time"
)

func TestNewMessageStampsRequest(t *testing.T) {
	now := time.Date(2026, 1, 30, 22, 0, 0, 0, time.FixedZone("KST", 9*3600))
	msg := NewMessage("u1", "Q1", "manual", now)

	if msg.OwnerID != "u1" || msg.UnitID != "Q1" || msg.SessionTag != "manual" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.RequestID == "" {
		t.Fatalf("request id not set")
	}
	if msg.EnqueuedAt != "2026-01-30T13:00:00Z" {
		t.Fatalf("enqueuedAt = %s", msg.EnqueuedAt)
	}
	if msg.Version != MessageVersion {
		t.Fatalf("version = %d", msg.Version)
	}
}

func TestEncodeMessageUsesWireNames(t *testing.T) {
	payload, err := EncodeMessage(Message{OwnerID: "u1", UnitID: "Q1", RequestID: "r1", Version: 1})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	body := string(payload)
	for _, want := range []string{`"ownerId":"u1"`, `"unitId":"Q1"`, `"requestId":"r1"`, `"version":1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("payload %s missing %s", body, want)
		}
	}
	if strings.Contains(body, "sessionTag") {
		t.Fatalf("empty sessionTag should be omitted: %s", body)
	}

	got, err := DecodeMessage([]byte(`{"ownerId":"u2","unitId":"Q3","sessionTag":"auto_batch","version":1}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.OwnerID != "u2" || got.UnitID != "Q3" || got.SessionTag != "auto_batch" {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if _, err := DecodeMessage([]byte("{bad")); err == nil {
		t.Fatalf("expected decode error")
	}
}

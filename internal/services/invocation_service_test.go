package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"
	"github.com/osvaldoandrade/comfyq/pkg/persistence/memory"
)

func newLedger(t *testing.T) persistence.InvocationStorage {
	t.Helper()
	p, err := memory.NewPlugin(persistence.PluginConfig{Retention: time.Hour})
	if err != nil {
		t.Fatalf("memory.NewPlugin: %v", err)
	}
	return p.Invocations()
}

func TestRunRecordsCompletedInvocation(t *testing.T) {
	engine := &fakeEngine{promptID: "p-9", outputs: imageOutputs}
	ledger := newLedger(t)
	svc := NewInvocationService(newTestToolService(t, engine), ledger, nil, nil)

	res, err := svc.Run(context.Background(), "generate_image", domain.Params{"prompt": "x"}, ModeSync)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.InvocationID == "" {
		t.Fatal("invocation id should be set")
	}
	inv, err := svc.Get(context.Background(), res.InvocationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.Status != domain.InvocationCompleted || inv.URL != res.URL || inv.PromptID != "p-9" || inv.Mode != ModeSync {
		t.Fatalf("ledger record = %+v", inv)
	}
	if inv.Payload()["image_url"] != res.URL {
		t.Fatalf("payload = %v", inv.Payload())
	}
}

func TestRunRecordsFailure(t *testing.T) {
	engine := &fakeEngine{submitErr: &domain.Error{Kind: domain.KindSubmissionRejected, Status: 400, Body: "bad"}}
	ledger := newLedger(t)
	svc := NewInvocationService(newTestToolService(t, engine), ledger, nil, nil)

	_, err := svc.Run(context.Background(), "generate_image", domain.Params{"prompt": "x"}, ModeStream)
	if domain.KindOf(err) != domain.KindSubmissionRejected {
		t.Fatalf("expected submission_rejected, got %v", err)
	}
	counts, _ := ledger.CountByStatus(context.Background())
	if counts[domain.InvocationFailed] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestRunUnknownToolIsNotRecorded(t *testing.T) {
	ledger := newLedger(t)
	svc := NewInvocationService(newTestToolService(t, &fakeEngine{}), ledger, nil, nil)
	if _, err := svc.Run(context.Background(), "nope", nil, ModeSync); domain.KindOf(err) != domain.KindUnknownTool {
		t.Fatalf("expected unknown_tool, got %v", err)
	}
	counts, _ := ledger.CountByStatus(context.Background())
	for s, n := range counts {
		if n != 0 {
			t.Fatalf("unexpected %s record", s)
		}
	}
}

func TestStartAsyncDeliversSignedWebhook(t *testing.T) {
	type delivery struct {
		body      []byte
		timestamp string
		signature string
	}
	received := make(chan delivery, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- delivery{body: b, timestamp: r.Header.Get(HeaderTimestamp), signature: r.Header.Get(HeaderSignature)}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	engine := &fakeEngine{promptID: "p-async", pendingPolls: 1, outputs: imageOutputs}
	ledger := newLedger(t)
	svc := NewInvocationService(newTestToolService(t, engine), ledger, NewCompletionWebhook(nil, "s3cret", time.Second), nil)

	inv, err := svc.Start(context.Background(), "generate_image", domain.Params{"prompt": "x"}, hook.URL)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if inv.Status != domain.InvocationPending || inv.ID == "" {
		t.Fatalf("accepted record = %+v", inv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	got, err := svc.Get(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.InvocationCompleted || got.PromptID != "p-async" {
		t.Fatalf("final record = %+v", got)
	}

	select {
	case d := <-received:
		ts, err := strconv.ParseInt(d.timestamp, 10, 64)
		if err != nil {
			t.Fatalf("timestamp header = %q", d.timestamp)
		}
		if d.signature != Sign("s3cret", ts, d.body) {
			t.Fatal("signature mismatch")
		}
		var payload map[string]any
		if err := json.Unmarshal(d.body, &payload); err != nil {
			t.Fatalf("webhook body: %v", err)
		}
		if payload["id"] != inv.ID || payload["status"] != "COMPLETED" || payload["image_url"] == nil {
			t.Fatalf("webhook payload = %v", payload)
		}
	default:
		t.Fatal("webhook was not delivered")
	}
}

func TestStartAsyncFailureIsRecorded(t *testing.T) {
	engine := &fakeEngine{outputs: domain.ExecutionOutputs{{NodeID: "12", Gifs: []domain.ArtifactRef{{Filename: "a.gif"}}}}}
	svc := NewInvocationService(newTestToolService(t, engine), newLedger(t), nil, nil)

	inv, err := svc.Start(context.Background(), "generate_image", domain.Params{"prompt": "x"}, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = svc.Wait(context.Background())
	got, _ := svc.Get(context.Background(), inv.ID)
	if got.Status != domain.InvocationFailed || got.ErrorKind != domain.KindNoImageOutput || got.PromptID != "prompt-1" {
		t.Fatalf("final record = %+v", got)
	}
	if got.Payload()["kind"] != "no_image_output_found" {
		t.Fatalf("payload = %v", got.Payload())
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	svc := NewInvocationService(newTestToolService(t, &fakeEngine{}), newLedger(t), nil, nil)
	if _, err := svc.Start(context.Background(), "nope", nil, ""); domain.KindOf(err) != domain.KindUnknownTool {
		t.Fatalf("expected unknown_tool, got %v", err)
	}
	if _, err := svc.Start(context.Background(), "generate_image", nil, "ftp://x"); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook, got %v", err)
	}
}

func TestGetUnknownInvocation(t *testing.T) {
	svc := NewInvocationService(newTestToolService(t, &fakeEngine{}), newLedger(t), nil, nil)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWebhookRejectedStatus(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderSignature) != "" {
			t.Errorf("unsigned webhook expected without secret")
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer hook.Close()

	wh := NewCompletionWebhook(nil, "", time.Second)
	err := wh.Deliver(context.Background(), domain.Invocation{ID: "i", Tool: "generate_image", Status: domain.InvocationFailed, Error: "boom", Webhook: hook.URL})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if err := wh.Deliver(context.Background(), domain.Invocation{ID: "i"}); err != nil {
		t.Fatalf("no webhook should be a no-op: %v", err)
	}
}

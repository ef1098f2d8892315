package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/pkg/config"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/alicebob/miniredis/v2"
)

type webhookCall struct {
	body      []byte
	timestamp string
	signature string
}

func TestHTTPIntegrationFlow(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	comfySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prompt":
			_, _ = w.Write([]byte(`{"prompt_id": "p-42"}`))
		case "/history/p-42":
			_, _ = w.Write([]byte(`{"p-42": {"outputs": {"9": {"images": [{"filename": "ComfyUI_00001_.png", "subfolder": "", "type": "output"}]}}}}`))
		case "/object_info/CheckpointLoaderSimple":
			_, _ = w.Write([]byte(`{"CheckpointLoaderSimple": {"input": {"required": {"ckpt_name": [["flux1-dev-fp8.safetensors"]]}}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(comfySrv.Close)

	callbackCh := make(chan webhookCall, 1)
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		select {
		case callbackCh <- webhookCall{body: b, timestamp: r.Header.Get(services.HeaderTimestamp), signature: r.Header.Get(services.HeaderSignature)}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hookSrv.Close)

	cfg := &config.Config{
		Env:               "test",
		LogLevel:          "error",
		LogFormat:         "json",
		ComfyBaseURL:      comfySrv.URL,
		ComfyPublicURL:    "https://media.example.com",
		PollIntervalMs:    5,
		PollMaxAttempts:   20,
		LedgerBackend:     "redis",
		RedisAddr:         mr.Addr(),
		AuthProvider:      "static",
		AuthToken:         "invoke-token",
		AuthScopes:        []string{"comfyq:invoke"},
		WebhookHmacSecret: "secret",
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config validate: %v", err)
	}

	app, err := NewApplication(cfg, WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	SetupMappings(app)
	server := httptest.NewServer(app.Engine)
	t.Cleanup(server.Close)

	const token = "invoke-token"

	if status, body := doJSON(t, ctx, http.MethodGet, server.URL+"/health", "", nil, nil); status != http.StatusOK {
		t.Fatalf("health status %d body=%s", status, body)
	}
	if status, _ := doJSON(t, ctx, http.MethodGet, server.URL+"/v1/tools", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("tools without token should be 401, got %d", status)
	}
	if status, _ := doJSON(t, ctx, http.MethodPost, server.URL+"/v1/models/refresh", token, nil, nil); status != http.StatusForbidden {
		t.Fatalf("refresh without admin scope should be 403, got %d", status)
	}

	var invoked map[string]any
	status, body := doJSON(t, ctx, http.MethodPost, server.URL+"/v1/tools/generate_image", token, map[string]any{"prompt": "a cat"}, &invoked)
	if status != http.StatusOK {
		t.Fatalf("invoke status %d body=%s", status, body)
	}
	if want := "https://media.example.com/view?filename=ComfyUI_00001_.png&subfolder=&type=output"; invoked["image_url"] != want {
		t.Fatalf("image_url = %v", invoked["image_url"])
	}

	status, body = doJSON(t, ctx, http.MethodPost, server.URL+"/generate_image", token, map[string]any{}, &invoked)
	if status != http.StatusOK || !strings.Contains(body, `"kind":"missing_parameter"`) {
		t.Fatalf("legacy failure status %d body=%s", status, body)
	}

	invID := startInvocation(t, ctx, server.URL, token, hookSrv.URL)
	select {
	case call := <-callbackCh:
		ts, _ := strconv.ParseInt(call.timestamp, 10, 64)
		if call.signature != services.Sign("secret", ts, call.body) {
			t.Fatalf("webhook signature mismatch")
		}
		var payload map[string]any
		_ = json.Unmarshal(call.body, &payload)
		if payload["id"] != invID || payload["status"] != string(domain.InvocationCompleted) || payload["image_url"] == nil {
			t.Fatalf("webhook payload = %v", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected webhook callback")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Invocations.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	var got struct {
		Invocation domain.Invocation `json:"invocation"`
	}
	status, body = doJSON(t, ctx, http.MethodGet, server.URL+"/v1/invocations/"+invID, token, nil, &got)
	if status != http.StatusOK || got.Invocation.Status != domain.InvocationCompleted || got.Invocation.PromptID != "p-42" {
		t.Fatalf("invocation status %d body=%s", status, body)
	}
	if !mr.Exists("comfyq:invocations:" + invID) {
		t.Fatalf("invocation not stored in redis")
	}

	status, body = doJSON(t, ctx, http.MethodGet, server.URL+"/metrics", "", nil, nil)
	if status != http.StatusOK || !strings.Contains(body, "comfyq_tool_invocations_total") {
		t.Fatalf("metrics status %d", status)
	}
}

func startInvocation(t *testing.T, ctx context.Context, baseURL, token, webhook string) string {
	t.Helper()
	body := map[string]any{
		"params":  map[string]any{"prompt": "a lighthouse"},
		"webhook": webhook,
	}
	var resp domain.Invocation
	status, bodyStr := doJSON(t, ctx, http.MethodPost, baseURL+"/v1/tools/generate_image/invocations", token, body, &resp)
	if status != http.StatusAccepted {
		t.Fatalf("start invocation status %d body=%s", status, bodyStr)
	}
	if resp.ID == "" || resp.Status != domain.InvocationPending {
		t.Fatalf("accepted invocation = %+v", resp)
	}
	return resp.ID
}

func doJSON(t *testing.T, ctx context.Context, method, url, token string, body any, out any) (int, string) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewBuffer(b)
	}
	req, _ := http.NewRequestWithContext(ctx, method, url, buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = json.Unmarshal(b, out)
	}
	return resp.StatusCode, string(b)
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/osvaldoandrade/comfyq/internal/tracing"
	"github.com/osvaldoandrade/comfyq/internal/workflow"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/tidwall/gjson"
)

// EngineClient talks to the remote generation engine (a ComfyUI server).
type EngineClient interface {
	// Submit queues a bound graph and returns the engine's prompt id.
	Submit(ctx context.Context, g *workflow.Graph, clientID string) (string, error)
	// History reports the outputs of a prompt; done is false while the engine has
	// no outputs for it. History never changes engine state.
	History(ctx context.Context, promptID string) (outputs domain.ExecutionOutputs, done bool, err error)
	// CheckpointModels lists the checkpoints CheckpointLoaderSimple can load.
	CheckpointModels(ctx context.Context) ([]string, error)
	BaseURL() string
}

type comfyClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewComfyClient(baseURL string, timeout time.Duration) EngineClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &comfyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *comfyClient) BaseURL() string { return c.baseURL }

type submitRequest struct {
	Prompt   *workflow.Graph `json:"prompt"`
	ClientID string          `json:"client_id,omitempty"`
}

func (c *comfyClient) Submit(ctx context.Context, g *workflow.Graph, clientID string) (string, error) {
	body, err := json.Marshal(submitRequest{Prompt: g, ClientID: clientID})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	status, out, err := c.do(ctx, http.MethodPost, "/prompt", body)
	if err != nil {
		return "", &domain.Error{Kind: domain.KindTransport, Err: err}
	}
	if status != http.StatusOK {
		return "", &domain.Error{Kind: domain.KindSubmissionRejected, Status: status, Body: string(out)}
	}
	id := gjson.GetBytes(out, "prompt_id").String()
	if id == "" {
		return "", &domain.Error{Kind: domain.KindTransport, Err: fmt.Errorf("submit response has no prompt_id: %s", truncate(out, 256))}
	}
	return id, nil
}

func (c *comfyClient) History(ctx context.Context, promptID string) (domain.ExecutionOutputs, bool, error) {
	status, out, err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, false, &domain.Error{Kind: domain.KindTransport, PromptID: promptID, Err: err}
	}
	if status != http.StatusOK {
		return nil, false, &domain.Error{Kind: domain.KindTransport, PromptID: promptID, Status: status, Err: fmt.Errorf("history returned %d: %s", status, truncate(out, 256))}
	}
	if !gjson.ValidBytes(out) {
		return nil, false, &domain.Error{Kind: domain.KindTransport, PromptID: promptID, Err: errors.New("history response is not JSON")}
	}
	outputs, done := ParseHistory(out, promptID)
	return outputs, done, nil
}

func (c *comfyClient) CheckpointModels(ctx context.Context) ([]string, error) {
	status, out, err := c.do(ctx, http.MethodGet, "/object_info/CheckpointLoaderSimple", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("object_info returned %d", status)
	}
	names := gjson.GetBytes(out, "CheckpointLoaderSimple.input.required.ckpt_name.0")
	if !names.IsArray() {
		return nil, errors.New("object_info has no ckpt_name list")
	}
	var models []string
	for _, n := range names.Array() {
		if s := n.String(); s != "" {
			models = append(models, s)
		}
	}
	return models, nil
}

func (c *comfyClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectHeaders(ctx, req.Header)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out, nil
}

// ParseHistory extracts the outputs record for promptID from a /history response.
// Nodes keep the engine's order. Array entries are read leniently: objects with a
// filename, bare filename strings, and nested lists (as some video nodes emit)
// are all accepted; anything else is skipped.
func ParseHistory(body []byte, promptID string) (domain.ExecutionOutputs, bool) {
	outputs := gjson.GetBytes(body, workflow.EscapePath(promptID)+".outputs")
	if !outputs.IsObject() {
		return nil, false
	}
	var res domain.ExecutionOutputs
	outputs.ForEach(func(key, node gjson.Result) bool {
		res = append(res, domain.NodeOutput{
			NodeID:    key.String(),
			Images:    artifactRefs(node.Get(string(domain.ArrayImages))),
			Gifs:      artifactRefs(node.Get(string(domain.ArrayGifs))),
			Filenames: artifactRefs(node.Get(string(domain.ArrayFilenames))),
		})
		return true
	})
	if len(res) == 0 {
		return nil, false
	}
	return res, true
}

func artifactRefs(v gjson.Result) []domain.ArtifactRef {
	if !v.IsArray() {
		return nil
	}
	var refs []domain.ArtifactRef
	for _, e := range v.Array() {
		switch {
		case e.IsObject():
			name := e.Get("filename").String()
			if name == "" {
				continue
			}
			refs = append(refs, domain.ArtifactRef{
				Filename:  name,
				Subfolder: e.Get("subfolder").String(),
				Type:      e.Get("type").String(),
			})
		case e.IsArray():
			refs = append(refs, artifactRefs(e)...)
		case e.Type == gjson.String && e.String() != "":
			refs = append(refs, domain.ArtifactRef{Filename: e.String()})
		}
	}
	return refs
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

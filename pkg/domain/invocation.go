package domain

import (
	"encoding"
	"time"
)

type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "PENDING"
	InvocationRunning   InvocationStatus = "RUNNING"
	InvocationCompleted InvocationStatus = "COMPLETED"
	InvocationFailed    InvocationStatus = "FAILED"
)

func (s InvocationStatus) Terminal() bool {
	return s == InvocationCompleted || s == InvocationFailed
}

// Invocation is the ledger record of one tool call.
type Invocation struct {
	ID        string           `json:"id"`
	Tool      string           `json:"tool"`
	Template  string           `json:"template"`
	Mode      string           `json:"mode"` // sync | stream | async | mcp
	PromptID  string           `json:"promptId,omitempty"`
	Status    InvocationStatus `json:"status"`
	ResultKey string           `json:"resultKey,omitempty"`
	URL       string           `json:"url,omitempty"`
	Artifacts []string         `json:"artifacts,omitempty"`
	ErrorKind ErrorKind        `json:"errorKind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Webhook   string           `json:"webhook,omitempty"`
	// TraceParent/TraceState keep the W3C context of the request that started the invocation.
	TraceParent string    `json:"traceParent,omitempty"`
	TraceState  string    `json:"traceState,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Payload renders the record in the same discriminated shape as a synchronous call.
func (i Invocation) Payload() map[string]any {
	out := map[string]any{
		"id":     i.ID,
		"tool":   i.Tool,
		"status": i.Status,
	}
	if i.PromptID != "" {
		out["prompt_id"] = i.PromptID
	}
	switch i.Status {
	case InvocationCompleted:
		out[i.ResultKey] = i.URL
		if len(i.Artifacts) > 1 {
			out["urls"] = i.Artifacts
		}
	case InvocationFailed:
		out["error"] = i.Error
		if i.ErrorKind != "" {
			out["kind"] = string(i.ErrorKind)
		}
	}
	return out
}

var (
	_ encoding.BinaryMarshaler = InvocationStatus("")
	_ encoding.TextMarshaler   = InvocationStatus("")
)

func (s InvocationStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s InvocationStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

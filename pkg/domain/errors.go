package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindUnknownTool        ErrorKind = "unknown_tool"
	KindMissingParameter   ErrorKind = "missing_parameter"
	KindUnboundNode        ErrorKind = "unbound_node"
	KindUnknownModel       ErrorKind = "unknown_model"
	KindTemplateNotFound   ErrorKind = "template_not_found"
	KindInvalidTemplate    ErrorKind = "invalid_template"
	KindSubmissionRejected ErrorKind = "submission_rejected"
	KindOutputNodeMissing  ErrorKind = "output_node_missing"
	KindNoRecognizedOutput ErrorKind = "no_recognized_output"
	KindNoImageOutput      ErrorKind = "no_image_output_found"
	KindExecutionTimeout   ErrorKind = "execution_timeout"
	KindTransport          ErrorKind = "transport"
)

// Error is the single structured failure produced by the orchestration pipeline.
// Only the fields relevant to a kind are populated.
type Error struct {
	Kind     ErrorKind
	Tool     string
	Template string
	Node     string
	Param    string
	PromptID string
	Status   int
	Body     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindUnknownTool:
		fmt.Fprintf(&b, "unknown tool %q", e.Tool)
	case KindMissingParameter:
		fmt.Fprintf(&b, "missing required parameter %q for tool %s", e.Param, e.Tool)
	case KindUnboundNode:
		fmt.Fprintf(&b, "node %s not found in workflow %s (tool %s)", e.Node, e.Template, e.Tool)
	case KindUnknownModel:
		fmt.Fprintf(&b, "model %q is not available on the engine", e.Param)
	case KindTemplateNotFound:
		fmt.Fprintf(&b, "workflow template %s not found", e.Template)
	case KindInvalidTemplate:
		fmt.Fprintf(&b, "workflow template %s is invalid", e.Template)
	case KindSubmissionRejected:
		fmt.Fprintf(&b, "failed to queue workflow: %d - %s", e.Status, e.Body)
	case KindOutputNodeMissing:
		fmt.Fprintf(&b, "output node %s missing from results of prompt %s", e.Node, e.PromptID)
	case KindNoRecognizedOutput:
		fmt.Fprintf(&b, "output node %s has no images, gifs or filenames", e.Node)
	case KindNoImageOutput:
		fmt.Fprintf(&b, "no output node with images found for prompt %s", e.PromptID)
	case KindExecutionTimeout:
		fmt.Fprintf(&b, "workflow %s did not complete within %d attempts", e.PromptID, e.Attempts)
	case KindTransport:
		b.WriteString("engine request failed")
	default:
		b.WriteString(string(e.Kind))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so callers can write errors.Is(err, &Error{Kind: ...}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrorPayload renders the caller-facing failure body.
func ErrorPayload(err error) map[string]any {
	out := map[string]any{"error": err.Error()}
	if k := KindOf(err); k != "" {
		out["kind"] = string(k)
	}
	return out
}

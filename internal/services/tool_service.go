package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/comfyq/internal/metrics"
	"github.com/osvaldoandrade/comfyq/internal/providers"
	"github.com/osvaldoandrade/comfyq/internal/resolver"
	"github.com/osvaldoandrade/comfyq/internal/tools"
	"github.com/osvaldoandrade/comfyq/internal/tracing"
	"github.com/osvaldoandrade/comfyq/internal/workflow"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ToolService runs one tool invocation end to end:
// lookup, load, bind, submit, poll, resolve.
type ToolService interface {
	Tools() []domain.ToolDefinition
	Tool(name string) (domain.ToolDefinition, error)
	Invoke(ctx context.Context, name string, params domain.Params, opts ...InvokeOption) (domain.ToolResult, error)
}

type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	progress func(domain.ProgressEvent)
}

// WithProgress registers fn to receive the starting, queued and processing
// stages. It is called synchronously from the invoking goroutine.
func WithProgress(fn func(domain.ProgressEvent)) InvokeOption {
	return func(o *invokeOptions) { o.progress = fn }
}

type toolService struct {
	table     *tools.Table
	templates workflow.TemplateStore
	engine    providers.EngineClient
	poller    Poller
	resolver  *resolver.Resolver
	models    ModelCatalog
	timeout   time.Duration
	logger    *slog.Logger
}

func NewToolService(
	table *tools.Table,
	templates workflow.TemplateStore,
	engine providers.EngineClient,
	poller Poller,
	res *resolver.Resolver,
	models ModelCatalog,
	timeout time.Duration,
	logger *slog.Logger,
) ToolService {
	if logger == nil {
		logger = slog.Default()
	}
	return &toolService{
		table:     table,
		templates: templates,
		engine:    engine,
		poller:    poller,
		resolver:  res,
		models:    models,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *toolService) Tools() []domain.ToolDefinition { return s.table.List() }

func (s *toolService) Tool(name string) (domain.ToolDefinition, error) {
	return s.table.Lookup(name)
}

func (s *toolService) Invoke(ctx context.Context, name string, params domain.Params, opts ...InvokeOption) (res domain.ToolResult, err error) {
	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}
	emit := func(ev domain.ProgressEvent) {
		if o.progress != nil {
			ev.Tool = name
			o.progress(ev)
		}
	}

	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "comfyq.tool.invoke")
	span.SetAttributes(attribute.String("comfyq.tool", name))
	defer func() {
		outcome := metrics.Outcome(err)
		metrics.ToolInvocationsTotal.WithLabelValues(name, outcome).Inc()
		metrics.ToolInvocationDurationSeconds.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
		tracing.RecordError(span, err)
		span.End()
		if err != nil {
			s.logger.Warn("tool invocation failed", "tool", name, "kind", domain.KindOf(err), "err", err)
		}
	}()

	tool, err := s.table.Lookup(name)
	if err != nil {
		return domain.ToolResult{}, err
	}
	span.SetAttributes(attribute.String("comfyq.template", tool.Template))
	emit(domain.ProgressEvent{Stage: domain.StageStarting, Message: "Initializing " + string(tool.Output.Kind) + " generation..."})

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	params, err = s.normalizeModels(tool, params)
	if err != nil {
		return domain.ToolResult{}, err
	}

	g, err := s.templates.Load(ctx, tool.Template)
	if err != nil {
		return domain.ToolResult{}, withTool(err, tool)
	}
	if _, err = workflow.Bind(g, tool, params); err != nil {
		return domain.ToolResult{}, err
	}

	promptID, err := s.submit(ctx, tool, g)
	if err != nil {
		return domain.ToolResult{}, err
	}
	span.SetAttributes(attribute.String("comfyq.prompt_id", promptID))
	emit(domain.ProgressEvent{Stage: domain.StageQueued, PromptID: promptID})

	outputs, attempts, err := s.await(ctx, tool, promptID, func(attempt int) {
		if attempt == 1 {
			emit(domain.ProgressEvent{Stage: domain.StageProcessing, PromptID: promptID, Attempt: attempt, Message: "Generating " + string(tool.Output.Kind) + "..."})
		}
	})
	if err != nil {
		return domain.ToolResult{}, withTool(err, tool)
	}

	r, err := s.resolver.Resolve(outputs, tool, promptID)
	if err != nil {
		return domain.ToolResult{}, err
	}
	res = domain.ToolResult{
		Tool:      tool.Name,
		Kind:      tool.Output.Kind,
		URL:       r.URL(),
		Artifacts: r.URLs,
		PromptID:  promptID,
		Source:    r.NodeID + ":" + string(r.Array),
		Attempts:  attempts,
	}
	s.logger.Info("tool invocation complete",
		"tool", tool.Name, "prompt_id", promptID, "url", res.URL,
		"attempts", attempts, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (s *toolService) normalizeModels(tool domain.ToolDefinition, params domain.Params) (domain.Params, error) {
	if s.models == nil {
		return params, nil
	}
	var out domain.Params
	for _, b := range tool.Bindings {
		if !b.Model {
			continue
		}
		name, ok := params[b.Name].(string)
		if !ok {
			continue
		}
		normalized, err := s.models.Normalize(name)
		if err != nil {
			return nil, withTool(err, tool)
		}
		if normalized == name {
			continue
		}
		if out == nil {
			out = make(domain.Params, len(params))
			for k, v := range params {
				out[k] = v
			}
		}
		out[b.Name] = normalized
	}
	if out == nil {
		return params, nil
	}
	return out, nil
}

func (s *toolService) submit(ctx context.Context, tool domain.ToolDefinition, g *workflow.Graph) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "comfyq.engine.submit")
	defer span.End()

	promptID, err := s.engine.Submit(ctx, g, uuid.NewString())
	metrics.EngineSubmissionsTotal.WithLabelValues(tool.Name, metrics.Outcome(err)).Inc()
	if err != nil {
		tracing.RecordError(span, err)
		return "", withTool(err, tool)
	}
	span.SetAttributes(attribute.String("comfyq.prompt_id", promptID))
	s.logger.Info("workflow submitted", "tool", tool.Name, "template", tool.Template, "prompt_id", promptID)
	return promptID, nil
}

func (s *toolService) await(ctx context.Context, tool domain.ToolDefinition, promptID string, observe func(int)) (domain.ExecutionOutputs, int, error) {
	ctx, span := tracing.Tracer().Start(ctx, "comfyq.engine.poll")
	defer span.End()

	outputs, attempts, err := s.poller.Await(ctx, promptID, observe)
	span.SetAttributes(attribute.Int("comfyq.poll.attempts", attempts))
	metrics.EnginePollAttempts.WithLabelValues(tool.Name).Observe(float64(attempts))
	tracing.RecordError(span, err)
	return outputs, attempts, err
}

// withTool fills the tool and template on a pipeline error that was raised
// below the tool layer.
func withTool(err error, tool domain.ToolDefinition) error {
	derr, ok := err.(*domain.Error)
	if !ok {
		return err
	}
	if derr.Tool == "" {
		derr.Tool = tool.Name
	}
	if derr.Template == "" {
		derr.Template = tool.Template
	}
	return derr
}

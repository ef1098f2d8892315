// Package mcpserver exposes the tool table as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"

	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "comfyq"
	ServerVersion = "1.0.0"
)

// New builds an MCP server with one tool per entry of the tool table.
func New(toolSvc services.ToolService, invocations services.InvocationService, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))
	s.AddTools(Tools(toolSvc, invocations, logger)...)
	return s
}

// Tools adapts each tool definition into a server tool.
func Tools(toolSvc services.ToolService, invocations services.InvocationService, logger *slog.Logger) []server.ServerTool {
	if logger == nil {
		logger = slog.Default()
	}
	defs := toolSvc.Tools()
	out := make([]server.ServerTool, 0, len(defs))
	for _, def := range defs {
		out = append(out, server.ServerTool{
			Tool:    Definition(def),
			Handler: handler(def.Name, invocations, logger),
		})
	}
	return out
}

// Definition derives the MCP input schema from the tool's bindings.
func Definition(def domain.ToolDefinition) mcp.Tool {
	props := make(map[string]any, len(def.Bindings))
	var required []string
	for _, name := range def.ParameterNames() {
		b, _ := def.Binding(name)
		prop := map[string]any{"type": schemaType(b.Type)}
		if b.Description != "" {
			prop["description"] = b.Description
		}
		if b.HasDefault() {
			prop["default"] = b.Default
		}
		props[name] = prop
		if b.Required {
			required = append(required, name)
		}
	}
	description := def.Description
	if description == "" {
		description = "Run the " + def.Template + " workflow and return the " + string(def.Output.Kind) + " URL."
	}
	return mcp.Tool{
		Name:        def.Name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func schemaType(t string) string {
	switch t {
	case "integer", "number", "boolean", "string":
		return t
	}
	return "string"
}

// handler runs the tool synchronously. Pipeline failures become IsError results
// carrying the same {"error", "kind"} body the HTTP routes return.
func handler(name string, invocations services.InvocationService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := integralNumbers(req.GetArguments())
		res, err := invocations.Run(ctx, name, params, services.ModeMCP)
		if err != nil {
			logger.Warn("mcp tool call failed", "tool", name, "kind", domain.KindOf(err), "err", err)
			return mcp.NewToolResultError(encode(domain.ErrorPayload(err))), nil
		}
		body := res.Payload()
		if res.InvocationID != "" {
			body["invocation_id"] = res.InvocationID
		}
		return mcp.NewToolResultText(encode(body)), nil
	}
}

// integralNumbers turns whole float64 arguments into json.Number literals so
// large seeds are written to the graph as integers, never in exponent form.
// Arguments arrive already decoded as float64; digits beyond 2^53 are lost
// before the handler runs.
func integralNumbers(args map[string]any) domain.Params {
	params := make(domain.Params, len(args))
	for k, v := range args {
		if f, ok := v.(float64); ok && !math.IsInf(f, 0) && f == math.Trunc(f) {
			v = json.Number(strconv.FormatFloat(f, 'f', -1, 64))
		}
		params[k] = v
	}
	return params
}

func encode(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error": "unencodable result"}`
	}
	return string(b)
}

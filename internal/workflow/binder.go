package workflow

import (
	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

type assignment struct {
	binding domain.ParameterBinding
	value   any
}

// Bind writes params into g at the coordinates declared by tool and returns g.
//
// Every required parameter must be present and every binding that receives a
// value must point at an existing node; both are checked before the first write,
// so a failed bind leaves g untouched. Parameters without a binding are ignored.
// A nil value counts as absent.
func Bind(g *Graph, tool domain.ToolDefinition, params domain.Params) (*Graph, error) {
	for _, b := range tool.Bindings {
		if !b.Required {
			continue
		}
		if v, ok := params[b.Name]; !ok || v == nil {
			return nil, &domain.Error{Kind: domain.KindMissingParameter, Tool: tool.Name, Template: tool.Template, Param: b.Name}
		}
	}

	plan := make([]assignment, 0, len(tool.Bindings))
	for _, b := range tool.Bindings {
		v, ok := params[b.Name]
		if !ok || v == nil {
			if !b.HasDefault() {
				continue
			}
			v = b.Default
		}
		if !g.HasNode(b.NodeID) {
			return nil, &domain.Error{Kind: domain.KindUnboundNode, Tool: tool.Name, Template: tool.Template, Node: b.NodeID, Param: b.Name}
		}
		plan = append(plan, assignment{binding: b, value: v})
	}

	for _, a := range plan {
		if err := g.SetInput(a.binding.NodeID, a.binding.InputKey, a.value); err != nil {
			return nil, &domain.Error{Kind: domain.KindInvalidTemplate, Tool: tool.Name, Template: tool.Template, Node: a.binding.NodeID, Param: a.binding.Name, Err: err}
		}
	}
	return g, nil
}

package domain

type OutputKind string

const (
	OutputImage OutputKind = "image"
	OutputVideo OutputKind = "video"
)

// ResultKey is the caller-facing key that carries the artifact URL.
func (k OutputKind) ResultKey() string {
	if k == OutputVideo {
		return "video_url"
	}
	return "image_url"
}

func (k OutputKind) Valid() bool {
	return k == OutputImage || k == OutputVideo
}

// Params is the named parameter set supplied by a caller.
type Params map[string]any

// ParameterBinding maps one logical parameter to one (node, input) coordinate of a graph template.
type ParameterBinding struct {
	Name     string `yaml:"name" json:"name"`
	NodeID   string `yaml:"node" json:"node"`
	InputKey string `yaml:"input" json:"input"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default  any    `yaml:"default,omitempty" json:"default,omitempty"`
	// Model marks values that name a checkpoint known to the engine.
	Model       bool   `yaml:"model,omitempty" json:"model,omitempty"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

func (b ParameterBinding) HasDefault() bool { return b.Default != nil }

// OutputSpecification says where the artifact of a tool is found. An empty NodeID
// means the first node exposing images wins.
type OutputSpecification struct {
	Kind   OutputKind `yaml:"kind" json:"kind"`
	NodeID string     `yaml:"node,omitempty" json:"node,omitempty"`
}

type ToolDefinition struct {
	Name        string              `yaml:"name" json:"name"`
	Template    string              `yaml:"template" json:"template"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Bindings    []ParameterBinding  `yaml:"bindings" json:"bindings"`
	Output      OutputSpecification `yaml:"output" json:"output"`
}

func (t ToolDefinition) ResultKey() string { return t.Output.Kind.ResultKey() }

// Binding returns the first binding declared for a parameter name.
func (t ToolDefinition) Binding(name string) (ParameterBinding, bool) {
	for _, b := range t.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return ParameterBinding{}, false
}

// ParameterNames lists distinct parameter names in declaration order.
func (t ToolDefinition) ParameterNames() []string {
	seen := make(map[string]struct{}, len(t.Bindings))
	out := make([]string, 0, len(t.Bindings))
	for _, b := range t.Bindings {
		if _, ok := seen[b.Name]; ok {
			continue
		}
		seen[b.Name] = struct{}{}
		out = append(out, b.Name)
	}
	return out
}

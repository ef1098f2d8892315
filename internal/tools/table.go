package tools

import (
	"fmt"
	"os"
	"strings"

	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"gopkg.in/yaml.v3"
)

// Table is the read-only tool specification table. Build it once with Load or
// LoadFile; nothing mutates it afterwards.
type Table struct {
	byName map[string]domain.ToolDefinition
	order  []string
}

type document struct {
	Tools []domain.ToolDefinition `yaml:"tools"`
}

// Load parses a YAML tool table and checks it for internal consistency. Bindings
// are not checked against template graphs here; that happens at bind time.
func Load(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tool table: %w", err)
	}
	t := &Table{byName: make(map[string]domain.ToolDefinition, len(doc.Tools))}
	var errs []string
	for i, def := range doc.Tools {
		def.Name = strings.TrimSpace(def.Name)
		def.Template = strings.TrimSpace(def.Template)
		if def.Output.Kind == "" {
			def.Output.Kind = domain.OutputImage
		}
		if msg := validate(def); msg != "" {
			errs = append(errs, fmt.Sprintf("tools[%d]: %s", i, msg))
			continue
		}
		if _, dup := t.byName[def.Name]; dup {
			errs = append(errs, fmt.Sprintf("tools[%d]: duplicate tool %q", i, def.Name))
			continue
		}
		t.byName[def.Name] = def
		t.order = append(t.order, def.Name)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid tool table: %s", strings.Join(errs, "; "))
	}
	return t, nil
}

// LoadFile reads a tool table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

func validate(def domain.ToolDefinition) string {
	switch {
	case def.Name == "":
		return "name is required"
	case def.Template == "":
		return fmt.Sprintf("%s: template is required", def.Name)
	case !def.Output.Kind.Valid():
		return fmt.Sprintf("%s: output kind %q must be image or video", def.Name, def.Output.Kind)
	}
	for j, b := range def.Bindings {
		if strings.TrimSpace(b.Name) == "" || strings.TrimSpace(b.NodeID) == "" || strings.TrimSpace(b.InputKey) == "" {
			return fmt.Sprintf("%s: bindings[%d] needs name, node and input", def.Name, j)
		}
	}
	return ""
}

// Lookup returns the definition for name or an unknown_tool error.
func (t *Table) Lookup(name string) (domain.ToolDefinition, error) {
	def, ok := t.byName[name]
	if !ok {
		return domain.ToolDefinition{}, &domain.Error{Kind: domain.KindUnknownTool, Tool: name}
	}
	return def, nil
}

// List returns every definition in declaration order.
func (t *Table) List() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}
	return out
}

func (t *Table) Len() int { return len(t.order) }

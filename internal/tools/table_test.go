package tools

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/osvaldoandrade/comfyq/catalog"
	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	table, err := Load(catalog.ToolsYAML())
	if err != nil {
		t.Fatalf("Load embedded: %v", err)
	}
	if table.Len() < 5 {
		t.Fatalf("expected shipped tools, got %d", table.Len())
	}

	def, err := table.Lookup("generate_image")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if def.Template != "flux-dev-workflow" {
		t.Errorf("template = %q", def.Template)
	}
	if def.ResultKey() != "image_url" {
		t.Errorf("result key = %q", def.ResultKey())
	}
	prompt, ok := def.Binding("prompt")
	if !ok || !prompt.Required || prompt.NodeID != "6" || prompt.InputKey != "text" {
		t.Errorf("prompt binding = %+v", prompt)
	}
	width, _ := def.Binding("width")
	if width.Default != 1024 {
		t.Errorf("width default = %#v", width.Default)
	}

	video, err := table.Lookup("generate_video")
	if err != nil {
		t.Fatalf("Lookup video: %v", err)
	}
	if video.ResultKey() != "video_url" || video.Output.NodeID != "58" {
		t.Errorf("video output = %+v", video.Output)
	}

	i2v, err := table.Lookup("image_to_video")
	if err != nil {
		t.Fatalf("Lookup i2v: %v", err)
	}
	for name, want := range map[string]int{"width": 832, "height": 480, "frame_length": 49} {
		b, ok := i2v.Binding(name)
		if !ok || b.NodeID != "50" || b.Default != want {
			t.Errorf("i2v %s binding = %+v", name, b)
		}
	}
}

func TestLookupUnknownTool(t *testing.T) {
	table, err := Load([]byte("tools: []"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = table.Lookup("nope")
	if domain.KindOf(err) != domain.KindUnknownTool {
		t.Fatalf("expected unknown_tool, got %v", err)
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Tool != "nope" {
		t.Fatalf("error should name the tool: %v", err)
	}
}

func TestLoadPreservesOrderAndDefaultsKind(t *testing.T) {
	table, err := Load([]byte(`
tools:
  - name: b
    template: t1
    bindings: [{name: prompt, node: "6", input: text}]
  - name: a
    template: t2
    output: {kind: video, node: "9"}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	list := table.List()
	if len(list) != 2 || list[0].Name != "b" || list[1].Name != "a" {
		t.Fatalf("order = %+v", list)
	}
	if list[0].Output.Kind != domain.OutputImage {
		t.Errorf("default kind = %q", list[0].Output.Kind)
	}
}

func TestLoadRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing template", "tools: [{name: x}]", "template is required"},
		{"bad kind", "tools: [{name: x, template: t, output: {kind: audio}}]", "must be image or video"},
		{"duplicate", "tools: [{name: x, template: t}, {name: x, template: t}]", "duplicate tool"},
		{"incomplete binding", `tools: [{name: x, template: t, bindings: [{name: p, node: "6"}]}]`, "needs name, node and input"},
		{"bad yaml", "tools: [", "parse tool table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	if err := os.WriteFile(path, []byte("tools: [{name: x, template: t}]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := table.Lookup("x"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

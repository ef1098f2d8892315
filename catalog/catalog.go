// Package catalog embeds the default tool table and workflow templates shipped
// with the server.
package catalog

import (
	"embed"
	"io/fs"
)

//go:embed tools.yaml workflows/*.json
var files embed.FS

// ToolsYAML returns the embedded tool table.
func ToolsYAML() []byte {
	b, err := files.ReadFile("tools.yaml")
	if err != nil {
		panic(err)
	}
	return b
}

// Workflows returns the embedded template directory, one <template-id>.json per graph.
func Workflows() fs.FS {
	sub, err := fs.Sub(files, "workflows")
	if err != nil {
		panic(err)
	}
	return sub
}

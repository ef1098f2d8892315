package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Graph is one editable copy of a workflow template in the engine's API format:
// a JSON object from node id to {"class_type": ..., "inputs": {...}}. Edits keep
// the template's byte layout, so binding the same values into two fresh copies
// yields identical documents.
type Graph struct {
	raw []byte
}

// Parse validates data as a graph document and takes a private copy of it.
func Parse(data []byte) (*Graph, error) {
	data = bytes.TrimSpace(data)
	if !gjson.ValidBytes(data) {
		return nil, errors.New("graph is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New("graph must be a JSON object of nodes")
	}
	var bad string
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			bad = key.String()
			return false
		}
		return true
	})
	if bad != "" {
		return nil, fmt.Errorf("graph node %s is not an object", bad)
	}
	return &Graph{raw: append([]byte(nil), data...)}, nil
}

func (g *Graph) HasNode(id string) bool {
	return gjson.GetBytes(g.raw, EscapePath(id)).IsObject()
}

// NodeIDs lists node ids in document order.
func (g *Graph) NodeIDs() []string {
	var ids []string
	gjson.ParseBytes(g.raw).ForEach(func(key, _ gjson.Result) bool {
		ids = append(ids, key.String())
		return true
	})
	return ids
}

// ClassType returns the node's class_type, or "" when absent.
func (g *Graph) ClassType(id string) string {
	return gjson.GetBytes(g.raw, EscapePath(id)+".class_type").String()
}

// Input returns the current value of nodes[id].inputs[key].
func (g *Graph) Input(id, key string) gjson.Result {
	return gjson.GetBytes(g.raw, EscapePath(id)+".inputs."+EscapePath(key))
}

// SetInput writes nodes[id].inputs[key] = value. The node must exist.
func (g *Graph) SetInput(id, key string, value any) error {
	if !g.HasNode(id) {
		return fmt.Errorf("node %s not found", id)
	}
	path := EscapePath(id) + ".inputs." + EscapePath(key)
	var (
		out []byte
		err error
	)
	if n, ok := value.(json.Number); ok {
		out, err = sjson.SetRawBytes(g.raw, path, []byte(n.String()))
	} else {
		out, err = sjson.SetBytes(g.raw, path, value)
	}
	if err != nil {
		return fmt.Errorf("set %s.inputs.%s: %w", id, key, err)
	}
	g.raw = out
	return nil
}

// Bytes returns the serialized document. Callers must not modify it.
func (g *Graph) Bytes() []byte { return g.raw }

func (g *Graph) MarshalJSON() ([]byte, error) { return g.raw, nil }

func (g *Graph) Clone() *Graph {
	return &Graph{raw: append([]byte(nil), g.raw...)}
}

// EscapePath quotes the characters gjson/sjson treat as path syntax so a node
// id, input key or prompt id is matched literally as one path component.
func EscapePath(component string) string {
	if !strings.ContainsAny(component, `.*?|#@\`) {
		return component
	}
	var b strings.Builder
	for _, r := range component {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

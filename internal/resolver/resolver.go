// Package resolver turns the engine's terminal outputs into artifact URLs.
package resolver

import (
	"net/url"
	"path"
	"strings"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true, ".mkv": true, ".avi": true, ".m4v": true,
}

// Resolution is what Resolve found: the chosen node/array and the URL of each entry.
type Resolution struct {
	NodeID string
	Array  domain.OutputArray
	URLs   []string
}

func (r Resolution) URL() string {
	if len(r.URLs) == 0 {
		return ""
	}
	return r.URLs[0]
}

// Resolver builds /view URLs against baseURL, the address callers use to reach
// the engine's static-file endpoint.
type Resolver struct {
	baseURL string
}

func New(baseURL string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve picks the artifact for tool out of outputs.
//
// With an explicit output node, that node must be present and its first populated
// array among images, gifs, filenames (in that order) is used. Without one, the
// first node with non-empty images wins; for video tools with several such nodes
// the first whose leading entry has a video extension is preferred.
func (r *Resolver) Resolve(outputs domain.ExecutionOutputs, tool domain.ToolDefinition, promptID string) (Resolution, error) {
	if id := tool.Output.NodeID; id != "" {
		node, ok := outputs.Node(id)
		if !ok {
			return Resolution{}, &domain.Error{Kind: domain.KindOutputNodeMissing, Tool: tool.Name, Template: tool.Template, Node: id, PromptID: promptID}
		}
		for _, arr := range domain.ArrayPriority {
			if refs := node.Array(arr); len(refs) > 0 {
				return r.resolution(node.NodeID, arr, refs), nil
			}
		}
		return Resolution{}, &domain.Error{Kind: domain.KindNoRecognizedOutput, Tool: tool.Name, Template: tool.Template, Node: id, PromptID: promptID}
	}

	var candidates []domain.NodeOutput
	for _, n := range outputs {
		if len(n.Images) > 0 {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return Resolution{}, &domain.Error{Kind: domain.KindNoImageOutput, Tool: tool.Name, Template: tool.Template, PromptID: promptID}
	}
	chosen := candidates[0]
	if tool.Output.Kind == domain.OutputVideo && len(candidates) > 1 {
		for _, n := range candidates {
			if IsVideoFile(n.Images[0].Filename) {
				chosen = n
				break
			}
		}
	}
	return r.resolution(chosen.NodeID, domain.ArrayImages, chosen.Images), nil
}

func (r *Resolver) resolution(nodeID string, arr domain.OutputArray, refs []domain.ArtifactRef) Resolution {
	res := Resolution{NodeID: nodeID, Array: arr, URLs: make([]string, 0, len(refs))}
	for _, ref := range refs {
		res.URLs = append(res.URLs, r.ViewURL(ref))
	}
	return res
}

// ViewURL composes {base}/view?filename=..&subfolder=..&type=output. The
// parameter order is fixed; values are query-escaped.
func (r *Resolver) ViewURL(ref domain.ArtifactRef) string {
	return r.baseURL + "/view?filename=" + url.QueryEscape(ref.Filename) +
		"&subfolder=" + url.QueryEscape(ref.Subfolder) + "&type=output"
}

func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}

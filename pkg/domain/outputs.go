package domain

// OutputArray names one of the result arrays the engine may attach to an output node.
type OutputArray string

const (
	ArrayImages    OutputArray = "images"
	ArrayGifs      OutputArray = "gifs"
	ArrayFilenames OutputArray = "filenames"
)

// ArrayPriority is the fixed order used to pick an array inside an explicit output node.
var ArrayPriority = []OutputArray{ArrayImages, ArrayGifs, ArrayFilenames}

type ArtifactRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
}

type NodeOutput struct {
	NodeID    string        `json:"node"`
	Images    []ArtifactRef `json:"images,omitempty"`
	Gifs      []ArtifactRef `json:"gifs,omitempty"`
	Filenames []ArtifactRef `json:"filenames,omitempty"`
}

func (n NodeOutput) Array(a OutputArray) []ArtifactRef {
	switch a {
	case ArrayImages:
		return n.Images
	case ArrayGifs:
		return n.Gifs
	case ArrayFilenames:
		return n.Filenames
	}
	return nil
}

// ExecutionOutputs keeps output nodes in the order the engine reported them.
type ExecutionOutputs []NodeOutput

func (o ExecutionOutputs) Node(id string) (NodeOutput, bool) {
	for _, n := range o {
		if n.NodeID == id {
			return n, true
		}
	}
	return NodeOutput{}, false
}

type JobState string

const (
	JobPending  JobState = "PENDING"
	JobComplete JobState = "COMPLETE"
)

type ToolResult struct {
	Tool         string     `json:"tool"`
	Kind         OutputKind `json:"kind"`
	URL          string     `json:"url"`
	Artifacts    []string   `json:"artifacts,omitempty"`
	PromptID     string     `json:"promptId"`
	Source       string     `json:"source,omitempty"` // node:array the URL came from
	Attempts     int        `json:"attempts"`
	InvocationID string     `json:"invocationId,omitempty"`
}

// Payload renders the caller-facing success body, e.g. {"image_url": "..."}.
func (r ToolResult) Payload() map[string]any {
	out := map[string]any{r.Kind.ResultKey(): r.URL}
	if len(r.Artifacts) > 1 {
		out["urls"] = r.Artifacts
	}
	if r.PromptID != "" {
		out["prompt_id"] = r.PromptID
	}
	return out
}

type ProgressStage string

const (
	StageStarting   ProgressStage = "starting"
	StageQueued     ProgressStage = "queued"
	StageProcessing ProgressStage = "processing"
)

type ProgressEvent struct {
	Stage    ProgressStage `json:"status"`
	Tool     string        `json:"tool"`
	PromptID string        `json:"prompt_id,omitempty"`
	Attempt  int           `json:"attempt,omitempty"`
	Message  string        `json:"message,omitempty"`
}

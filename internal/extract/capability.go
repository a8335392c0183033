package extract

import "context"

// Call purposes, used to label logs, stats and metrics.
const (
	PurposeClassify = "classify"
	PurposeExtract  = "extract"
	PurposeYear     = "year"
)

// Request is one call to the extraction capability: a PDF, a prompt, and an
// optional JSON schema the response must conform to.
type Request struct {
	Purpose   string
	Document  []byte
	Prompt    string
	Schema    map[string]any
	MaxTokens int
}

// Capability reads a document and a prompt and returns text. When a schema
// is supplied the text is a JSON document intended to conform to it.
// Implementations do not distinguish failure subtypes for callers beyond
// returning an error.
type Capability interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, req Request) (string, error)

func (f CapabilityFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

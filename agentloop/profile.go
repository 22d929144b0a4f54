package agentloop

// ProviderProfile pairs a model with its system prompt and the tools it may
// call.
type ProviderProfile interface {
	// ID returns the provider identifier (e.g. "openai").
	ID() string

	// ModelID returns the model identifier (e.g. "gpt-4o-mini").
	ModelID() string

	// ToolRegistry returns the tools offered to the model.
	ToolRegistry() *ToolRegistry

	// BuildSystemPrompt constructs the full system prompt from environment
	// context and project documentation.
	BuildSystemPrompt(env Environment, projectDocs string) string

	SupportsParallelToolCalls() bool
	ContextWindowSize() int
}

// BaseProfile provides common profile fields and default implementations.
type BaseProfile struct {
	providerID                string
	model                     string
	registry                  *ToolRegistry
	supportsParallelToolCalls bool
	contextWindowSize         int
}

func (p *BaseProfile) ID() string                      { return p.providerID }
func (p *BaseProfile) ModelID() string                 { return p.model }
func (p *BaseProfile) ToolRegistry() *ToolRegistry     { return p.registry }
func (p *BaseProfile) SupportsParallelToolCalls() bool { return p.supportsParallelToolCalls }
func (p *BaseProfile) ContextWindowSize() int          { return p.contextWindowSize }

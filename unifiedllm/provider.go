package unifiedllm

import "context"

// ProviderAdapter sends requests to one LLM backend.
type ProviderAdapter interface {
	// Name is the identifier requests are routed by, e.g. "openai".
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ModelDefaulter is implemented by adapters configured with a model. The
// client stamps it on requests that name none so middleware and logs see the
// model that actually served the call.
type ModelDefaulter interface {
	DefaultModel() string
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// completeFunc is the shape shared by adapters and the middleware chain.
type completeFunc func(ctx context.Context, req Request) (*Response, error)

// chain wraps h so that mw[0] runs outermost.
func chain(h completeFunc, mw []Middleware) completeFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		m, next := mw[i], h
		h = func(ctx context.Context, req Request) (*Response, error) {
			return m(ctx, req, next)
		}
	}
	return h
}

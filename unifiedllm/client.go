package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Middleware wraps a provider call; next invokes the rest of the chain.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client holds registered provider adapters, routes requests by provider
// name and applies middleware.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware adds middleware to the client. The first registered runs
// outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient builds a Client. With exactly one provider and no explicit
// default, that provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{providers: make(map[string]ProviderAdapter)}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds adapter under name. The first provider registered
// on a client without a default becomes the default.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

func (c *Client) lookup(name string) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == "" {
		name = c.defaultProvider
	}
	switch adapter, ok := c.providers[name]; {
	case name == "":
		return nil, &ConfigurationError{SDKError: SDKError{Message: "no provider specified and no default provider configured"}}
	case !ok:
		return nil, &ConfigurationError{SDKError: SDKError{Message: fmt.Sprintf("provider %q is not registered", name)}}
	default:
		return adapter, nil
	}
}

// Complete routes req to its provider through the middleware chain. Provider
// and Model are filled from the adapter when the request leaves them empty.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.lookup(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	if d, ok := adapter.(ModelDefaulter); ok && req.Model == "" {
		req.Model = d.DefaultModel()
	}
	return chain(adapter.Complete, c.middleware)(ctx, req)
}

// Close closes every provider that holds resources.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	for name, adapter := range c.providers {
		closer, ok := adapter.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// LoggingMiddleware logs every completion at debug level and failures at
// warn level.
func LoggingMiddleware(log logrus.FieldLogger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := logrus.Fields{
			"provider": req.Provider,
			"model":    req.Model,
			"messages": len(req.Messages),
			"duration": time.Since(start),
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("llm request failed")
			return nil, err
		}
		fields["finish_reason"] = resp.FinishReason.Reason
		fields["tool_calls"] = len(resp.ToolCalls())
		log.WithFields(fields).Debug("llm request completed")
		return resp, nil
	}
}

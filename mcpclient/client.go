// Package mcpclient connects to a coding tool server over MCP and exposes the
// tools it advertises as an agentloop.ToolRegistry.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/martinemde/codingagent/agentloop"
)

const (
	// DefaultEndpoint is where the tool server listens by default.
	DefaultEndpoint = "http://localhost:8092/mcp/"
	// ClientName identifies this client during the MCP handshake.
	ClientName = "coding-agent"
)

// Options tunes Connect. The zero value is usable.
type Options struct {
	// HTTPClient carries the streamable HTTP traffic. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
	// MaxRetries bounds transport reconnects. Zero keeps the SDK default,
	// negative disables reconnects.
	MaxRetries int
	Version    string
}

// ToolError is returned by a tool executor when the server marks a call
// result as an error.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Connect opens a session with the tool server at endpoint over streamable
// HTTP. The caller must close the session.
func Connect(ctx context.Context, endpoint string, opts *Options) (*mcp.ClientSession, error) {
	if opts == nil {
		opts = &Options{}
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	transport := &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: opts.HTTPClient,
		MaxRetries: opts.MaxRetries,
	}
	session, err := ConnectTransport(ctx, transport, opts.Version)
	if err != nil {
		return nil, fmt.Errorf("connecting to tool server at %s: %w", endpoint, err)
	}
	return session, nil
}

// ConnectTransport opens a session over an arbitrary MCP transport.
func ConnectTransport(ctx context.Context, transport mcp.Transport, version string) (*mcp.ClientSession, error) {
	if version == "" {
		version = "dev"
	}
	client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: version}, nil)
	return client.Connect(ctx, transport, nil)
}

// LoadTools lists every tool the server advertises, following pagination,
// and registers an executor for each that forwards calls over session. The
// registry is only valid while session is open.
func LoadTools(ctx context.Context, session *mcp.ClientSession, log logrus.FieldLogger) (*agentloop.ToolRegistry, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	registry := agentloop.NewToolRegistry()
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		for _, tool := range res.Tools {
			schema, err := schemaMap(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
			}
			registry.Register(agentloop.RegisteredTool{
				Definition: agentloop.ToolDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  schema,
				},
				Executor: toolExecutor(session, tool.Name, log),
			})
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
	log.Debugf("discovered tools: %s", strings.Join(registry.Names(), ", "))
	return registry, nil
}

// schemaMap normalizes a tool input schema, whatever its decoded shape, to a
// JSON object map.
func schemaMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding input schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("input schema is not an object: %w", err)
	}
	return m, nil
}

func toolExecutor(session *mcp.ClientSession, name string, log logrus.FieldLogger) agentloop.ToolExecutor {
	log = log.WithField("tool", name)
	return func(ctx context.Context, arguments json.RawMessage) (string, error) {
		if len(strings.TrimSpace(string(arguments))) == 0 {
			arguments = json.RawMessage("{}")
		}
		start := time.Now()
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
		if err != nil {
			log.WithError(err).Warn("tool call failed")
			return "", fmt.Errorf("calling tool %s: %w", name, err)
		}
		text := ResultText(res)
		log.WithFields(logrus.Fields{
			"duration": time.Since(start),
			"is_error": res.IsError,
		}).Debug("tool call finished")
		if res.IsError {
			return "", &ToolError{Tool: name, Message: text}
		}
		return text, nil
	}
}

// ResultText joins the text content of a tool result. Non-text content is
// summarized by its type.
func ResultText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch c := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", c.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s]", c.MIMEType))
		case *mcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource %s]", c.URI))
		default:
			parts = append(parts, fmt.Sprintf("[%T]", c))
		}
	}
	return strings.Join(parts, "\n")
}

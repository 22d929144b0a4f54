package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/codingagent/codeexec"
	"github.com/martinemde/codingagent/toolserver"
	"github.com/martinemde/codingagent/workspace"
)

func newToolServer(t *testing.T) (*mcp.Server, *workspace.Workspace) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tool server tests use a POSIX shell as the interpreter")
	}
	logger, _ := test.NewNullLogger()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	ts, err := toolserver.New(toolserver.Options{
		Executor: codeexec.New(codeexec.Config{
			Interpreter: []string{"/bin/sh"},
			FileSuffix:  ".sh",
			TempDir:     t.TempDir(),
			Logger:      logger,
		}),
		Workspace: ws,
		Logger:    logger,
	})
	require.NoError(t, err)
	server := toolserver.NewServer("test")
	require.NoError(t, ts.RegisterServer(server))
	return server, ws
}

func connectInMemory(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	session, err := ConnectTransport(ctx, clientTransport, "test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
		_ = serverSession.Wait()
	})
	return session
}

func TestLoadToolsFromToolServer(t *testing.T) {
	server, ws := newToolServer(t)
	session := connectInMemory(t, server)
	logger, _ := test.NewNullLogger()

	registry, err := LoadTools(context.Background(), session, logger)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"add_package", "create_file", "execute_python_code",
		"list_files", "read_file", "remove_package",
	}, registry.Names())

	exec := registry.Get("execute_python_code")
	require.NotNil(t, exec)
	assert.NotEmpty(t, exec.Definition.Description)
	assert.Equal(t, "object", exec.Definition.Parameters["type"])
	assert.Contains(t, exec.Definition.Parameters["properties"], "code")

	ctx := context.Background()
	out, err := registry.Get("create_file").Executor(ctx, json.RawMessage(`{"filename":"hello.sh","content":"echo hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "✅ File created: hello.sh", out)
	assert.True(t, ws.FileExists("hello.sh"))

	out, err = exec.Executor(ctx, json.RawMessage(`{"code":"echo 'Hello, World!'"}`))
	require.NoError(t, err)
	assert.Equal(t, "✅ Success:\nHello, World!\n", out)

	// Tool-level failures are text, not errors.
	out, err = registry.Get("read_file").Executor(ctx, json.RawMessage(`{"filename":"missing.py"}`))
	require.NoError(t, err)
	assert.Equal(t, "❌ File not found: missing.py", out)

	out, err = registry.Get("list_files").Executor(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "📂 Contents of .:\n📄 hello.sh", out)
}

type echoArgs struct {
	Text string `json:"text"`
}

func TestLoadToolsPagesAndReportsErrors(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "paged", Version: "test"}, &mcp.ServerOptions{PageSize: 1})
	mcp.AddTool(server, &mcp.Tool{Name: "echo", Description: "echoes"},
		func(_ context.Context, _ *mcp.CallToolRequest, in echoArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: in.Text}}}, nil, nil
		})
	mcp.AddTool(server, &mcp.Tool{Name: "explode", Description: "always fails"},
		func(context.Context, *mcp.CallToolRequest, echoArgs) (*mcp.CallToolResult, any, error) {
			return nil, nil, errors.New("kaboom")
		})
	mcp.AddTool(server, &mcp.Tool{Name: "third", Description: "pads the listing"},
		func(context.Context, *mcp.CallToolRequest, echoArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{}, nil, nil
		})
	session := connectInMemory(t, server)

	registry, err := LoadTools(context.Background(), session, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, registry.Count())

	out, err := registry.Get("echo").Executor(context.Background(), json.RawMessage(`{"text":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	_, err = registry.Get("explode").Executor(context.Background(), json.RawMessage(`{"text":"x"}`))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "explode", toolErr.Tool)
	assert.Contains(t, toolErr.Message, "kaboom")
}

func TestConnectStreamableHTTP(t *testing.T) {
	server, _ := newToolServer(t)
	logger, _ := test.NewNullLogger()
	srv := httptest.NewServer(toolserver.NewHandler(server, logger))
	defer srv.Close()

	ctx := context.Background()
	session, err := Connect(ctx, srv.URL+"/mcp/", &Options{HTTPClient: srv.Client(), MaxRetries: -1, Version: "test"})
	require.NoError(t, err)
	defer session.Close()

	registry, err := LoadTools(ctx, session, logger)
	require.NoError(t, err)
	assert.Equal(t, 6, registry.Count())
}

func TestConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	_, err := Connect(context.Background(), url+"/mcp/", &Options{MaxRetries: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to tool server")
}

func TestResultText(t *testing.T) {
	res := &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: "line one"},
		&mcp.ImageContent{MIMEType: "image/png"},
		&mcp.TextContent{Text: "line two"},
	}}
	assert.Equal(t, "line one\n[image image/png]\nline two", ResultText(res))
	assert.Equal(t, "", ResultText(&mcp.CallToolResult{}))
}

func TestSchemaMap(t *testing.T) {
	m, err := schemaMap(nil)
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])

	m, err = schemaMap(json.RawMessage(`{"type":"object","properties":{"code":{"type":"string"}}}`))
	require.NoError(t, err)
	assert.Contains(t, m["properties"], "code")

	_, err = schemaMap([]string{"not", "an", "object"})
	assert.Error(t, err)
}

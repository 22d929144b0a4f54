// Package toolserver exposes code execution, package management and file
// tools over the Model Context Protocol.
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/martinemde/codingagent/codeexec"
	"github.com/martinemde/codingagent/workspace"
)

const (
	ServerName = "CodingAgent"

	DefaultPackageTimeout = 120 * time.Second
)

// DefaultPackageManager is the argv prefix for package operations; the
// subcommand and package name are appended.
var DefaultPackageManager = []string{"uv"}

// Options configures a ToolSet.
type Options struct {
	Executor  *codeexec.Executor
	Workspace *workspace.Workspace
	// PackageManager defaults to DefaultPackageManager.
	PackageManager []string
	// PackageTimeout bounds add_package and remove_package.
	PackageTimeout time.Duration
	Logger         logrus.FieldLogger
}

// ToolSet implements the MCP tool handlers.
type ToolSet struct {
	exec           *codeexec.Executor
	ws             *workspace.Workspace
	packageManager []string
	packageTimeout time.Duration
	log            logrus.FieldLogger
}

func New(opts Options) (*ToolSet, error) {
	if opts.Executor == nil {
		return nil, errors.New("toolserver: executor is required")
	}
	if opts.Workspace == nil {
		return nil, errors.New("toolserver: workspace is required")
	}
	ts := &ToolSet{
		exec:           opts.Executor,
		ws:             opts.Workspace,
		packageManager: opts.PackageManager,
		packageTimeout: opts.PackageTimeout,
		log:            opts.Logger,
	}
	if len(ts.packageManager) == 0 {
		ts.packageManager = DefaultPackageManager
	}
	if ts.packageTimeout <= 0 {
		ts.packageTimeout = DefaultPackageTimeout
	}
	if ts.log == nil {
		ts.log = logrus.StandardLogger()
	}
	return ts, nil
}

// NewServer creates the MCP server that RegisterServer populates.
func NewServer(version string) *mcp.Server {
	impl := &mcp.Implementation{
		Name:    ServerName,
		Title:   "Coding agent tools: run Python, manage packages, read and write files",
		Version: version,
	}
	opts := &mcp.ServerOptions{
		Instructions: `This MCP server runs Python code and manages the packages and files of a local uv project.

Code passed to execute_python_code runs on the host with no sandboxing, bounded only by a wall-clock timeout.
Install missing third-party packages with add_package before importing them.
`,
	}
	return mcp.NewServer(impl, opts)
}

func (ts *ToolSet) RegisterServer(server *mcp.Server) error {
	mcp.AddTool(server, ExecutePythonCode, ts.ExecutePythonCode)
	mcp.AddTool(server, AddPackage, ts.AddPackage)
	mcp.AddTool(server, RemovePackage, ts.RemovePackage)
	mcp.AddTool(server, CreateFile, ts.CreateFile)
	mcp.AddTool(server, ReadFile, ts.ReadFile)
	mcp.AddTool(server, ListFiles, ts.ListFiles)
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (ts *ToolSet) ExecutePythonCode(ctx context.Context,
	_ *mcp.CallToolRequest, args ExecutePythonCodeParams,
) (*mcp.CallToolResult, *ExecutePythonCodeResult, error) {
	res := ts.exec.Execute(ctx, codeexec.Request{Source: args.Code})
	ts.log.WithFields(logrus.Fields{
		"tool":         ExecutePythonCode.Name,
		"execution_id": res.ID,
		"failure_kind": res.FailureKind,
		"duration":     res.Duration,
	}).Info("executed code")

	out := &ExecutePythonCodeResult{
		Succeeded:   res.Succeeded,
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
		ExitStatus:  res.ExitStatus,
		FailureKind: string(res.FailureKind),
	}
	return textResult(FormatExecution(res, ts.exec.Timeout())), out, nil
}

func (ts *ToolSet) AddPackage(ctx context.Context,
	_ *mcp.CallToolRequest, args PackageParams,
) (*mcp.CallToolResult, any, error) {
	return textResult(ts.runPackageCommand(ctx, "add", args.PackageName, addVerbs)), nil, nil
}

func (ts *ToolSet) RemovePackage(ctx context.Context,
	_ *mcp.CallToolRequest, args PackageParams,
) (*mcp.CallToolResult, any, error) {
	return textResult(ts.runPackageCommand(ctx, "remove", args.PackageName, removeVerbs)), nil, nil
}

func (ts *ToolSet) runPackageCommand(ctx context.Context, subcommand, name string, verbs packageVerbs) string {
	name = strings.TrimSpace(name)
	if err := validatePackageName(name); err != nil {
		return fmt.Sprintf("%s Error: %v", markFailure, err)
	}
	args := append(append([]string{}, ts.packageManager...), subcommand, name)
	res := ts.exec.Run(ctx, codeexec.Command{Args: args, Timeout: ts.packageTimeout})
	ts.log.WithFields(logrus.Fields{
		"tool":         "package_" + subcommand,
		"package":      name,
		"execution_id": res.ID,
		"failure_kind": res.FailureKind,
	}).Info("ran package manager")
	return formatPackage(res, name, verbs, ts.packageTimeout)
}

func validatePackageName(name string) error {
	if name == "" {
		return errors.New("package name is required")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("invalid package name %q", name)
	}
	return nil
}

func (ts *ToolSet) CreateFile(_ context.Context,
	_ *mcp.CallToolRequest, args CreateFileParams,
) (*mcp.CallToolResult, any, error) {
	if args.Filename == "" {
		return textResult(markFailure + " Error creating file: filename is required"), nil, nil
	}
	if err := ts.ws.WriteFile(args.Filename, args.Content); err != nil {
		ts.log.WithError(err).WithField("tool", CreateFile.Name).Warn("failed to create file")
		return textResult(fmt.Sprintf("%s Error creating file: %v", markFailure, err)), nil, nil
	}
	return textResult(fmt.Sprintf("%s File created: %s", markSuccess, args.Filename)), nil, nil
}

func (ts *ToolSet) ReadFile(_ context.Context,
	_ *mcp.CallToolRequest, args ReadFileParams,
) (*mcp.CallToolResult, any, error) {
	content, err := ts.ws.ReadFile(args.Filename)
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return textResult(fmt.Sprintf("%s File not found: %s", markFailure, args.Filename)), nil, nil
	case err != nil:
		return textResult(fmt.Sprintf("%s Error reading file: %v", markFailure, err)), nil, nil
	}
	return textResult(fmt.Sprintf("%s Content of %s:\n%s", markFile, args.Filename, content)), nil, nil
}

func (ts *ToolSet) ListFiles(_ context.Context,
	_ *mcp.CallToolRequest, args ListFilesParams,
) (*mcp.CallToolResult, any, error) {
	dir := args.Directory
	if dir == "" {
		dir = "."
	}
	entries, err := ts.ws.ListDirectory(dir)
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return textResult(fmt.Sprintf("%s Directory not found: %s", markFailure, dir)), nil, nil
	case err != nil:
		return textResult(fmt.Sprintf("%s Error listing files: %v", markFailure, err)), nil, nil
	}
	return textResult(FormatListing(dir, entries)), nil, nil
}

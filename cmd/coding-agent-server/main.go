package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/martinemde/codingagent/cliutil"
	"github.com/martinemde/codingagent/codeexec"
	"github.com/martinemde/codingagent/config"
	"github.com/martinemde/codingagent/toolserver"
	"github.com/martinemde/codingagent/version"
	"github.com/martinemde/codingagent/workspace"
)

func main() {
	if err := newApp().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "coding-agent-server",
		Short:         "MCP tool server for the coding agent: run Python, manage packages, read and write files",
		Version:       strings.TrimPrefix(version.Version, "v"),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cliutil.AddLogFlags(cmd)
	cmd.PersistentFlags().String("env-file", "", "Load environment variables from this file (default .env)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return cliutil.ProcessLogFlags(cmd, logrus.StandardLogger())
	}
	cmd.AddCommand(
		newServeCommand(),
		newToolsCommand(),
	)
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over streamable HTTP",
		Long: `Serve MCP over streamable HTTP.

The endpoint is http://ADDR/mcp/. Code runs on this host without sandboxing.`,
		Args: cobra.NoArgs,
		RunE: serveAction,
	}
	flags := cmd.Flags()
	flags.String("addr", toolserver.DefaultAddr, "Listen address")
	flags.String("workdir", "", "Directory that file tools and executed code operate in (default: current directory)")
	flags.Duration("exec-timeout", codeexec.DefaultTimeout, "Wall-clock limit for execute_python_code")
	flags.Duration("package-timeout", toolserver.DefaultPackageTimeout, "Wall-clock limit for add_package and remove_package")
	flags.String("interpreter", strings.Join(codeexec.DefaultInterpreter, " "), "Interpreter command, shell-quoted; the script path is appended")
	flags.String("package-manager", strings.Join(toolserver.DefaultPackageManager, " "), "Package manager command, shell-quoted; the subcommand and package are appended")
	flags.Int64("max-concurrent", 0, "Maximum simultaneous executions (0 = unbounded)")
	flags.Int("max-source-bytes", 0, "Reject code larger than this many bytes (0 = unbounded)")
	return cmd
}

// loadServerConfig reads the environment and then applies flags the user set
// explicitly.
func loadServerConfig(cmd *cobra.Command) (*config.Server, error) {
	cfg, err := config.LoadServer(envFiles(cmd)...)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("workdir") {
		cfg.WorkDir, _ = flags.GetString("workdir")
	}
	if flags.Changed("exec-timeout") {
		cfg.ExecTimeout, _ = flags.GetDuration("exec-timeout")
	}
	if flags.Changed("package-timeout") {
		cfg.PackageTimeout, _ = flags.GetDuration("package-timeout")
	}
	if flags.Changed("interpreter") {
		s, _ := flags.GetString("interpreter")
		if err := cfg.Interpreter.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("parsing --interpreter: %w", err)
		}
	}
	if flags.Changed("package-manager") {
		s, _ := flags.GetString("package-manager")
		if err := cfg.PackageManager.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("parsing --package-manager: %w", err)
		}
	}
	if flags.Changed("max-concurrent") {
		cfg.MaxConcurrent, _ = flags.GetInt64("max-concurrent")
	}
	if flags.Changed("max-source-bytes") {
		cfg.MaxSourceBytes, _ = flags.GetInt("max-source-bytes")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envFiles returns the --env-file value, looked up through parent persistent
// flags.
func envFiles(cmd *cobra.Command) []string {
	if f := cmd.Flag("env-file"); f != nil && f.Value.String() != "" {
		return []string{f.Value.String()}
	}
	return nil
}

func newToolSet(cfg *config.Server, log logrus.FieldLogger) (*toolserver.ToolSet, error) {
	ws, err := workspace.New(cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(ws.Root()); err != nil {
		return nil, err
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("workdir %q is not a directory", ws.Root())
	}
	executor := codeexec.New(codeexec.Config{
		Interpreter:    cfg.Interpreter,
		Timeout:        cfg.ExecTimeout,
		TempDir:        cfg.TempDir,
		Dir:            ws.Root(),
		MaxConcurrent:  cfg.MaxConcurrent,
		MaxSourceBytes: cfg.MaxSourceBytes,
		Logger:         log,
	})
	return toolserver.New(toolserver.Options{
		Executor:       executor,
		Workspace:      ws,
		PackageManager: cfg.PackageManager,
		PackageTimeout: cfg.PackageTimeout,
		Logger:         log,
	})
}

func serveAction(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}
	log := logrus.StandardLogger()
	ts, err := newToolSet(cfg, log)
	if err != nil {
		return err
	}
	server := toolserver.NewServer(version.Version)
	if err := ts.RegisterServer(server); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"interpreter":  strings.Join(cfg.Interpreter, " "),
		"exec_timeout": cfg.ExecTimeout,
		"workdir":      cfg.WorkDir,
	}).Info("starting tool server")
	return toolserver.Serve(ctx, cfg.Addr, toolserver.NewHandler(server, log), log)
}

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool manifest as JSON",
		Args:  cobra.NoArgs,
		RunE:  toolsAction,
	}
}

func toolsAction(cmd *cobra.Command, _ []string) error {
	info, err := inspectTools(cmd.Context())
	if err != nil {
		return err
	}
	j, err := json.MarshalIndent(info, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(j))
	return err
}

// Info is the manifest printed by the tools command.
type Info struct {
	Server string      `json:"server"`
	Tools  []*mcp.Tool `json:"tools"`
}

// inspectTools lists the registered tools over in-memory transports, exactly
// as a remote client would see them.
func inspectTools(ctx context.Context) (*Info, error) {
	ts, err := newToolSet(&config.Server{}, logrus.StandardLogger())
	if err != nil {
		return nil, err
	}
	server := toolserver.NewServer(version.Version)
	if err = ts.RegisterServer(server); err != nil {
		return nil, err
	}
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, err
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "client"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return nil, err
	}
	var tools []*mcp.Tool
	for tool, err := range clientSession.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	if err = clientSession.Close(); err != nil {
		return nil, err
	}
	if err = serverSession.Wait(); err != nil {
		return nil, err
	}
	return &Info{Server: toolserver.ServerName, Tools: tools}, nil
}

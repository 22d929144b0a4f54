package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/martinemde/codingagent/agentloop"
	"github.com/martinemde/codingagent/cliutil"
	"github.com/martinemde/codingagent/codingagent"
	"github.com/martinemde/codingagent/config"
	"github.com/martinemde/codingagent/mcpclient"
	"github.com/martinemde/codingagent/unifiedllm"
	"github.com/martinemde/codingagent/version"
	"github.com/martinemde/codingagent/workspace"
)

// interruptSignals end the current task and the REPL.
var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	if err := newApp().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coding-agent",
		Short: "Interactive Python coding agent backed by an MCP tool server",
		Long: `Interactive Python coding agent backed by an MCP tool server.

Start the tool server first:
  $ coding-agent-server serve

Then run the agent and type coding tasks at the prompt.`,
		Version:       strings.TrimPrefix(version.Version, "v"),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          replAction,
	}
	cliutil.AddLogFlags(cmd)
	flags := cmd.PersistentFlags()
	flags.String("env-file", "", "Load environment variables from this file (default .env)")
	flags.String("server-url", "", "Tool server MCP endpoint (default "+mcpclient.DefaultEndpoint+")")
	flags.String("model", "", "OpenAI model (default "+unifiedllm.DefaultOpenAIModel+")")
	flags.Float64("temperature", unifiedllm.DefaultTemperature, "Sampling temperature")
	flags.Int("max-tool-rounds", 0, "Maximum model round trips per task (0 = unlimited)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return cliutil.ProcessLogFlags(cmd, logrus.StandardLogger())
	}
	cmd.AddCommand(newRunCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "run TASK...",
		Short:   "Run a single task and print the final answer",
		Example: `  $ coding-agent run "Create a script that prints the first 10 primes"`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    runAction,
	}
}

// loadClientConfig reads the environment and then applies flags the user set
// explicitly.
func loadClientConfig(cmd *cobra.Command) (*config.Client, error) {
	var files []string
	if f := cmd.Flag("env-file"); f != nil && f.Value.String() != "" {
		files = append(files, f.Value.String())
	}
	cfg, err := config.LoadClient(files...)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flag("server-url"); f != nil && f.Changed {
		cfg.ServerURL = f.Value.String()
	}
	if f := cmd.Flag("model"); f != nil && f.Changed {
		cfg.Model = f.Value.String()
	}
	flags := cmd.Flags()
	if cmd.Flag("temperature").Changed {
		cfg.Temperature, _ = flags.GetFloat64("temperature")
	}
	if cmd.Flag("max-tool-rounds").Changed {
		cfg.MaxToolRounds, _ = flags.GetInt("max-tool-rounds")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newAgent wires the LLM client, the agent loop configuration and the tool
// server endpoint from cfg.
func newAgent(cfg *config.Client, log *logrus.Logger) (*codingagent.Agent, error) {
	adapterOpts := []unifiedllm.GollmAdapterOption{
		unifiedllm.WithModel(cfg.Model),
		unifiedllm.WithTemperature(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		adapterOpts = append(adapterOpts, unifiedllm.WithMaxTokens(cfg.MaxTokens))
	}
	adapter, err := unifiedllm.NewGollmAdapter("openai", cfg.OpenAIAPIKey, adapterOpts...)
	if err != nil {
		return nil, err
	}
	llm := unifiedllm.NewClient(
		unifiedllm.WithProvider("openai", adapter),
		unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(log)),
	)

	session := agentloop.DefaultSessionConfig()
	session.MaxToolRoundsPerInput = cfg.MaxToolRounds
	session.RetryPolicy.MaxRetries = cfg.LLMMaxRetries
	temperature := cfg.Temperature
	session.Temperature = &temperature
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		session.MaxTokens = &maxTokens
	}
	session.Logger = log

	ws, err := workspace.New("")
	if err != nil {
		return nil, err
	}
	return codingagent.New(codingagent.Options{
		LLM:       llm,
		Model:     cfg.Model,
		ServerURL: cfg.ServerURL,
		Session:   &session,
		Env:       ws,
		Logger:    log,
		Version:   version.Version,
	})
}

func replAction(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), interruptSignals...)
	defer stop()

	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}
	agent, err := newAgent(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}

	var p prompter
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		p = surveyPrompter{}
	} else {
		p = newLinePrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return runREPL(ctx, cmd.OutOrStdout(), p, &timedRunner{agent: agent, timeout: cfg.TaskTimeout})
}

func runAction(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), interruptSignals...)
	defer stop()

	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}
	agent, err := newAgent(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	runner := &timedRunner{agent: agent, timeout: cfg.TaskTimeout}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), runner.ExecuteTask(ctx, strings.Join(args, " ")))
	return err
}

// timedRunner bounds each task by timeout.
type timedRunner struct {
	agent   *codingagent.Agent
	timeout time.Duration
}

func (r *timedRunner) ExecuteTask(ctx context.Context, task string) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.agent.ExecuteTask(ctx, task)
}

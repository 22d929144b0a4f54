// Package codingagent runs coding tasks end to end: it connects to the tool
// server, discovers its tools and drives an agentloop session until the model
// produces an answer.
package codingagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/martinemde/codingagent/agentloop"
	"github.com/martinemde/codingagent/mcpclient"
	"github.com/martinemde/codingagent/unifiedllm"
)

const (
	// DefaultFinalMessage is returned when the loop ends without an answer.
	DefaultFinalMessage = "Agent did not produce a final answer."

	workflowStarted  = "--- AGENT WORKFLOW STARTED ---"
	workflowFinished = "--- AGENT WORKFLOW FINISHED ---"
)

// Connector opens a tool server session for one task.
type Connector func(ctx context.Context) (*mcp.ClientSession, error)

// Options configures an Agent.
type Options struct {
	// LLM sends completion requests. Required.
	LLM *unifiedllm.Client
	// Model defaults to unifiedllm.DefaultOpenAIModel.
	Model string
	// ServerURL is the tool server endpoint, used when Connect is nil.
	ServerURL  string
	HTTPClient *http.Client
	// Connect overrides how tool server sessions are opened.
	Connect Connector
	// Session is the loop configuration applied to every task. Nil means
	// agentloop.DefaultSessionConfig.
	Session *agentloop.SessionConfig
	// Env describes the local host for the system prompt. May be nil.
	Env agentloop.Environment
	// Out receives progress lines. Nil means os.Stdout.
	Out    io.Writer
	Logger logrus.FieldLogger
	// Version is reported to the tool server.
	Version string
}

// Agent executes coding tasks. Each task gets its own tool server session
// and conversation.
type Agent struct {
	llm     *unifiedllm.Client
	model   string
	connect Connector
	session agentloop.SessionConfig
	env     agentloop.Environment
	out     io.Writer
	log     logrus.FieldLogger
}

// New validates opts and returns an Agent.
func New(opts Options) (*Agent, error) {
	if opts.LLM == nil {
		return nil, errors.New("codingagent: LLM client is required")
	}
	a := &Agent{
		llm:     opts.LLM,
		model:   opts.Model,
		connect: opts.Connect,
		env:     opts.Env,
		out:     opts.Out,
		log:     opts.Logger,
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.log == nil {
		a.log = logrus.StandardLogger()
	}
	if opts.Session != nil {
		a.session = *opts.Session
	} else {
		a.session = agentloop.DefaultSessionConfig()
	}
	if a.session.Logger == nil {
		a.session.Logger = a.log
	}
	if a.connect == nil {
		mcpOpts := &mcpclient.Options{HTTPClient: opts.HTTPClient, Version: opts.Version}
		url := opts.ServerURL
		a.connect = func(ctx context.Context) (*mcp.ClientSession, error) {
			return mcpclient.Connect(ctx, url, mcpOpts)
		}
	}
	return a, nil
}

// ExecuteTask runs task to completion and returns the agent's final answer.
// It never returns an error: failures are reported in the returned text.
func (a *Agent) ExecuteTask(ctx context.Context, task string) string {
	answer, err := a.executeTask(ctx, task)
	if err != nil {
		a.log.WithError(err).Error("task failed")
		return fmt.Sprintf("❌ Error during task execution: %v", err)
	}
	return answer
}

func (a *Agent) executeTask(ctx context.Context, task string) (string, error) {
	// The tool server session stays open for the whole loop; the registry
	// executors call through it.
	cs, err := a.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := cs.Close(); err != nil {
			a.log.WithError(err).Debug("closing tool server session")
		}
	}()

	registry, err := mcpclient.LoadTools(ctx, cs, a.log)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(a.out, "✅ Loaded %d tools for this task.\n", registry.Count())

	profile := agentloop.NewOpenAIProfile(a.model, registry)
	cfg := a.session
	session := agentloop.NewSession(profile, a.env, a.llm, &cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logEvents(session.Events())
	}()

	fmt.Fprintln(a.out, workflowStarted)
	err = session.Submit(ctx, task)
	session.Close()
	<-done
	if err != nil {
		return "", err
	}
	fmt.Fprintln(a.out, workflowFinished)

	if answer, ok := session.FinalResponse(); ok {
		return answer, nil
	}
	return DefaultFinalMessage, nil
}

// logEvents reports tool activity until the event channel closes.
func (a *Agent) logEvents(events <-chan agentloop.SessionEvent) {
	for ev := range events {
		log := a.log.WithField("session_id", ev.SessionID)
		switch ev.Kind {
		case agentloop.EventToolCallStart:
			log.WithField("tool", ev.Data["tool_name"]).Info("calling tool")
		case agentloop.EventToolCallEnd:
			if msg, ok := ev.Data["error"]; ok {
				log.WithField("tool", ev.Data["tool_name"]).Warnf("tool failed: %v", msg)
			} else {
				log.WithField("tool", ev.Data["tool_name"]).Debugf("tool output: %v", ev.Data["output"])
			}
		case agentloop.EventAssistantTextEnd:
			if text, _ := ev.Data["text"].(string); text != "" {
				log.Debugf("assistant: %s", text)
			}
		case agentloop.EventTurnLimit:
			log.Warnf("turn limit reached: %v", ev.Data)
		}
	}
}

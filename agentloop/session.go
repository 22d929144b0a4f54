package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/martinemde/codingagent/unifiedllm"
)

// ErrSessionClosed is returned by Submit after Close.
var ErrSessionClosed = errors.New("session is closed")

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateProcessing SessionState = "processing"
	StateClosed     SessionState = "closed"
)

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	MaxTurns              int            `json:"max_turns"`                 // 0 = unlimited
	MaxToolRoundsPerInput int            `json:"max_tool_rounds_per_input"` // per user input
	ToolOutputLimits      map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits        map[string]int `json:"tool_line_limits,omitempty"`
	EnableLoopDetection   bool           `json:"enable_loop_detection"`
	LoopDetectionWindow   int            `json:"loop_detection_window"`
	UserInstructions      string         `json:"user_instructions,omitempty"` // appended last to system prompt
	Temperature           *float64       `json:"temperature,omitempty"`
	MaxTokens             *int           `json:"max_tokens,omitempty"`

	// RetryPolicy governs LLM calls only. Tool calls are never retried.
	RetryPolicy unifiedllm.RetryPolicy `json:"-"`
	Logger      logrus.FieldLogger     `json:"-"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxToolRoundsPerInput: 200,
		EnableLoopDetection:   true,
		LoopDetectionWindow:   10,
		RetryPolicy:           unifiedllm.DefaultRetryPolicy(),
	}
}

// Session runs the reason-act loop for one conversation: it calls the model,
// dispatches the tool calls it asks for, feeds the results back and repeats
// until the model answers without tools.
type Session struct {
	id      string
	profile ProviderProfile
	env     Environment
	client  *unifiedllm.Client
	history []Turn
	emitter *EventEmitter
	config  SessionConfig
	log     logrus.FieldLogger
	state   SessionState
	mu      sync.Mutex
}

// NewSession creates a session that sends requests through client. env may
// be nil, in which case the system prompt carries no environment context.
// A nil config selects DefaultSessionConfig.
func NewSession(profile ProviderProfile, env Environment, client *unifiedllm.Client, config *SessionConfig) *Session {
	sessionID := uuid.New().String()

	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Session{
		id:      sessionID,
		profile: profile,
		env:     env,
		client:  client,
		emitter: NewEventEmitter(sessionID, 256),
		config:  cfg,
		log:     log.WithField("session_id", sessionID),
		state:   StateIdle,
	}
	s.emitter.Emit(EventSessionStart, map[string]any{
		"model": profile.ModelID(),
		"tools": profile.ToolRegistry().Names(),
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// Events returns the event channel for the host application. It is closed
// by Close.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Close ends the session and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, map[string]any{"state": string(StateClosed)})
	s.emitter.Close()
}

// FinalResponse returns the text of the last assistant turn that requested
// no tools since the most recent user input. It reports false when the loop
// stopped without such an answer.
func (s *Session) FinalResponse() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		turn := s.history[i]
		switch turn.Kind {
		case TurnUser:
			return "", false
		case TurnAssistant:
			if len(turn.Assistant.ToolCalls) == 0 {
				return turn.Assistant.Content, true
			}
		}
	}
	return "", false
}

// Submit processes a user input through the agentic loop. It returns when
// the model answers without tools, a limit is reached, ctx ends or an LLM
// call fails.
func (s *Session) Submit(ctx context.Context, userInput string) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateProcessing
	s.mu.Unlock()

	err := s.processInput(ctx, userInput)

	s.mu.Lock()
	if s.state == StateProcessing {
		s.state = StateIdle
	}
	s.mu.Unlock()
	return err
}

func (s *Session) processInput(ctx context.Context, userInput string) error {
	s.appendTurn(NewUserTurn(userInput))
	s.emitter.Emit(EventUserInput, map[string]any{"content": userInput})

	for round := 0; ; {
		s.mu.Lock()
		maxRounds := s.config.MaxToolRoundsPerInput
		maxTurns := s.config.MaxTurns
		s.mu.Unlock()

		if maxRounds > 0 && round >= maxRounds {
			s.log.Warnf("stopping after %d tool rounds", round)
			s.emitter.Emit(EventTurnLimit, map[string]any{"round": round})
			return nil
		}
		if turns := s.countTurns(); maxTurns > 0 && turns >= maxTurns {
			s.log.Warnf("stopping after %d turns", turns)
			s.emitter.Emit(EventTurnLimit, map[string]any{"total_turns": turns})
			return nil
		}
		if err := ctx.Err(); err != nil {
			s.fail(err)
			return err
		}

		response, err := unifiedllm.Retry(ctx, s.retryPolicy(), func(ctx context.Context) (*unifiedllm.Response, error) {
			return s.client.Complete(ctx, s.buildRequest())
		})
		if err != nil {
			s.fail(err)
			return fmt.Errorf("LLM request failed: %w", err)
		}

		s.appendTurn(NewAssistantTurn(response))
		toolCalls := response.ToolCalls()
		s.emitter.Emit(EventAssistantTextEnd, map[string]any{
			"text":       response.Text(),
			"tool_calls": len(toolCalls),
		})
		s.checkContextUsage()

		if len(toolCalls) == 0 {
			return nil
		}

		round++
		s.appendTurn(NewToolResultsTurn(s.executeToolCalls(ctx, toolCalls)))
		s.checkLoop()
	}
}

func (s *Session) buildRequest() unifiedllm.Request {
	var projectDocs string
	if s.env != nil {
		projectDocs = DiscoverProjectDocs(s.env.Root())
	}
	systemPrompt := s.profile.BuildSystemPrompt(s.env, projectDocs)

	s.mu.Lock()
	if s.config.UserInstructions != "" {
		systemPrompt += "\n\n# User Instructions\n\n" + s.config.UserInstructions
	}
	temperature := s.config.Temperature
	maxTokens := s.config.MaxTokens
	s.mu.Unlock()

	messages := append([]unifiedllm.Message{unifiedllm.SystemMessage(systemPrompt)},
		ConvertHistoryToMessages(s.History())...)

	return unifiedllm.Request{
		Model:       s.profile.ModelID(),
		Provider:    s.profile.ID(),
		Messages:    messages,
		Tools:       s.profile.ToolRegistry().LLMDefinitions(),
		ToolChoice:  &unifiedllm.ToolChoice{Mode: "auto"},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Metadata:    map[string]string{"session_id": s.id},
	}
}

func (s *Session) retryPolicy() unifiedllm.RetryPolicy {
	s.mu.Lock()
	policy := s.config.RetryPolicy
	s.mu.Unlock()
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			s.log.WithError(err).Warnf("LLM request failed, retry %d in %s", attempt, delay)
		}
	}
	return policy
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.log.WithError(err).Error("agent loop stopped")
	s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
}

func (s *Session) appendTurn(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
}

func (s *Session) checkLoop() {
	s.mu.Lock()
	enabled := s.config.EnableLoopDetection
	window := s.config.LoopDetectionWindow
	s.mu.Unlock()

	if !enabled || !DetectLoop(s.History(), window) {
		return
	}
	warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", window)
	s.log.Warn(warning)
	s.appendTurn(NewSteeringTurn(warning))
	s.emitter.Emit(EventSteeringInjected, map[string]any{"content": warning})
	s.emitter.Emit(EventLoopDetection, map[string]any{"message": warning})
}

// executeToolCalls runs one round of tool calls, concurrently when the
// profile allows, and returns results in call order.
func (s *Session) executeToolCalls(ctx context.Context, toolCalls []unifiedllm.ToolCallData) []unifiedllm.ToolResultData {
	results := make([]unifiedllm.ToolResultData, len(toolCalls))
	if !s.profile.SupportsParallelToolCalls() || len(toolCalls) == 1 {
		for i, tc := range toolCalls {
			results[i] = s.executeSingleTool(ctx, tc)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.executeSingleTool(ctx, tc)
		}()
	}
	wg.Wait()
	return results
}

// executeSingleTool looks up, runs and truncates one tool call. The full
// output goes to the event stream; the model sees the truncated text.
func (s *Session) executeSingleTool(ctx context.Context, call unifiedllm.ToolCallData) unifiedllm.ToolResultData {
	log := s.log.WithFields(logrus.Fields{"tool": call.Name, "call_id": call.ID})
	s.emitter.Emit(EventToolCallStart, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"arguments": string(call.Arguments),
	})

	failed := func(msg string) unifiedllm.ToolResultData {
		log.Warn(msg)
		s.emitter.Emit(EventToolCallEnd, map[string]any{
			"tool_name": call.Name,
			"call_id":   call.ID,
			"error":     msg,
		})
		return unifiedllm.ToolResultData{ToolCallID: call.ID, Content: msg, IsError: true}
	}

	registered := s.profile.ToolRegistry().Get(call.Name)
	if registered == nil {
		return failed(fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	log.Debugf("calling tool with %s", call.Arguments)
	output, err := registered.Executor(ctx, call.Arguments)
	if err != nil {
		return failed(fmt.Sprintf("Tool error (%s): %v", call.Name, err))
	}

	s.mu.Lock()
	charLimits := s.config.ToolOutputLimits
	lineLimits := s.config.ToolLineLimits
	s.mu.Unlock()

	s.emitter.Emit(EventToolCallEnd, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"output":    output,
	})
	return unifiedllm.ToolResultData{
		ToolCallID: call.ID,
		Content:    TruncateToolOutput(output, call.Name, charLimits, lineLimits),
	}
}

// countTurns returns the number of user and assistant turns in the history.
func (s *Session) countTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, turn := range s.history {
		if turn.Kind == TurnUser || turn.Kind == TurnAssistant {
			count++
		}
	}
	return count
}

// checkContextUsage warns when the history approaches the context window,
// estimating four characters per token.
func (s *Session) checkContextUsage() {
	contextWindow := s.profile.ContextWindowSize()
	if contextWindow <= 0 {
		return
	}
	totalChars := 0
	for _, turn := range s.History() {
		totalChars += len(turn.TextContent())
	}

	approxTokens := totalChars / 4
	if approxTokens > contextWindow*8/10 {
		msg := fmt.Sprintf("Context usage at ~%d%% of context window", approxTokens*100/contextWindow)
		s.log.Warn(msg)
		s.emitter.Emit(EventWarning, map[string]any{"message": msg})
	}
}

package agentloop

import (
	"strings"
	"time"

	"github.com/martinemde/codingagent/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	TurnSteering    TurnKind = "steering"
)

// Turn is a single entry in the conversation history. Exactly one of the
// pointer fields is set, matching Kind.
type Turn struct {
	Kind        TurnKind         `json:"kind"`
	Timestamp   time.Time        `json:"timestamp"`
	User        *TextTurn        `json:"user,omitempty"`
	Assistant   *AssistantTurn   `json:"assistant,omitempty"`
	ToolResults *ToolResultsTurn `json:"tool_results,omitempty"`
	Steering    *TextTurn        `json:"steering,omitempty"`
}

// TextTurn holds user input or an injected steering message.
type TextTurn struct {
	Content string `json:"content"`
}

// AssistantTurn holds the model's response.
type AssistantTurn struct {
	Content    string                    `json:"content"`
	ToolCalls  []unifiedllm.ToolCallData `json:"tool_calls,omitempty"`
	Usage      unifiedllm.Usage          `json:"usage"`
	ResponseID string                    `json:"response_id,omitempty"`
}

// ToolResultsTurn holds the results of one round of tool calls, in call
// order.
type ToolResultsTurn struct {
	Results []unifiedllm.ToolResultData `json:"results"`
}

func NewUserTurn(content string) Turn {
	return Turn{Kind: TurnUser, Timestamp: time.Now(), User: &TextTurn{Content: content}}
}

func NewAssistantTurn(resp *unifiedllm.Response) Turn {
	return Turn{
		Kind:      TurnAssistant,
		Timestamp: time.Now(),
		Assistant: &AssistantTurn{
			Content:    resp.Text(),
			ToolCalls:  resp.ToolCalls(),
			Usage:      resp.Usage,
			ResponseID: resp.ID,
		},
	}
}

func NewToolResultsTurn(results []unifiedllm.ToolResultData) Turn {
	return Turn{Kind: TurnToolResults, Timestamp: time.Now(), ToolResults: &ToolResultsTurn{Results: results}}
}

func NewSteeringTurn(content string) Turn {
	return Turn{Kind: TurnSteering, Timestamp: time.Now(), Steering: &TextTurn{Content: content}}
}

// TextContent returns the text carried by the turn. Tool results count
// toward it so callers can estimate context size from it.
func (t Turn) TextContent() string {
	switch {
	case t.User != nil:
		return t.User.Content
	case t.Assistant != nil:
		return t.Assistant.Content
	case t.Steering != nil:
		return t.Steering.Content
	case t.ToolResults != nil:
		var sb strings.Builder
		for _, r := range t.ToolResults.Results {
			sb.WriteString(r.Content)
		}
		return sb.String()
	}
	return ""
}

// ConvertHistoryToMessages converts the turn-based history into LLM messages.
func ConvertHistoryToMessages(history []Turn) []unifiedllm.Message {
	var messages []unifiedllm.Message
	for _, turn := range history {
		switch turn.Kind {
		case TurnUser:
			messages = append(messages, unifiedllm.UserMessage(turn.User.Content))
		case TurnAssistant:
			msg := unifiedllm.AssistantMessage(turn.Assistant.Content)
			if turn.Assistant.Content == "" {
				msg.Content = nil
			}
			for _, tc := range turn.Assistant.ToolCalls {
				msg.Content = append(msg.Content, unifiedllm.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
			}
			messages = append(messages, msg)
		case TurnToolResults:
			for _, r := range turn.ToolResults.Results {
				messages = append(messages, unifiedllm.ToolResultMessage(r.ToolCallID, r.Content, r.IsError))
			}
		case TurnSteering:
			// Sent as user messages so the model treats them as instructions.
			messages = append(messages, unifiedllm.UserMessage(turn.Steering.Content))
		}
	}
	return messages
}

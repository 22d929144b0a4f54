package agentloop

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	"github.com/martinemde/codingagent/unifiedllm"
)

func toolCallData(name, args string) unifiedllm.ToolCallData {
	return unifiedllm.ToolCallData{ID: "call_" + name, Name: name, Arguments: json.RawMessage(args)}
}

func TestToolRegistry(t *testing.T) {
	r := NewToolRegistry()
	for _, name := range []string{"read_file", "execute_python_code", "list_files"} {
		r.Register(echoTool(name, nil))
	}

	if r.Count() != 3 {
		t.Fatalf("expected 3 tools, got %d", r.Count())
	}
	want := []string{"execute_python_code", "list_files", "read_file"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected sorted names %v, got %v", want, got)
	}

	defs := r.LLMDefinitions()
	if len(defs) != 3 || defs[0].Name != "execute_python_code" || defs[0].Parameters["type"] != "object" {
		t.Errorf("unexpected definitions %+v", defs)
	}

	tool := r.Get("read_file")
	if tool == nil {
		t.Fatal("expected read_file to be registered")
	}
	out, err := tool.Executor(context.Background(), json.RawMessage(`{"filename":"a"}`))
	if err != nil || out != `read_file({"filename":"a"})` {
		t.Errorf("unexpected executor result %q, %v", out, err)
	}

	r.Unregister("read_file")
	if r.Get("read_file") != nil || r.Count() != 2 {
		t.Error("expected read_file to be removed")
	}
}

func TestToolRegistryReplace(t *testing.T) {
	r := NewToolRegistry()
	r.Register(RegisteredTool{Definition: ToolDefinition{Name: "list_files", Description: "old"}})
	r.Register(RegisteredTool{Definition: ToolDefinition{Name: "list_files", Description: "new"}})
	if r.Count() != 1 || r.Get("list_files").Definition.Description != "new" {
		t.Error("expected the latest registration to win")
	}
}

func TestToolRegistryConcurrentAccess(t *testing.T) {
	r := NewToolRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(echoTool("execute_python_code", nil))
		}()
		go func() {
			defer wg.Done()
			_ = r.Definitions()
		}()
	}
	wg.Wait()
	if r.Count() != 1 {
		t.Errorf("expected 1 tool, got %d", r.Count())
	}
}

func TestConvertHistoryToMessages(t *testing.T) {
	history := []Turn{
		NewUserTurn("print hello"),
		NewAssistantTurn(&unifiedllm.Response{Message: unifiedllm.Message{
			Role:    unifiedllm.RoleAssistant,
			Content: []unifiedllm.ContentPart{unifiedllm.ToolCallPart("c1", "execute_python_code", json.RawMessage(`{}`))},
		}}),
		NewToolResultsTurn([]unifiedllm.ToolResultData{{ToolCallID: "c1", Content: "✅ Success:\nhello\n"}}),
		NewSteeringTurn("be brief"),
		NewAssistantTurn(&unifiedllm.Response{Message: unifiedllm.AssistantMessage("done")}),
	}

	msgs := ConvertHistoryToMessages(history)
	roles := make([]unifiedllm.Role, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	want := []unifiedllm.Role{unifiedllm.RoleUser, unifiedllm.RoleAssistant, unifiedllm.RoleTool, unifiedllm.RoleUser, unifiedllm.RoleAssistant}
	if !reflect.DeepEqual(roles, want) {
		t.Fatalf("expected roles %v, got %v", want, roles)
	}
	if len(msgs[1].Content) != 1 || msgs[1].Content[0].Kind != unifiedllm.ContentToolCall {
		t.Errorf("expected only a tool call part, got %+v", msgs[1].Content)
	}
	if msgs[2].ToolCallID != "c1" {
		t.Errorf("expected tool result for c1, got %q", msgs[2].ToolCallID)
	}
	if msgs[3].TextContent() != "be brief" {
		t.Errorf("unexpected steering message %q", msgs[3].TextContent())
	}
}

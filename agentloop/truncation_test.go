package agentloop

import (
	"strings"
	"testing"
)

func TestTruncateOutput(t *testing.T) {
	short := "hello"
	if got := TruncateOutput(short, 10, TruncateHeadTail); got != short {
		t.Errorf("expected short output unchanged, got %q", got)
	}

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := TruncateOutput(long, 20, TruncateHeadTail)
	if !strings.HasPrefix(got, strings.Repeat("a", 10)) || !strings.HasSuffix(got, strings.Repeat("b", 10)) {
		t.Errorf("head_tail should keep both ends, got %q", got)
	}
	if !strings.Contains(got, "80 characters were removed from the middle") {
		t.Errorf("missing removal notice: %q", got)
	}

	got = TruncateOutput(long, 20, TruncateTail)
	if !strings.HasSuffix(got, strings.Repeat("b", 20)) || !strings.Contains(got, "First 80 characters were removed") {
		t.Errorf("tail mode should keep the end, got %q", got)
	}
}

func TestTruncateLines(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, string(rune('0'+i)))
	}
	got := TruncateLines(strings.Join(lines, "\n"), 4)
	want := "0\n1\n[... 6 lines omitted ...]\n8\n9"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := TruncateLines("a\nb", 0); got != "a\nb" {
		t.Errorf("zero limit should disable line truncation, got %q", got)
	}
}

func TestTruncateToolOutput(t *testing.T) {
	out := strings.Repeat("line\n", 1000)
	got := TruncateToolOutput(out, "execute_python_code", nil, nil)
	if !strings.Contains(got, "lines omitted") {
		t.Error("expected default line limit for execute_python_code")
	}

	got = TruncateToolOutput(out, "execute_python_code", nil, map[string]int{"execute_python_code": 2000})
	if strings.Contains(got, "lines omitted") {
		t.Error("expected line override to apply")
	}

	got = TruncateToolOutput(strings.Repeat("x", 100), "read_file", map[string]int{"read_file": 10}, nil)
	if !strings.Contains(got, "[WARNING: Tool output was truncated.") {
		t.Error("expected character override to apply")
	}

	if got := TruncateToolOutput("small", "unknown_tool", nil, nil); got != "small" {
		t.Errorf("unexpected output for unknown tool: %q", got)
	}
}

package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized output is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

const defaultCharLimit = 30000

// DefaultToolCharLimits bounds the text sent back to the model per tool.
var DefaultToolCharLimits = map[string]int{
	"execute_python_code": 30000,
	"read_file":           50000,
	"list_files":          20000,
	"add_package":         10000,
	"remove_package":      10000,
	"create_file":         1000,
}

// DefaultTruncationModes picks the kept region per tool. Program output keeps
// both ends so the traceback at the bottom survives.
var DefaultTruncationModes = map[string]TruncationMode{
	"execute_python_code": TruncateHeadTail,
	"read_file":           TruncateHeadTail,
	"list_files":          TruncateTail,
	"add_package":         TruncateTail,
	"remove_package":      TruncateTail,
	"create_file":         TruncateTail,
}

// DefaultToolLineLimits is applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"execute_python_code": 256,
	"list_files":          500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed. "+
			"The full output is available in the event stream.]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need specific parts, re-run with more targeted code or read a narrower file.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines keeps the first and last lines of output so that at most
// maxLines remain.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character truncation and then line truncation
// for the named tool. Entries in charLimits and lineLimits override the
// defaults.
func TruncateToolOutput(output, toolName string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = defaultCharLimit
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}

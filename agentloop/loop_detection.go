package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
)

// maxPatternLen is the longest repeating cycle DetectLoop looks for.
const maxPatternLen = 3

// toolCallSignature identifies a call by name and a hash of its arguments.
func toolCallSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentSignatures returns up to count signatures of the latest tool calls,
// oldest first.
func recentSignatures(history []Turn, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		turn := history[i]
		if turn.Kind != TurnAssistant {
			continue
		}
		calls := turn.Assistant.ToolCalls
		for j := len(calls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolCallSignature(calls[j].Name, calls[j].Arguments))
		}
	}
	slices.Reverse(sigs)
	return sigs
}

// DetectLoop reports whether the last windowSize tool calls repeat a cycle
// of one to three calls.
func DetectLoop(history []Turn, windowSize int) bool {
	if windowSize <= 0 {
		return false
	}
	sigs := recentSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= maxPatternLen; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		if repeats(sigs, patternLen) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, patternLen int) bool {
	for i := patternLen; i < len(sigs); i++ {
		if sigs[i] != sigs[i%patternLen] {
			return false
		}
	}
	return true
}

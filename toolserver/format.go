package toolserver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/martinemde/codingagent/codeexec"
	"github.com/martinemde/codingagent/workspace"
)

const (
	markSuccess = "✅"
	markFailure = "❌"
	markFile    = "📄"
	markDir     = "📁"
	markListing = "📂"
)

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// FormatExecution renders an execution outcome for the model.
func FormatExecution(res codeexec.Result, timeout time.Duration) string {
	switch res.FailureKind {
	case codeexec.FailureNone:
		return fmt.Sprintf("%s Success:\n%s", markSuccess, res.Stdout)
	case codeexec.FailureRuntimeError:
		return fmt.Sprintf("%s Error:\n%s", markFailure, res.Stderr)
	case codeexec.FailureTimeout:
		return fmt.Sprintf("%s Timeout: Code execution exceeded %s seconds", markFailure, seconds(timeout))
	default:
		return fmt.Sprintf("%s Error: %s", markFailure, res.Stderr)
	}
}

type packageVerbs struct {
	done    string // "added"
	failure string // "Addition"
	noun    string // "addition"
}

var (
	addVerbs    = packageVerbs{done: "added", failure: "Addition", noun: "addition"}
	removeVerbs = packageVerbs{done: "removed", failure: "Removal", noun: "removal"}
)

// formatPackage renders the outcome of a package manager command.
func formatPackage(res codeexec.Result, name string, verbs packageVerbs, timeout time.Duration) string {
	switch res.FailureKind {
	case codeexec.FailureNone:
		return fmt.Sprintf("%s Package %s: %s\n%s", markSuccess, verbs.done, name, res.Stdout)
	case codeexec.FailureRuntimeError:
		return fmt.Sprintf("%s %s failed: %s", markFailure, verbs.failure, res.Stderr)
	case codeexec.FailureTimeout:
		return fmt.Sprintf("%s Timeout: Package %s exceeded %s seconds", markFailure, verbs.noun, seconds(timeout))
	default:
		return fmt.Sprintf("%s Error: %s", markFailure, res.Stderr)
	}
}

// FormatListing renders a directory listing. Directories carry a trailing slash.
func FormatListing(dir string, entries []workspace.DirEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			lines = append(lines, fmt.Sprintf("%s %s/", markDir, e.Name))
		} else {
			lines = append(lines, fmt.Sprintf("%s %s", markFile, e.Name))
		}
	}
	return fmt.Sprintf("%s Contents of %s:\n%s", markListing, dir, strings.Join(lines, "\n"))
}

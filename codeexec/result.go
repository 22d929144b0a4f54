package codeexec

import "time"

// FailureKind classifies why an execution did not succeed.
type FailureKind string

const (
	FailureNone           FailureKind = "none"
	FailureTimeout        FailureKind = "timeout"
	FailureRuntimeError   FailureKind = "runtime_error"
	FailureInfrastructure FailureKind = "infrastructure_error"
)

// Request is a single source payload to execute. The payload is opaque.
type Request struct {
	Source string `json:"source"`
}

// Command is an argv run under its own timeout by [Executor.Run].
// A zero Timeout falls back to the executor's configured timeout.
type Command struct {
	Args    []string      `json:"args"`
	Timeout time.Duration `json:"timeout"`
}

// Result is the outcome of one execution.
//
// ExitStatus is meaningful only when FailureKind is FailureNone or
// FailureRuntimeError; it is -1 otherwise. For infrastructure failures
// Stderr carries the fault description.
type Result struct {
	ID          string        `json:"id"`
	Succeeded   bool          `json:"succeeded"`
	Stdout      string        `json:"stdout"`
	Stderr      string        `json:"stderr"`
	ExitStatus  int           `json:"exit_status"`
	FailureKind FailureKind   `json:"failure_kind"`
	Duration    time.Duration `json:"duration"`
}

// TimedOut reports whether the process was killed by the wall-clock bound.
func (r Result) TimedOut() bool {
	return r.FailureKind == FailureTimeout
}

func infrastructureResult(id string, msg string) Result {
	return Result{
		ID:          id,
		ExitStatus:  -1,
		Stderr:      msg,
		FailureKind: FailureInfrastructure,
	}
}

// Package codeexec runs untrusted source payloads under an external
// interpreter with a wall-clock bound.
//
// Each call to [Executor.Execute] materializes the payload as a uniquely
// named temporary file, runs the configured interpreter on it with stdout
// and stderr captured, and removes the file before returning, on every
// path. The result is always a [Result]; failures are classified by
// [FailureKind] rather than returned as errors.
//
// [Executor.Run] applies the same timeout, kill and classification rules to
// an arbitrary argv, which is how bounded helper commands such as package
// installs are run.
package codeexec

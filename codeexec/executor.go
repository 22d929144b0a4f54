package codeexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultFileSuffix = ".py"

	// waitDelay bounds how long Wait blocks on pipes still held open by
	// grandchildren after the process group has been killed.
	waitDelay = 2 * time.Second
)

// DefaultInterpreter is the toolchain invocation used when Config.Interpreter
// is empty. The payload path is appended as the final argument.
var DefaultInterpreter = []string{"uv", "run", "python"}

// Config controls an Executor. The zero value is usable.
type Config struct {
	// Interpreter is the argv prefix; the temp file path is appended.
	Interpreter []string
	// Timeout is the wall-clock bound for each Execute call.
	Timeout time.Duration
	// TempDir is where payloads are written. Empty means os.TempDir().
	TempDir string
	// FileSuffix is the extension given to payload files.
	FileSuffix string
	// Dir is the working directory of every process. Empty means the
	// current directory.
	Dir string
	// MaxConcurrent limits simultaneous executions. Zero means unbounded.
	MaxConcurrent int64
	// MaxSourceBytes rejects larger payloads. Zero means unbounded.
	MaxSourceBytes int
	Logger         logrus.FieldLogger
}

// Executor runs payloads. It is safe for concurrent use.
type Executor struct {
	interpreter    []string
	timeout        time.Duration
	tempDir        string
	suffix         string
	dir            string
	maxSourceBytes int
	sem            *semaphore.Weighted
	log            logrus.FieldLogger
}

// New creates an Executor, filling unset Config fields with defaults.
func New(cfg Config) *Executor {
	e := &Executor{
		interpreter:    slices.Clone(cfg.Interpreter),
		timeout:        cfg.Timeout,
		tempDir:        cfg.TempDir,
		suffix:         cfg.FileSuffix,
		dir:            cfg.Dir,
		maxSourceBytes: cfg.MaxSourceBytes,
		log:            cfg.Logger,
	}
	if len(e.interpreter) == 0 {
		e.interpreter = slices.Clone(DefaultInterpreter)
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.suffix == "" {
		e.suffix = DefaultFileSuffix
	}
	// Payload paths are handed to a process running in Dir, so they must not
	// be relative to ours.
	if e.tempDir != "" && !filepath.IsAbs(e.tempDir) {
		if abs, err := filepath.Abs(e.tempDir); err == nil {
			e.tempDir = abs
		}
	}
	if cfg.MaxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	return e
}

// Timeout returns the bound applied to Execute.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Interpreter returns a copy of the argv prefix used by Execute.
func (e *Executor) Interpreter() []string {
	return slices.Clone(e.interpreter)
}

// Execute writes req.Source to a fresh temporary file, runs the interpreter
// on it and returns the classified outcome. The temporary file is removed
// before Execute returns.
//
// The caller's context is consulted only while waiting for a concurrency
// slot. Once the process starts, the configured timeout is the sole
// cancellation trigger.
func (e *Executor) Execute(ctx context.Context, req Request) (res Result) {
	id := xid.New().String()
	log := e.log.WithField("execution_id", id)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("execution panicked: %v", r)
			res = infrastructureResult(id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if e.maxSourceBytes > 0 && len(req.Source) > e.maxSourceBytes {
		return infrastructureResult(id, fmt.Sprintf("source is %d bytes, exceeding the limit of %d bytes", len(req.Source), e.maxSourceBytes))
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return infrastructureResult(id, fmt.Sprintf("waiting for an execution slot: %v", err))
	}
	defer release()

	path, err := e.writeSource(req.Source)
	if err != nil {
		log.WithError(err).Warn("failed to materialize source")
		return infrastructureResult(id, err.Error())
	}
	defer e.removeSource(log, path)

	args := append(slices.Clone(e.interpreter), path)
	return e.run(ctx, id, log, args, e.timeout)
}

// Run executes cmd.Args with the same timeout and classification rules as
// Execute, without materializing a payload.
func (e *Executor) Run(ctx context.Context, cmd Command) (res Result) {
	id := xid.New().String()
	log := e.log.WithField("execution_id", id)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("command panicked: %v", r)
			res = infrastructureResult(id, fmt.Sprintf("internal error: %v", r))
		}
	}()
	if len(cmd.Args) == 0 {
		return infrastructureResult(id, "empty command")
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	release, err := e.acquire(ctx)
	if err != nil {
		return infrastructureResult(id, fmt.Sprintf("waiting for an execution slot: %v", err))
	}
	defer release()
	return e.run(ctx, id, log, cmd.Args, timeout)
}

func (e *Executor) acquire(ctx context.Context) (func(), error) {
	if e.sem == nil {
		return func() {}, nil
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { e.sem.Release(1) }, nil
}

func (e *Executor) writeSource(source string) (string, error) {
	f, err := os.CreateTemp(e.tempDir, "exec-*"+e.suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(source); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to close temporary file: %w", err)
	}
	return path, nil
}

func (e *Executor) removeSource(log logrus.FieldLogger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warnf("failed to remove temporary file %q", path)
	}
}

func (e *Executor) run(ctx context.Context, id string, log logrus.FieldLogger, args []string, timeout time.Duration) Result {
	res := Result{ID: id, ExitStatus: -1}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.dir
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("executing %s (timeout %s)", shellescape.QuoteCommand(args), timeout)
	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Succeeded = true
		res.ExitStatus = 0
		res.FailureKind = FailureNone
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.FailureKind = FailureTimeout
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitCode()
		res.FailureKind = FailureRuntimeError
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		name := filepath.Base(args[0])
		res.FailureKind = FailureInfrastructure
		res.Stderr = fmt.Sprintf("%s not found. Please install %s first.", name, name)
	default:
		res.FailureKind = FailureInfrastructure
		res.Stderr = err.Error()
	}

	log.WithFields(logrus.Fields{
		"failure_kind": res.FailureKind,
		"exit_status":  res.ExitStatus,
		"duration":     res.Duration,
	}).Debug("execution finished")
	return res
}

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPrompter struct {
	inputs []string
	err    error // returned once inputs run out
	asked  int
}

func (p *scriptedPrompter) Prompt(string) (string, error) {
	p.asked++
	if len(p.inputs) == 0 {
		if p.err != nil {
			return "", p.err
		}
		return "", io.EOF
	}
	next := p.inputs[0]
	p.inputs = p.inputs[1:]
	return next, nil
}

type fakeRunner struct {
	tasks []string
}

func (r *fakeRunner) ExecuteTask(_ context.Context, task string) string {
	r.tasks = append(r.tasks, task)
	return "done: " + task
}

const banner = "🤖 Coding Agent Initialized!\n" +
	"Available commands:\n" +
	"  - Type your coding task\n" +
	"  - Type 'quit' to exit\n" +
	"--------------------------------------------------\n"

func TestREPLRunsTasksUntilQuit(t *testing.T) {
	p := &scriptedPrompter{inputs: []string{"  print hello  ", "", "QUIT", "never reached"}}
	runner := &fakeRunner{}
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), &out, p, runner))

	assert.Equal(t, []string{"print hello"}, runner.tasks)
	assert.Equal(t, 3, p.asked)
	assert.Equal(t, banner+
		"\n🔄 Processing your request...\n"+
		"\n🤖 Agent's Final Response:\ndone: print hello\n"+
		"\n\n"+
		"👋 Goodbye!\n",
		out.String())
}

func TestREPLQuitWords(t *testing.T) {
	for _, word := range []string{"quit", "exit", "q", "Exit"} {
		t.Run(word, func(t *testing.T) {
			runner := &fakeRunner{}
			var out bytes.Buffer
			require.NoError(t, runREPL(context.Background(), &out, &scriptedPrompter{inputs: []string{word}}, runner))
			assert.Empty(t, runner.tasks)
			assert.True(t, strings.HasSuffix(out.String(), "\n👋 Goodbye!\n"))
		})
	}
}

func TestREPLInterruptAndEOF(t *testing.T) {
	for name, err := range map[string]error{"interrupt": errInterrupted, "eof": io.EOF} {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, runREPL(context.Background(), &out, &scriptedPrompter{err: err}, &fakeRunner{}))
			assert.Equal(t, banner+"\n\n👋 Goodbye!\n", out.String())
		})
	}
}

func TestREPLPromptError(t *testing.T) {
	boom := errors.New("terminal gone")
	var out bytes.Buffer

	err := runREPL(context.Background(), &out, &scriptedPrompter{err: boom}, &fakeRunner{})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, out.String(), "❌ An unexpected error occurred: terminal gone")
}

func TestREPLStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &scriptedPrompter{inputs: []string{"task"}}
	runner := &fakeRunner{}
	var out bytes.Buffer

	require.NoError(t, runREPL(ctx, &out, p, runner))
	assert.Zero(t, p.asked)
	assert.Empty(t, runner.tasks)
}

// cancellingRunner simulates Ctrl-C arriving while a task runs.
type cancellingRunner struct {
	cancel context.CancelFunc
}

func (r *cancellingRunner) ExecuteTask(ctx context.Context, _ string) string {
	r.cancel()
	<-ctx.Done()
	return "❌ Error during task execution: " + ctx.Err().Error()
}

func TestREPLSaysGoodbyeWhenInterruptedMidTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &scriptedPrompter{inputs: []string{"long task", "never asked"}}
	var out bytes.Buffer

	require.NoError(t, runREPL(ctx, &out, p, &cancellingRunner{cancel: cancel}))

	assert.Equal(t, 1, p.asked)
	assert.True(t, strings.HasSuffix(out.String(), "context canceled\n\n👋 Goodbye!\n"), out.String())
}

func TestInterruptSignalsIncludeCtrlC(t *testing.T) {
	assert.Contains(t, interruptSignals, os.Interrupt)
	assert.Contains(t, interruptSignals, syscall.SIGTERM)
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := newLinePrompter(strings.NewReader("first task\nsecond\n"), &out)

	got, err := p.Prompt(taskPrompt)
	require.NoError(t, err)
	assert.Equal(t, "first task", got)
	got, err = p.Prompt(taskPrompt)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	_, err = p.Prompt(taskPrompt)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, strings.Repeat(taskPrompt, 3), out.String())
}

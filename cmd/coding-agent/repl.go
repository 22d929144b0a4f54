package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

const (
	taskPrompt = "💭 Enter your coding task: "
	goodbye    = "👋 Goodbye!"
)

// errInterrupted is returned by a prompter when the user cancels input.
var errInterrupted = errors.New("interrupted")

// prompter reads one task from the user. It returns io.EOF when input ends
// and errInterrupted on Ctrl-C.
type prompter interface {
	Prompt(message string) (string, error)
}

type taskRunner interface {
	ExecuteTask(ctx context.Context, task string) string
}

// surveyPrompter reads from an interactive terminal.
type surveyPrompter struct{}

func (surveyPrompter) Prompt(message string) (string, error) {
	var ans string
	err := survey.AskOne(&survey.Input{Message: strings.TrimSpace(message)}, &ans)
	if errors.Is(err, terminal.InterruptErr) {
		return "", errInterrupted
	}
	return ans, err
}

// linePrompter reads newline-terminated tasks, for piped input.
type linePrompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{sc: bufio.NewScanner(in), out: out}
}

func (p *linePrompter) Prompt(message string) (string, error) {
	fmt.Fprint(p.out, message)
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.sc.Text(), nil
}

func isQuit(task string) bool {
	switch strings.ToLower(task) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

// runREPL prompts for tasks and runs them one at a time until the user quits,
// input ends or ctx is cancelled.
func runREPL(ctx context.Context, out io.Writer, p prompter, runner taskRunner) error {
	fmt.Fprintln(out, "🤖 Coding Agent Initialized!")
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out, "  - Type your coding task")
	fmt.Fprintln(out, "  - Type 'quit' to exit")
	fmt.Fprintln(out, strings.Repeat("-", 50))

	for {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "\n"+goodbye)
			return nil
		}
		fmt.Fprintln(out)
		task, err := p.Prompt(taskPrompt)
		switch {
		case errors.Is(err, errInterrupted), errors.Is(err, io.EOF):
			fmt.Fprintln(out, "\n"+goodbye)
			return nil
		case err != nil:
			fmt.Fprintf(out, "❌ An unexpected error occurred: %v\n", err)
			return err
		}

		task = strings.TrimSpace(task)
		if isQuit(task) {
			fmt.Fprintln(out, goodbye)
			return nil
		}
		if task == "" {
			continue
		}

		fmt.Fprintln(out, "🔄 Processing your request...")
		result := runner.ExecuteTask(ctx, task)
		fmt.Fprintf(out, "\n🤖 Agent's Final Response:\n%s\n", result)
	}
}

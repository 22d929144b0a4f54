// Package config loads client and server settings from the environment and
// an optional .env file. Values are passed explicitly to the components that
// need them; nothing here is global.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mattn/go-shellwords"
)

// DefaultEnvFile is loaded when no files are named. A missing file is not an
// error.
const DefaultEnvFile = ".env"

// ErrMissingAPIKey is returned when the client has no OpenAI credentials.
var ErrMissingAPIKey = errors.New("Please set your OPENAI_API_KEY environment variable")

// Client configures the coding agent REPL.
type Client struct {
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	Model         string        `env:"CODING_AGENT_MODEL" envDefault:"gpt-4o-mini"`
	Temperature   float64       `env:"CODING_AGENT_TEMPERATURE" envDefault:"0.1"`
	MaxTokens     int           `env:"CODING_AGENT_MAX_TOKENS"`
	ServerURL     string        `env:"CODING_AGENT_SERVER_URL" envDefault:"http://localhost:8092/mcp/"`
	MaxToolRounds int           `env:"CODING_AGENT_MAX_TOOL_ROUNDS" envDefault:"200"`
	LLMMaxRetries int           `env:"CODING_AGENT_LLM_MAX_RETRIES" envDefault:"2"`
	TaskTimeout   time.Duration `env:"CODING_AGENT_TASK_TIMEOUT" envDefault:"10m"`
}

// Validate reports settings the client cannot run without.
func (c *Client) Validate() error {
	if c.OpenAIAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", c.Temperature)
	}
	if c.MaxToolRounds < 0 || c.LLMMaxRetries < 0 || c.MaxTokens < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// Command is an argv prefix written as a shell-quoted string, so paths with
// spaces can be quoted: "/opt/my tools/python3" -u.
type Command []string

// UnmarshalText splits text with shell quoting rules.
func (c *Command) UnmarshalText(text []byte) error {
	args, err := shellwords.Parse(string(text))
	if err != nil {
		return fmt.Errorf("parsing command %q: %w", text, err)
	}
	*c = args
	return nil
}

// Server configures the tool server.
type Server struct {
	Addr           string        `env:"CODING_AGENT_ADDR" envDefault:":8092"`
	WorkDir        string        `env:"CODING_AGENT_WORKDIR"`
	TempDir        string        `env:"CODING_AGENT_TEMPDIR"`
	Interpreter    Command       `env:"CODING_AGENT_INTERPRETER" envDefault:"uv run python"`
	PackageManager Command       `env:"CODING_AGENT_PACKAGE_MANAGER" envDefault:"uv"`
	ExecTimeout    time.Duration `env:"CODING_AGENT_EXEC_TIMEOUT" envDefault:"30s"`
	PackageTimeout time.Duration `env:"CODING_AGENT_PACKAGE_TIMEOUT" envDefault:"120s"`
	MaxConcurrent  int64         `env:"CODING_AGENT_MAX_CONCURRENT" envDefault:"0"`
	MaxSourceBytes int           `env:"CODING_AGENT_MAX_SOURCE_BYTES" envDefault:"0"`
}

// Validate reports settings the server cannot run with.
func (s *Server) Validate() error {
	if len(s.Interpreter) == 0 {
		return errors.New("interpreter must not be empty")
	}
	if len(s.PackageManager) == 0 {
		return errors.New("package manager must not be empty")
	}
	if s.ExecTimeout <= 0 || s.PackageTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if s.MaxConcurrent < 0 || s.MaxSourceBytes < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// LoadClient reads client settings. The key is not validated here so that
// callers can apply flag overrides first.
func LoadClient(envFiles ...string) (*Client, error) {
	return load[Client](envFiles)
}

// LoadServer reads server settings.
func LoadServer(envFiles ...string) (*Server, error) {
	return load[Server](envFiles)
}

func load[T any](envFiles []string) (*T, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	cfg, err := env.ParseAs[T]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// loadEnvFiles populates unset variables from the named files, or from
// DefaultEnvFile when none are named. Variables already in the environment
// win.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

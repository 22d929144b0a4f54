package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

const projectDocsTruncated = "[Project instructions truncated at 32KB]"

// projectDocNames are the instruction files loaded into the system prompt,
// in load order within each directory.
var projectDocNames = []string{"AGENTS.md", ".codex/instructions.md"}

// Environment describes the host the agent is working on. A
// *workspace.Workspace satisfies it.
type Environment interface {
	Root() string
	Platform() string
	OSVersion() string
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env Environment, model string) string {
	dir := env.Root()
	branch := git(dir, "rev-parse", "--abbrev-ref", "HEAD")

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", dir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", branch != "")
	if branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format(time.DateOnly))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads instruction files from every directory between
// the git root (or workingDir outside a repository) and workingDir. The
// combined text is capped at 32KB.
func DiscoverProjectDocs(workingDir string) string {
	root := git(workingDir, "rev-parse", "--show-toplevel")
	if root == "" {
		root = workingDir
	}

	var docs []string
	total := 0
	for _, dir := range collectPathHierarchy(root, workingDir) {
		for _, name := range projectDocNames {
			content, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}

			remaining := maxProjectDocBytes - total
			if remaining <= 0 {
				docs = append(docs, projectDocsTruncated)
				return strings.Join(docs, "\n\n---\n\n")
			}
			text := string(content)
			if len(text) > remaining {
				text = text[:remaining] + "\n" + projectDocsTruncated
			}
			docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", name, dir, text))
			total += len(text)
		}
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// GetGitContext summarizes the repository containing workingDir, or returns
// "" outside a repository.
func GetGitContext(workingDir string) string {
	root := git(workingDir, "rev-parse", "--show-toplevel")
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")
	if branch := git(root, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}
	if status := git(root, "status", "--short"); status != "" {
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(strings.Split(status, "\n")))
	}
	if log := git(root, "log", "--oneline", "-10"); log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
		sb.WriteString("\n")
	}
	sb.WriteString("</git_context>")
	return sb.String()
}

// collectPathHierarchy returns directories from root to target, inclusive.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	dirs := []string{root}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

// git runs a read-only git command in dir and returns its trimmed output, or
// "" on any failure including git being absent.
func git(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

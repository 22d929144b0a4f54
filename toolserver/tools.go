package toolserver

import "github.com/modelcontextprotocol/go-sdk/mcp"

var ExecutePythonCode = &mcp.Tool{
	Name:        "execute_python_code",
	Description: `Execute Python code and return the output.`,
}

type ExecutePythonCodeParams struct {
	Code string `json:"code" jsonschema:"The complete Python source to run. It is written to a temporary file and run with the project interpreter."`
}

// ExecutePythonCodeResult is the structured counterpart of the text result.
type ExecutePythonCodeResult struct {
	Succeeded   bool   `json:"succeeded" jsonschema:"Whether the program exited with status zero."`
	Stdout      string `json:"stdout" jsonschema:"Output from the standard output stream."`
	Stderr      string `json:"stderr" jsonschema:"Output from the standard error stream, or the fault description."`
	ExitStatus  int    `json:"exit_status" jsonschema:"Exit status of the interpreter. -1 when the program did not run to completion."`
	FailureKind string `json:"failure_kind" jsonschema:"One of none, timeout, runtime_error, infrastructure_error."`
}

var AddPackage = &mcp.Tool{
	Name:        "add_package",
	Description: `Add a Python package using uv.`,
}

var RemovePackage = &mcp.Tool{
	Name:        "remove_package",
	Description: `Remove a Python package using uv.`,
}

type PackageParams struct {
	PackageName string `json:"package_name" jsonschema:"The package requirement, for example requests or httpx."`
}

var CreateFile = &mcp.Tool{
	Name:        "create_file",
	Description: `Create a new file with the given content.`,
}

type CreateFileParams struct {
	Filename string `json:"filename" jsonschema:"Path of the file to create. Parent directories are created as needed."`
	Content  string `json:"content" jsonschema:"The full content to write."`
}

var ReadFile = &mcp.Tool{
	Name:        "read_file",
	Description: `Read the content of a file.`,
}

type ReadFileParams struct {
	Filename string `json:"filename" jsonschema:"Path of the file to read."`
}

var ListFiles = &mcp.Tool{
	Name:        "list_files",
	Description: `List files in a directory.`,
}

type ListFilesParams struct {
	Directory string `json:"directory,omitempty" jsonschema:"Directory to list. Defaults to the current directory."`
}

package command

import (
	"fmt"
	"os/exec"
	"sort"

	"github.com/mattn/go-shellwords"
)

// External tools used by the mesh pipeline.
const (
	ToolCOLMAP      = "colmap"
	ToolInterface   = "InterfaceCOLMAP"
	ToolDensify     = "DensifyPointCloud"
	ToolReconstruct = "ReconstructMesh"
	ToolRefine      = "RefineMesh"
	ToolTexture     = "TextureMesh"
)

// RequiredTools lists every tool that must resolve before a run starts,
// in pipeline order.
var RequiredTools = []string{
	ToolCOLMAP,
	ToolInterface,
	ToolDensify,
	ToolReconstruct,
	ToolRefine,
	ToolTexture,
}

// LookPathFunc resolves an executable name on the search path.
type LookPathFunc func(file string) (string, error)

// Toolset maps tool names to the command line that launches them. A tool
// without an override is launched by its own name. Overrides are parsed
// with shell quoting rules, so a tool may run through a wrapper such as
// "docker run --rm -v /data:/data openmvs InterfaceCOLMAP".
type Toolset struct {
	argv map[string][]string
}

// NewToolset parses the override command lines.
func NewToolset(overrides map[string]string) (Toolset, error) {
	ts := Toolset{argv: make(map[string][]string, len(overrides))}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		line := overrides[name]
		if line == "" {
			continue
		}
		args, err := shellwords.Parse(line)
		if err != nil {
			return Toolset{}, fmt.Errorf("tool %s: invalid command line %q: %w", name, line, err)
		}
		if len(args) == 0 {
			return Toolset{}, fmt.Errorf("tool %s: command line %q was not parsed into any words", name, line)
		}
		ts.argv[name] = args
	}
	return ts, nil
}

// Argv returns the launch words for tool.
func (t Toolset) Argv(tool string) []string {
	if argv, ok := t.argv[tool]; ok {
		return append([]string(nil), argv...)
	}
	return []string{tool}
}

// Executable returns the program that must exist on the search path for
// tool to run.
func (t Toolset) Executable(tool string) string {
	return t.Argv(tool)[0]
}

// Command builds the invocation of tool with args in dir.
func (t Toolset) Command(tool, dir string, args ...string) Command {
	argv := t.Argv(tool)
	return Command{
		Name: argv[0],
		Args: append(argv[1:], args...),
		Dir:  dir,
	}
}

// Resolve looks up the executable of every tool and returns the ones that
// are missing, in input order, together with the resolved paths of the rest.
func (t Toolset) Resolve(tools []string, lookPath LookPathFunc) (resolved map[string]string, missing []string) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	resolved = make(map[string]string, len(tools))
	for _, tool := range tools {
		path, err := lookPath(t.Executable(tool))
		if err != nil {
			missing = append(missing, tool)
			continue
		}
		resolved[tool] = path
	}
	return resolved, missing
}

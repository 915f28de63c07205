package pipeline

import (
	"bytes"
	"fmt"
	"strings"
)

// outputTailLines is how much captured tool output a StageError message
// repeats.
const outputTailLines = 20

// StageError reports a failed stage: a missing input, a command that could
// not run or exited non-zero, or a missing output.
type StageError struct {
	Stage       string
	CommandLine string
	ExitCode    int
	Output      []byte
	Reason      string
	Err         error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s failed: %s", e.Stage, e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.CommandLine != "" {
		fmt.Fprintf(&b, "\ncommand: %s", e.CommandLine)
		if e.ExitCode != 0 {
			fmt.Fprintf(&b, " (exit status %d)", e.ExitCode)
		}
	}
	if tail := e.OutputTail(outputTailLines); tail != "" {
		fmt.Fprintf(&b, "\noutput (last %d lines):\n%s", outputTailLines, tail)
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// OutputTail returns at most n trailing lines of the captured output.
func (e *StageError) OutputTail(n int) string {
	out := bytes.TrimRight(e.Output, "\n")
	if len(out) == 0 {
		return ""
	}
	lines := strings.Split(string(out), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

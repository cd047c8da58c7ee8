package agent

import (
	"fmt"
	"strings"
	"time"

	"r2sleuth/internal/directive"
	"r2sleuth/internal/logging"
)

// truncationMarker is appended when a turn's combined execution output
// exceeds the configured limit.
const truncationMarker = "\n... [Output Truncated] ..."

// noCommandOutput stands in for r2 commands that produce nothing.
const noCommandOutput = "(no output)"

// ExecutionResult is the outcome of one dispatched directive.
type ExecutionResult struct {
	Directive directive.Directive
	Output    string
	Succeeded bool
}

// runDirectives executes the turn's directives sequentially in source
// order. Later directives may depend on state mutated by earlier ones (an
// analysis pass changing what a script then reads), so there is no
// parallelism and no reordering. Failures never abort the turn: they become
// result text the model can react to.
func (a *Agent) runDirectives(dirs []directive.Directive) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(dirs))
	for _, d := range dirs {
		start := time.Now()
		var res ExecutionResult
		switch d.Kind {
		case directive.KindR2Command:
			res = a.runCommand(d)
		case directive.KindScript:
			res = a.runScript(d)
		}
		results = append(results, res)

		dur := time.Since(start)
		logging.DevLog("executed %s in %s (%d bytes, ok=%v)", d.Kind, dur.Round(time.Millisecond), len(res.Output), res.Succeeded)
		if a.sessions != nil {
			if err := a.sessions.RecordExecution(a.sessionKey, d.Kind.String(), res.Succeeded, dur, len(res.Output)); err != nil {
				logging.DevLog("session log write failed: %v", err)
			}
		}
	}
	return results
}

func (a *Agent) runCommand(d directive.Directive) ExecutionResult {
	a.status.writeLine(fmt.Sprintf("➜ r2 command: %s", d.Text))
	out, err := a.channel.Cmd(d.Text)
	if err != nil {
		return ExecutionResult{
			Directive: d,
			Output:    fmt.Sprintf("R2 error executing '%s': %v", d.Text, err),
		}
	}
	if out == "" {
		out = noCommandOutput
	}
	return ExecutionResult{Directive: d, Output: out, Succeeded: true}
}

func (a *Agent) runScript(d directive.Directive) ExecutionResult {
	a.status.writeLine("➜ running script:")
	for _, line := range strings.Split(d.Text, "\n") {
		a.status.writeLine("    " + highlightCode(line))
	}
	out, ok := a.scripts.Run(d.Text)
	return ExecutionResult{Directive: d, Output: out, Succeeded: ok}
}

// foldResults formats every execution as a labeled block, joins them in
// order, and applies the per-turn truncation cap.
func (a *Agent) foldResults(results []ExecutionResult) string {
	blocks := make([]string, 0, len(results))
	for _, res := range results {
		switch res.Directive.Kind {
		case directive.KindScript:
			blocks = append(blocks, fmt.Sprintf("Script:\n%s\nOutput:\n%s", res.Directive.Text, res.Output))
		default:
			blocks = append(blocks, fmt.Sprintf("R2 Command: [[%s]]\nOutput:\n%s", res.Directive.Text, res.Output))
		}
	}
	combined := strings.Join(blocks, "\n")
	if len(combined) > a.cfg.ResultTruncateLimit {
		combined = combined[:a.cfg.ResultTruncateLimit] + truncationMarker
	}
	return combined
}

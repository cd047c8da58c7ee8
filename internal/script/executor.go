// Package script runs model-written Starlark snippets in a sandbox.
//
// The capability surface is deliberately narrow and explicit:
//   - r2.cmd(str) -> str   runs a radare2 command through the session pipe
//   - re.findall / re.match / re.sub   thin wrappers over Go regexp
//   - print(...)           captured into the execution's output buffer
//
// Nothing else of the host process leaks in: no file system, no network,
// no module loading.
package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"r2sleuth/internal/r2"
)

// noOutput is reported when a script finishes without printing anything.
const noOutput = "(script ran, no output)"

// Executor evaluates script directives with one injected command channel.
type Executor struct {
	channel r2.Channel
}

// NewExecutor binds the executor to the session's command channel.
func NewExecutor(channel r2.Channel) *Executor {
	return &Executor{channel: channel}
}

// Run evaluates code and captures everything printed. Runtime faults never
// propagate: the fault description, including the full backtrace, becomes
// the output text and ok is false.
func (e *Executor) Run(code string) (output string, ok bool) {
	var buf strings.Builder
	thread := &starlark.Thread{
		Name: "script",
		Print: func(_ *starlark.Thread, msg string) {
			buf.WriteString(msg)
			buf.WriteByte('\n')
		},
	}

	predeclared := starlark.StringDict{
		"r2": e.r2Module(),
		"re": regexModule(),
	}

	_, err := starlark.ExecFile(thread, "script.star", code, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return fmt.Sprintf("Script execution error:\n%s", evalErr.Backtrace()), false
		}
		return fmt.Sprintf("Script execution error:\n%s", err.Error()), false
	}

	if buf.Len() == 0 {
		return noOutput, true
	}
	return buf.String(), true
}

// r2Module exposes the injected command channel as `r2.cmd(str)`.
func (e *Executor) r2Module() *starlarkstruct.Module {
	cmd := starlark.NewBuiltin("cmd", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var command string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &command); err != nil {
			return nil, err
		}
		out, err := e.channel.Cmd(command)
		if err != nil {
			return nil, fmt.Errorf("r2 command %q failed: %w", command, err)
		}
		return starlark.String(out), nil
	})
	return &starlarkstruct.Module{
		Name:    "r2",
		Members: starlark.StringDict{"cmd": cmd},
	}
}

// regexModule provides the standard text/regex helpers scripts rely on:
// findall returns every match, match returns the first match or None, sub
// rewrites all matches.
func regexModule() *starlarkstruct.Module {
	findall := starlark.NewBuiltin("findall", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var pattern, text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &text); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		matches := re.FindAllString(text, -1)
		values := make([]starlark.Value, len(matches))
		for i, m := range matches {
			values[i] = starlark.String(m)
		}
		return starlark.NewList(values), nil
	})
	match := starlark.NewBuiltin("match", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var pattern, text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &text); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if m := re.FindString(text); m != "" {
			return starlark.String(m), nil
		}
		return starlark.None, nil
	})
	sub := starlark.NewBuiltin("sub", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var pattern, repl, text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &pattern, &repl, &text); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		return starlark.String(re.ReplaceAllString(text, repl)), nil
	})
	return &starlarkstruct.Module{
		Name: "re",
		Members: starlark.StringDict{
			"findall": findall,
			"match":   match,
			"sub":     sub,
		},
	}
}

// Package agent wires the conversation controller together: it owns the
// transcript, drives the streaming remote call each turn, dispatches the
// parsed directives, and decides whether to continue autonomously, ask the
// human, or stop.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"r2sleuth/internal/config"
	"r2sleuth/internal/directive"
	"r2sleuth/internal/history"
	"r2sleuth/internal/llm"
	"r2sleuth/internal/logging"
	"r2sleuth/internal/prompts"
	"r2sleuth/internal/r2"
	"r2sleuth/internal/sessionlog"
)

// exitTokens terminate the loop at any human-input prompt.
var exitTokens = map[string]bool{"exit": true, "quit": true, "q": true}

// ScriptRunner executes one script directive in the sandbox.
type ScriptRunner interface {
	Run(code string) (output string, ok bool)
}

// Agent is the conversation controller. It is the only component that
// appends to the transcript, and exactly one remote call, dispatch pass, or
// input wait is in flight at a time.
type Agent struct {
	client   llm.StreamClient
	cfg      config.Config
	channel  r2.Channel
	scripts  ScriptRunner
	sessions *sessionlog.Store // optional audit trail

	hist       *history.History
	sessionKey string

	out      io.Writer
	isTTY    bool
	status   *statusSpinner
	render   *renderer
	readLine func() (string, error)

	thinkingDisabled bool
}

// Options adjusts construction for tests and the CLI.
type Options struct {
	Out      io.Writer              // defaults to stdout
	ReadLine func() (string, error) // human input boundary; defaults to TTY/stdin prompt
	Sessions *sessionlog.Store      // nil disables the audit trail
}

// New returns a fully wired Agent ready to run one session.
func New(client llm.StreamClient, cfg config.Config, channel r2.Channel, scripts ScriptRunner, opts Options) *Agent {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	isTTY := term.IsTerminal(int(os.Stdout.Fd())) && opts.Out == nil
	var markdown *glamour.TermRenderer
	if isTTY {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			markdown = r
		}
	}

	a := &Agent{
		client:     client,
		cfg:        cfg,
		channel:    channel,
		scripts:    scripts,
		sessions:   opts.Sessions,
		sessionKey: "session-" + time.Now().Format("20060102-150405"),
		out:        out,
		isTTY:      isTTY,
		readLine:   opts.ReadLine,
	}
	a.status = newStatusSpinner(out, isTTY)
	a.render = newRenderer(a.status, markdown)
	if a.readLine == nil {
		a.readLine = a.defaultReadLine()
	}
	return a
}

// Run executes the session loop until an exit keyword or a fatal remote
// failure. The transcript is seeded with the fixed system instruction and
// one user turn naming the target and the initial request.
func (a *Agent) Run(ctx context.Context, targetFile, instruction string) error {
	a.hist = history.New(prompts.Combine(a.cfg.SystemPrompt))
	a.appendTurn(history.RoleUser, prompts.InitialRequest(targetFile, instruction))

	fmt.Fprintln(a.out, "── r2sleuth session started ──")

	for {
		answer, err := a.streamAnswer(ctx, a.hist.Turns())
		if err != nil {
			return fmt.Errorf("remote reasoning failed: %w", err)
		}
		a.appendTurn(history.RoleAssistant, answer)

		parsed := directive.Parse(answer)
		logging.DevLog("turn parsed: %d directives, ask=%v", len(parsed.Directives), parsed.Ask)

		if len(parsed.Directives) > 0 {
			results := a.runDirectives(parsed.Directives)
			a.appendTurn(history.RoleUser, "Execution Results:\n"+a.foldResults(results))
			if !parsed.Ask {
				continue
			}
		}

		if parsed.Ask {
			done, err := a.askHuman("")
			if err != nil || done {
				return err
			}
			continue
		}

		if len(parsed.Directives) == 0 {
			// No actionable output at all: treat as stuck and hand
			// control to the human.
			done, err := a.askHuman("Agent paused. Waiting for input...")
			if err != nil || done {
				return err
			}
		}
	}
}

// askHuman blocks on one line of input. Exit keywords end the session
// cleanly without recording the input; anything else becomes a user turn.
func (a *Agent) askHuman(notice string) (done bool, err error) {
	if notice != "" {
		fmt.Fprintln(a.out, notice)
	}
	line, err := a.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(a.out, "Exiting r2sleuth.")
			return true, nil
		}
		return false, fmt.Errorf("read input: %w", err)
	}
	trimmed := strings.TrimSpace(line)
	if exitTokens[strings.ToLower(trimmed)] {
		fmt.Fprintln(a.out, "Exiting r2sleuth.")
		return true, nil
	}
	a.appendTurn(history.RoleUser, trimmed)
	return false, nil
}

func (a *Agent) appendTurn(role history.Role, content string) {
	a.hist.Append(role, content)
	if a.sessions != nil {
		if err := a.sessions.RecordTurn(a.sessionKey, string(role), len(content)); err != nil {
			logging.DevLog("session log write failed: %v", err)
		}
	}
}

// defaultReadLine uses go-prompt on a TTY and plain buffered reads
// otherwise (piped input, tests via Options.ReadLine).
func (a *Agent) defaultReadLine() func() (string, error) {
	if a.isTTY && term.IsTerminal(int(os.Stdin.Fd())) {
		return func() (string, error) {
			return prompt.Input("User> ", func(prompt.Document) []prompt.Suggest { return nil }), nil
		}
	}
	reader := bufio.NewReader(os.Stdin)
	return func() (string, error) {
		fmt.Fprint(a.out, "User> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

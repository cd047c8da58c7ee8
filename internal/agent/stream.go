package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"r2sleuth/internal/history"
	"r2sleuth/internal/llm"
	"r2sleuth/internal/logging"
)

// endMarker terminates the model's turn. It is a plain token, never a
// directive, and stays part of the returned answer text.
const endMarker = "[end]"

// accumulator collects the two stream channels. reasoningActive reflects
// only the most recent non-empty fragment: reasoning and answer content may
// interleave arbitrarily, there is no guaranteed mode transition.
type accumulator struct {
	answer          strings.Builder
	reasoning       strings.Builder
	reasoningActive bool
	sawEnd          bool
	tail            string
}

func (c *accumulator) add(chunk llm.StreamChunk) {
	if chunk.Reasoning != "" {
		c.reasoningActive = true
		c.reasoning.WriteString(chunk.Reasoning)
	}
	if chunk.Content != "" {
		c.reasoningActive = false
		c.answer.WriteString(chunk.Content)
		if !c.sawEnd {
			probe := c.tail + chunk.Content
			if strings.Contains(probe, endMarker) {
				c.sawEnd = true
			}
			if n := len(probe); n > len(endMarker)-1 {
				c.tail = probe[n-(len(endMarker)-1):]
			} else {
				c.tail = probe
			}
		}
	}
}

// done reports the stop condition: the end marker has appeared in the
// answer and the latest fragment was not reasoning.
func (c *accumulator) done() bool {
	return c.sawEnd && !c.reasoningActive
}

// reasoningTail returns the last non-blank line of the reasoning buffer for
// the status display.
func (c *accumulator) reasoningTail() string {
	lines := strings.Split(c.reasoning.String(), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// streamAnswer drives the retry state machine around the remote call and
// returns the fully assembled answer text. Exhausting every attempt is
// fatal to the session; no partial answer is ever used.
func (a *Agent) streamAnswer(ctx context.Context, turns []history.Turn) (string, error) {
	a.status.start()
	defer a.status.stop()

	var lastErr error
	for attempt := 0; attempt < a.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			logging.UserLog("request failed, retrying (%d/%d)", attempt+1, a.cfg.MaxAttempts)
			fmt.Fprintf(a.out, "Request timed out or failed. Retrying (%d/%d)...\n", attempt+1, a.cfg.MaxAttempts)
		}
		answer, err := a.consumeAttempt(ctx, turns)
		if err == nil {
			return answer, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.ErrorLog("attempt %d/%d failed: %v", attempt+1, a.cfg.MaxAttempts, err)
		lastErr = err
	}
	return "", fmt.Errorf("remote call failed after %d attempts: %w", a.cfg.MaxAttempts, lastErr)
}

// consumeAttempt performs one request and consumes its stream to the stop
// condition. The per-attempt timeout turns a stalled stream into a
// retryable failure.
func (a *Agent) consumeAttempt(parent context.Context, turns []history.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(parent, a.cfg.RequestTimeout())
	defer cancel()

	req := llm.ChatRequest{
		Model:    a.cfg.Model,
		Messages: turns,
		Thinking: a.thinkingHint(),
	}

	stream, err := a.client.StreamChat(ctx, req)
	if err != nil && req.Thinking != nil && llm.IsUnsupportedParam(err) {
		// Downgrade once, permanently: the provider does not know the
		// reasoning-budget parameter.
		a.thinkingDisabled = true
		logging.UserLog("thinking parameter unsupported by provider, disabled for this session")
		req.Thinking = nil
		stream, err = a.client.StreamChat(ctx, req)
	}
	if err != nil {
		return "", err
	}
	defer stream.Close()

	acc := &accumulator{}
	a.status.set(false, "")
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		acc.add(chunk)
		a.render.update(acc.answer.String())
		if acc.reasoningActive {
			a.status.set(true, acc.reasoningTail())
		} else {
			a.status.set(false, "")
		}
		if acc.done() {
			// Remaining chunks stay unread; Close drops the connection.
			break
		}
	}
	a.render.flush(acc.answer.String())
	logging.DevLog("stream complete: %d answer chars, %d reasoning chars",
		acc.answer.Len(), acc.reasoning.Len())
	return acc.answer.String(), nil
}

// thinkingHint returns the reasoning-budget option, or nil once disabled by
// config or a provider downgrade.
func (a *Agent) thinkingHint() *llm.ThinkingOptions {
	if a.cfg.DisableThinking || a.thinkingDisabled {
		return nil
	}
	return &llm.ThinkingOptions{Type: "enabled", BudgetTokens: a.cfg.ThinkingBudgetTokens}
}

// statusSpinner paints a one-line rotating status ("Thinking…" vs
// "Generating response…") on a ticker. It only reads snapshots handed to
// set and never touches the accumulators, so dropping it entirely would not
// change behavior.
type statusSpinner struct {
	out     io.Writer
	enabled bool

	mu       chan struct{} // 1-buffered channel used as a mutex shared with the renderer
	thinking bool
	tail     string
	onScreen bool

	stopCh chan struct{}
	doneCh chan struct{}
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func newStatusSpinner(out io.Writer, enabled bool) *statusSpinner {
	s := &statusSpinner{
		out:     out,
		enabled: enabled,
		mu:      make(chan struct{}, 1),
	}
	s.mu <- struct{}{}
	return s
}

func (s *statusSpinner) lock()   { <-s.mu }
func (s *statusSpinner) unlock() { s.mu <- struct{}{} }

// start launches the refresh goroutine. The spinner is reused across
// attempts: each start pairs with one stop.
func (s *statusSpinner) start() {
	if !s.enabled {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-s.stopCh:
				s.lock()
				s.clearLocked()
				s.unlock()
				return
			case <-ticker.C:
				s.lock()
				label := "Generating response..."
				if s.thinking {
					label = "Thinking..."
					if s.tail != "" {
						label += " " + s.tail
					}
				}
				if len(label) > 100 {
					label = label[:100]
				}
				fmt.Fprintf(s.out, "\r\x1b[2K%s %s", spinnerFrames[frame%len(spinnerFrames)], label)
				s.onScreen = true
				s.unlock()
				frame++
			}
		}
	}()
}

func (s *statusSpinner) set(thinking bool, tail string) {
	if !s.enabled {
		return
	}
	s.lock()
	s.thinking = thinking
	s.tail = tail
	s.unlock()
}

func (s *statusSpinner) stop() {
	if !s.enabled {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

// writeLine prints one finished line, clearing any spinner residue first.
func (s *statusSpinner) writeLine(line string) {
	if !s.enabled {
		fmt.Fprintln(s.out, line)
		return
	}
	s.lock()
	s.clearLocked()
	fmt.Fprintln(s.out, line)
	s.unlock()
}

func (s *statusSpinner) clearLocked() {
	if s.onScreen {
		fmt.Fprint(s.out, "\r\x1b[2K")
		s.onScreen = false
	}
}

package agent

import (
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
)

// renderer paints newly completed answer lines as they stream in. It is
// purely observational: it reads the accumulated answer, remembers how far
// it has printed, and never feeds anything back into parsing or control
// flow.
type renderer struct {
	status   *statusSpinner
	markdown *glamour.TermRenderer // nil outside a terminal

	printed int // bytes of the display-transformed text already emitted
	inCode  bool
}

func newRenderer(status *statusSpinner, markdown *glamour.TermRenderer) *renderer {
	return &renderer{status: status, markdown: markdown}
}

// formatDisplay rewrites the wire syntax into something readable: command
// brackets become inline code, script fences become a python code block.
func formatDisplay(text string) string {
	text = strings.ReplaceAll(text, "[[", "`[[")
	text = strings.ReplaceAll(text, "]]", "]]`")
	text = strings.ReplaceAll(text, "<py>", "\n```python\n")
	text = strings.ReplaceAll(text, "</py>", "\n```\n")
	return text
}

// update prints every line completed since the last call. Lines inside a
// python fence are highlighted as code, the rest go through the markdown
// renderer.
func (r *renderer) update(answer string) {
	formatted := formatDisplay(answer)
	if r.printed >= len(formatted) {
		return
	}
	pending := formatted[r.printed:]
	idx := strings.LastIndex(pending, "\n")
	if idx < 0 {
		return
	}
	for _, line := range strings.Split(pending[:idx], "\n") {
		r.printLine(line)
	}
	r.printed += idx + 1
}

// flush emits any trailing partial line once the stream has ended.
func (r *renderer) flush(answer string) {
	formatted := formatDisplay(answer)
	if r.printed >= len(formatted) {
		return
	}
	for _, line := range strings.Split(formatted[r.printed:], "\n") {
		if strings.TrimSpace(line) != "" {
			r.printLine(line)
		}
	}
	r.printed = len(formatted)
}

func (r *renderer) printLine(line string) {
	stripped := strings.TrimSpace(line)

	if stripped == "```python" {
		r.inCode = true
		r.status.writeLine("  Script:")
		return
	}
	if stripped == "```" && r.inCode {
		r.inCode = false
		r.status.writeLine("")
		return
	}

	if r.inCode {
		r.status.writeLine("    " + highlightCode(line))
		return
	}

	if line == "" {
		r.status.writeLine("")
		return
	}
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(line); err == nil {
			r.status.writeLine(strings.TrimRight(rendered, "\n"))
			return
		}
	}
	r.status.writeLine(line)
}

// highlightCode colors one script line; on any highlighter error the raw
// line is shown instead.
func highlightCode(line string) string {
	var b strings.Builder
	if err := quick.Highlight(&b, line, "python", "terminal256", "monokai"); err != nil {
		return line
	}
	return strings.TrimRight(b.String(), "\n")
}

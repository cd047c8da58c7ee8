// Package directive extracts embedded directives from model-generated text.
//
// Two forms exist: r2 commands wrapped in double brackets ([[cmd]]) and
// script blocks wrapped in <py>...</py> fences. Matching is non-greedy,
// non-nested, and strictly left to right. The literal inner text "ask" is
// reserved: it raises the ask flag instead of producing a directive. The
// bare token [end] is a turn terminator and never matches (single bracket
// pair).
package directive

import "strings"

// Kind discriminates the two directive forms.
type Kind int

const (
	KindR2Command Kind = iota
	KindScript
)

func (k Kind) String() string {
	if k == KindScript {
		return "Script"
	}
	return "R2 Command"
}

const (
	openCommand  = "[["
	closeCommand = "]]"
	openScript   = "<py>"
	closeScript  = "</py>"

	// askToken is the reserved command body requesting human input.
	askToken = "ask"
)

// Directive is one parsed unit in source order.
type Directive struct {
	Kind Kind
	Text string
}

// Result carries everything one scan produced. Consumed reports how many
// bytes of the buffer are settled: re-invoking Parse on the remainder plus
// new data never re-emits a directive already returned.
type Result struct {
	Directives []Directive
	Ask        bool
	Consumed   int
}

// Parse scans a possibly partial buffer for complete directives. Unclosed
// markers at the end of the buffer are not yet directives; their start is
// excluded from Consumed so a later call can resume there.
func Parse(buf string) Result {
	var res Result
	i := 0
	for i < len(buf) {
		switch {
		case strings.HasPrefix(buf[i:], openCommand):
			end := strings.Index(buf[i+len(openCommand):], closeCommand)
			if end < 0 {
				res.Consumed = i
				return res
			}
			inner := strings.TrimSpace(buf[i+len(openCommand) : i+len(openCommand)+end])
			if inner == askToken {
				res.Ask = true
			} else {
				res.Directives = append(res.Directives, Directive{Kind: KindR2Command, Text: inner})
			}
			i += len(openCommand) + end + len(closeCommand)
		case strings.HasPrefix(buf[i:], openScript):
			end := strings.Index(buf[i+len(openScript):], closeScript)
			if end < 0 {
				res.Consumed = i
				return res
			}
			code := strings.TrimSpace(buf[i+len(openScript) : i+len(openScript)+end])
			res.Directives = append(res.Directives, Directive{Kind: KindScript, Text: code})
			i += len(openScript) + end + len(closeScript)
		default:
			i++
		}
	}
	res.Consumed = len(buf) - trailingOpenerPrefix(buf)
	return res
}

// trailingOpenerPrefix reports how many bytes at the end of buf form a
// proper prefix of an opening marker. Those bytes may still grow into a
// directive once more text streams in, so they are not settled.
func trailingOpenerPrefix(buf string) int {
	for _, marker := range []string{openCommand, openScript} {
		for n := len(marker) - 1; n > 0; n-- {
			if strings.HasSuffix(buf, marker[:n]) {
				return n
			}
		}
	}
	return 0
}

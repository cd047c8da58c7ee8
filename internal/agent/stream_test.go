package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"r2sleuth/internal/config"
	"r2sleuth/internal/history"
	"r2sleuth/internal/llm"
)

// fakeStream replays a fixed chunk sequence, then errors or EOFs.
type fakeStream struct {
	chunks []llm.StreamChunk
	err    error // returned after chunks run out; nil means io.EOF
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (llm.StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return llm.StreamChunk{}, s.err
		}
		return llm.StreamChunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// streamScript is one scripted StreamChat outcome.
type streamScript struct {
	stream *fakeStream
	err    error
}

// scriptedStreamClient hands out one scripted outcome per StreamChat call
// and records every request it saw.
type scriptedStreamClient struct {
	script   []streamScript
	requests []llm.ChatRequest
}

func (c *scriptedStreamClient) StreamChat(_ context.Context, req llm.ChatRequest) (llm.Stream, error) {
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return &fakeStream{}, nil
	}
	next := c.script[0]
	c.script = c.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.stream, nil
}

// fakeRunner scripts the sandbox boundary.
type fakeRunner struct {
	output string
	ok     bool
	ran    []string
}

func (f *fakeRunner) Run(code string) (string, bool) {
	f.ran = append(f.ran, code)
	return f.output, f.ok
}

// fakeR2 scripts the command channel boundary.
type fakeR2 struct {
	responses map[string]string
	err       error
	calls     []string
}

func (f *fakeR2) Cmd(cmd string) (string, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return "", f.err
	}
	return f.responses[cmd], nil
}

func testConfig() config.Config {
	return config.Config{
		Model:                 "test-model",
		RequestTimeoutSeconds: 5,
		MaxAttempts:           3,
		ThinkingBudgetTokens:  8192,
		ResultTruncateLimit:   30000,
	}
}

func newTestAgent(t *testing.T, client llm.StreamClient, cfg config.Config, channel *fakeR2, runner *fakeRunner, inputs ...string) (*Agent, *bytes.Buffer) {
	t.Helper()
	if channel == nil {
		channel = &fakeR2{}
	}
	if runner == nil {
		runner = &fakeRunner{ok: true}
	}
	var out bytes.Buffer
	queue := inputs
	a := New(client, cfg, channel, runner, Options{
		Out: &out,
		ReadLine: func() (string, error) {
			if len(queue) == 0 {
				return "", io.EOF
			}
			line := queue[0]
			queue = queue[1:]
			return line, nil
		},
	})
	return a, &out
}

func chunks(contents ...string) []llm.StreamChunk {
	out := make([]llm.StreamChunk, len(contents))
	for i, c := range contents {
		out[i] = llm.StreamChunk{Content: c}
	}
	return out
}

func TestAccumulatorAssemblesSplitMarker(t *testing.T) {
	t.Parallel()
	acc := &accumulator{}
	for _, c := range chunks("Hello ", "world [e", "nd]") {
		acc.add(c)
	}
	if !acc.done() {
		t.Fatalf("marker split across chunks not detected")
	}
	if got := acc.answer.String(); got != "Hello world [end]" {
		t.Fatalf("answer = %q", got)
	}
}

func TestAccumulatorMarkerWhileReasoningDoesNotStop(t *testing.T) {
	t.Parallel()
	acc := &accumulator{}
	acc.add(llm.StreamChunk{Content: "done [end]"})
	if !acc.done() {
		t.Fatalf("expected done after marker in content")
	}
	acc.add(llm.StreamChunk{Reasoning: "wait, one more thing"})
	if acc.done() {
		t.Fatalf("reasoning fragment after marker must defer the stop")
	}
	acc.add(llm.StreamChunk{Content: " more"})
	if !acc.done() {
		t.Fatalf("content fragment should re-arm the stop")
	}
}

func TestAccumulatorReasoningTail(t *testing.T) {
	t.Parallel()
	acc := &accumulator{}
	acc.add(llm.StreamChunk{Reasoning: "step one\nstep two\n\n"})
	if got := acc.reasoningTail(); got != "step two" {
		t.Fatalf("tail = %q", got)
	}
}

func TestStreamAnswerStopsAtMarkerLeavingChunksUnread(t *testing.T) {
	t.Parallel()
	stream := &fakeStream{chunks: chunks("answer [end]", "NEVER READ")}
	client := &scriptedStreamClient{script: []streamScript{{stream: stream}}}
	a, _ := newTestAgent(t, client, testConfig(), nil, nil)

	got, err := a.streamAnswer(context.Background(), []history.Turn{})
	if err != nil {
		t.Fatalf("streamAnswer: %v", err)
	}
	if got != "answer [end]" {
		t.Fatalf("answer = %q", got)
	}
	if stream.pos != 1 {
		t.Fatalf("read %d chunks, want 1", stream.pos)
	}
	if !stream.closed {
		t.Fatalf("stream not closed")
	}
}

func TestStreamAnswerEOFWithoutMarkerSucceeds(t *testing.T) {
	t.Parallel()
	client := &scriptedStreamClient{script: []streamScript{
		{stream: &fakeStream{chunks: chunks("partial answer, no marker")}},
	}}
	a, _ := newTestAgent(t, client, testConfig(), nil, nil)

	got, err := a.streamAnswer(context.Background(), []history.Turn{})
	if err != nil {
		t.Fatalf("streamAnswer: %v", err)
	}
	if got != "partial answer, no marker" {
		t.Fatalf("answer = %q", got)
	}
}

func TestStreamAnswerRetriesExactlyMaxAttempts(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DisableThinking = true
	boom := errors.New("connection reset")
	client := &scriptedStreamClient{script: []streamScript{
		{err: boom}, {err: boom}, {err: boom}, {err: boom},
	}}
	a, _ := newTestAgent(t, client, cfg, nil, nil)

	_, err := a.streamAnswer(context.Background(), []history.Turn{})
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("error does not wrap cause: %v", err)
	}
	if len(client.requests) != cfg.MaxAttempts {
		t.Fatalf("made %d requests, want %d", len(client.requests), cfg.MaxAttempts)
	}
}

func TestStreamAnswerMidStreamErrorRetries(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DisableThinking = true
	client := &scriptedStreamClient{script: []streamScript{
		{stream: &fakeStream{chunks: chunks("partial "), err: errors.New("stream cut")}},
		{stream: &fakeStream{chunks: chunks("full answer [end]")}},
	}}
	a, _ := newTestAgent(t, client, cfg, nil, nil)

	got, err := a.streamAnswer(context.Background(), []history.Turn{})
	if err != nil {
		t.Fatalf("streamAnswer: %v", err)
	}
	// The failed attempt's partial text is discarded entirely.
	if got != "full answer [end]" {
		t.Fatalf("answer = %q", got)
	}
}

func TestStreamAnswerThinkingDowngradeIsPermanent(t *testing.T) {
	t.Parallel()
	unsupported := llm.NewProviderError("test", llm.ErrorTypeUnsupportedParam, "400", "unknown parameter: thinking")
	client := &scriptedStreamClient{script: []streamScript{
		{err: unsupported},
		{stream: &fakeStream{chunks: chunks("first [end]")}},
		{stream: &fakeStream{chunks: chunks("second [end]")}},
	}}
	a, _ := newTestAgent(t, client, testConfig(), nil, nil)

	if _, err := a.streamAnswer(context.Background(), []history.Turn{}); err != nil {
		t.Fatalf("first streamAnswer: %v", err)
	}
	if _, err := a.streamAnswer(context.Background(), []history.Turn{}); err != nil {
		t.Fatalf("second streamAnswer: %v", err)
	}

	if len(client.requests) != 3 {
		t.Fatalf("made %d requests, want 3", len(client.requests))
	}
	if client.requests[0].Thinking == nil {
		t.Fatalf("first request should carry the thinking hint")
	}
	if client.requests[1].Thinking != nil {
		t.Fatalf("downgrade retry still carries the thinking hint")
	}
	if client.requests[2].Thinking != nil {
		t.Fatalf("downgrade did not persist across turns")
	}
}

func TestStreamAnswerContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedStreamClient{script: []streamScript{{err: context.Canceled}}}
	cfg := testConfig()
	cfg.DisableThinking = true
	a, _ := newTestAgent(t, client, cfg, nil, nil)

	_, err := a.streamAnswer(ctx, []history.Turn{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("cancelled context should not retry; made %d requests", len(client.requests))
	}
}

func TestFormatDisplayTransform(t *testing.T) {
	t.Parallel()
	in := "run [[afl]] then\n<py>\nprint(1)\n</py>\ndone"
	got := formatDisplay(in)
	want := "run `[[afl]]` then\n\n```python\n\nprint(1)\n\n```\n\ndone"
	if got != want {
		t.Fatalf("formatDisplay:\n got %q\nwant %q", got, want)
	}
	if strings.Contains(got, "<py>") || strings.Contains(got, "</py>") {
		t.Fatalf("fence markers leaked: %q", got)
	}
}

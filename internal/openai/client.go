// Package openai is a minimal HTTP wrapper around an OpenAI-compatible
// streaming chat completions endpoint.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"r2sleuth/internal/llm"
	"r2sleuth/internal/logging"
)

// Client speaks the chat completions API in SSE streaming mode.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *log.Logger
}

// NewClient wires together the dependencies for API access. The per-attempt
// timeout is enforced by the caller through the request context, so the
// underlying HTTP client carries no timeout of its own (a hard client
// timeout would cut long streams short).
func NewClient(baseURL, apiKey string, logger *log.Logger) *Client {
	trimmed := strings.TrimRight(baseURL, "/")
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    trimmed,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// StreamChat issues one completion request and returns the response stream.
func (c *Client) StreamChat(ctx context.Context, reqPayload llm.ChatRequest) (llm.Stream, error) {
	reqPayload.Stream = true
	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Printf("sending %d messages to model %s", len(reqPayload.Messages), reqPayload.Model)
	logging.DevLog("openai: streaming request to %s with %d messages", reqPayload.Model, len(reqPayload.Messages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.NewProviderError("openai", llm.ErrorTypeTransport, "", err.Error())
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		logging.ErrorLog("openai API error: %d - %s", resp.StatusCode, string(body))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// classifyStatus maps HTTP failures onto the retry taxonomy. A 400 that
// mentions the thinking parameter means the provider does not support the
// reasoning-budget hint.
func classifyStatus(status int, body string) error {
	code := strconv.Itoa(status)
	lower := strings.ToLower(body)
	if status == http.StatusBadRequest &&
		(strings.Contains(lower, "thinking") || strings.Contains(lower, "parameter")) {
		return llm.NewProviderError("openai", llm.ErrorTypeUnsupportedParam, code, strings.TrimSpace(body))
	}
	return llm.NewProviderError("openai", llm.ErrorTypeTransport, code, strings.TrimSpace(body))
}

// chunkPayload mirrors one SSE data record from the completions stream.
type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ReasoningText    string `json:"reasoning_text"`
		} `json:"delta"`
	} `json:"choices"`
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Recv returns the next chunk carrying content or reasoning. Records with
// neither (role announcements, keepalives) are skipped. Returns io.EOF once
// the provider sends the [DONE] sentinel or closes the connection.
func (s *sseStream) Recv() (llm.StreamChunk, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return llm.StreamChunk{}, io.EOF
			}
			return llm.StreamChunk{}, llm.NewProviderError("openai", llm.ErrorTypeTransport, "", err.Error())
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return llm.StreamChunk{}, io.EOF
		}

		var payload chunkPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logging.DevLog("openai: skipping malformed stream record: %v", err)
			continue
		}
		if len(payload.Choices) == 0 {
			continue
		}
		delta := payload.Choices[0].Delta
		reasoning := delta.ReasoningContent
		if reasoning == "" {
			reasoning = delta.ReasoningText
		}
		if delta.Content == "" && reasoning == "" {
			continue
		}
		return llm.StreamChunk{Content: delta.Content, Reasoning: reasoning}, nil
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/nlin-dev/chatrelay/internal/config"
	"github.com/nlin-dev/chatrelay/internal/model/chat"
	"github.com/nlin-dev/chatrelay/internal/service/relay"
)

// Client adapts an OpenAI-compatible chat completion endpoint (the
// Hugging Face router by default) to the relay.Completer contract.
type Client struct {
	client *openai.Client
	cfg    config.LLMConfig
}

// NewClient builds the provider client from configuration.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// StreamCompletion opens the incremental completion call.
func (c *Client) StreamCompletion(ctx context.Context, messages []chat.Turn) (relay.CompletionStream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(messages))
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}
	return &completionStream{stream: stream}, nil
}

// Completion issues the non-streaming call and returns the full assistant
// text.
func (c *Client) Completion(ctx context.Context, messages []chat.Turn) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages))
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// request maps the transcript onto the provider request with the fixed
// generation parameters from configuration.
func (c *Client) request(messages []chat.Turn) openai.ChatCompletionRequest {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, turn := range messages {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    converted,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
	}
}

// completionStream exposes the provider chunk stream as plain deltas.
type completionStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next textual delta; chunks without choices yield an
// empty delta. io.EOF signals exhaustion.
func (s *completionStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

// Close releases the underlying HTTP stream.
func (s *completionStream) Close() error {
	return s.stream.Close()
}

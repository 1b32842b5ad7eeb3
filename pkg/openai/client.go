package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client implements types.ChatCompleter against any OpenAI compatible
// chat completions endpoint.
type Client struct {
	client   *openai.Client
	model    string
	jsonMode bool
}

type Config struct {
	BaseUrl   string
	ApiKey    string
	Model     string
	Proxy     string
	JsonMode  bool
	MaxTokens int
}

func NewClient(cfg Config) (*Client, error) {
	oc := openai.DefaultConfig(cfg.ApiKey)
	if cfg.BaseUrl != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseUrl, "/")
	}

	// Deadlines come from the caller's context, so the client itself has none.
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	oc.HTTPClient = &http.Client{Transport: transport}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client:   openai.NewClientWithConfig(oc),
		model:    model,
		jsonMode: cfg.JsonMode,
	}, nil
}

var _ types.ChatCompleter = (*Client)(nil)

func (c *Client) ChatCompletionWithHistory(ctx context.Context, systemPrompt string, history []types.Message, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == types.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			log.GetLogger().Error("[OpenAI] chat completion rejected",
				zap.String("model", c.model), zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", apiErr.Message))
		} else {
			log.GetLogger().Error("[OpenAI] chat completion failed", zap.String("model", c.model), zap.Error(err))
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

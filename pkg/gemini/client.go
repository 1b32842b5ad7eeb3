// Package gemini calls the Gemini generateContent REST endpoint.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash"
)

type Config struct {
	BaseUrl string
	// UploadUrl is the Files API media endpoint; it is derived from BaseUrl
	// when empty.
	UploadUrl string
	ApiKey    string
	Model     string
	Proxy     string
	JsonMode  bool
	// VideoFps is the frame sampling rate requested for attached videos.
	VideoFps     float64
	PollInterval time.Duration
	ChunkSize    int
}

// Client implements types.VideoChatCompleter.
type Client struct {
	http         *resty.Client
	uploadURL    string
	apiKey       string
	model        string
	jsonMode     bool
	videoFps     float64
	pollInterval time.Duration
	chunkSize    int
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseUrl
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.Proxy != "" {
		rc.SetProxy(cfg.Proxy)
	}
	c := &Client{
		http:         rc,
		uploadURL:    cfg.UploadUrl,
		apiKey:       cfg.ApiKey,
		model:        model,
		jsonMode:     cfg.JsonMode,
		videoFps:     cfg.VideoFps,
		pollInterval: cfg.PollInterval,
		chunkSize:    cfg.ChunkSize,
	}
	if c.uploadURL == "" {
		c.uploadURL = uploadEndpoint(baseURL)
	}
	if c.videoFps <= 0 {
		c.videoFps = defaultVideoFps
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.chunkSize <= 0 {
		c.chunkSize = defaultChunkSize
	}
	return c
}

var _ types.VideoChatCompleter = (*Client)(nil)

type part struct {
	Text          string         `json:"text,omitempty"`
	FileData      *fileData      `json:"fileData,omitempty"`
	VideoMetadata *videoMetadata `json:"videoMetadata,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileUri  string `json:"fileUri"`
}

type videoMetadata struct {
	Fps float64 `json:"fps,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) ChatCompletionWithHistory(ctx context.Context, systemPrompt string, history []types.Message, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, history, userPrompt, nil)
}

// ChatCompletionWithVideo uploads the video through the Files API, waits for
// it to become ACTIVE and sends it with the newest user message. The upload
// is deleted afterwards whatever the outcome.
func (c *Client) ChatCompletionWithVideo(ctx context.Context, systemPrompt string, history []types.Message, userPrompt string, video types.VideoAttachment) (string, error) {
	file, err := c.UploadFile(ctx, video.Path, video.MimeType)
	if err != nil {
		return "", err
	}
	defer c.deleteQuietly(file.Name)

	file, err = c.WaitActive(ctx, file)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, systemPrompt, history, userPrompt, &file)
}

func (c *Client) generate(ctx context.Context, systemPrompt string, history []types.Message, userPrompt string, video *File) (string, error) {
	req := generateRequest{Contents: make([]content, 0, len(history)+1)}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	for _, m := range history {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	last := content{Role: "user"}
	if video != nil {
		last.Parts = append(last.Parts, part{
			FileData:      &fileData{MimeType: video.MimeType, FileUri: video.Uri},
			VideoMetadata: &videoMetadata{Fps: c.videoFps},
		})
	}
	last.Parts = append(last.Parts, part{Text: userPrompt})
	req.Contents = append(req.Contents, last)
	if c.jsonMode {
		req.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}

	var result generateResponse
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(req).
		SetResult(&result).
		SetError(&failure).
		Post(fmt.Sprintf("/models/%s:generateContent", c.model))
	if err != nil {
		log.GetLogger().Error("[Gemini] request failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("gemini generateContent: %w", err)
	}
	if resp.IsError() {
		log.GetLogger().Error("[Gemini] request rejected",
			zap.String("model", c.model),
			zap.Int("status", resp.StatusCode()),
			zap.String("message", failure.Error.Message))
		return "", fmt.Errorf("gemini generateContent: status %d: %s", resp.StatusCode(), failure.Error.Message)
	}

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked the prompt: %s", result.PromptFeedback.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	var b strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

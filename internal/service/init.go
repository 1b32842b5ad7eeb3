package service

import (
	"fmt"
	"time"

	"ai-video-cutter/config"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	"ai-video-cutter/pkg/gemini"
	"ai-video-cutter/pkg/openai"

	"go.uber.org/zap"
)

// NewChatCompleter builds the language model client selected by
// llm.provider.
func NewChatCompleter(conf config.Config) (types.ChatCompleter, error) {
	var chatCompleter types.ChatCompleter
	switch conf.Llm.Provider {
	case config.ProviderOpenai, "":
		client, err := openai.NewClient(openai.Config{
			BaseUrl:   conf.Llm.BaseUrl,
			ApiKey:    conf.Llm.ApiKey,
			Model:     conf.Llm.Model,
			Proxy:     conf.App.Proxy,
			JsonMode:  conf.Llm.JsonMode,
			MaxTokens: conf.Llm.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		chatCompleter = client
	case config.ProviderGemini:
		chatCompleter = gemini.NewClient(gemini.Config{
			BaseUrl:  conf.Llm.BaseUrl,
			ApiKey:   conf.Llm.ApiKey,
			Model:    conf.Llm.Model,
			Proxy:    conf.App.Proxy,
			JsonMode: conf.Llm.JsonMode,
			VideoFps: conf.Llm.VideoFps,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", conf.Llm.Provider)
	}
	log.GetLogger().Info("[Service] chat completer selected", zap.String("provider", conf.Llm.Provider), zap.String("model", conf.Llm.Model))
	return chatCompleter, nil
}

// TimeoutsFrom maps the configured per-kind limits.
func TimeoutsFrom(t config.Timeouts) map[types.TaskKind]time.Duration {
	return map[types.TaskKind]time.Duration{
		types.TaskKindAnalyze:  t.Timeout(string(types.TaskKindAnalyze)),
		types.TaskKindChat:     t.Timeout(string(types.TaskKindChat)),
		types.TaskKindFinalize: t.Timeout(string(types.TaskKindFinalize)),
	}
}

package main

import (
	"fmt"
	"maps"
	"time"

	"github.com/snarg/audiocast/internal/config"
	"github.com/snarg/audiocast/internal/llm"
	"github.com/snarg/audiocast/internal/summarize"
	"github.com/snarg/audiocast/internal/transcribe"
	"github.com/snarg/audiocast/internal/voice"
)

// Synchronous providers hold the request open while they transcribe.
const syncRecognitionTimeout = 5 * time.Minute

// recognitionRoutes resolves RECOGNITION_ROUTES into provider adapters.
// Adapters are shared between locales that name the same provider.
func recognitionRoutes(cfg *config.Config) (map[string]transcribe.Route, error) {
	p := cfg.Providers
	var (
		deepgram   *transcribe.DeepgramClient
		elevenlabs *transcribe.ElevenLabsClient
		tencent    *transcribe.TencentClient
	)

	routes := make(map[string]transcribe.Route, len(cfg.RecognitionRoutes))
	for locale, name := range cfg.RecognitionRoutes {
		switch name {
		case "deepgram":
			if deepgram == nil {
				deepgram = transcribe.NewDeepgramClient(p.DeepgramAPIKey, p.DeepgramBaseURL, p.DeepgramModel, syncRecognitionTimeout)
			}
			routes[locale] = transcribe.Route{Sync: deepgram}
		case "elevenlabs":
			if elevenlabs == nil {
				elevenlabs = transcribe.NewElevenLabsClient(p.ElevenLabsAPIKey, p.ElevenLabsBaseURL, p.ElevenLabsSTTModel, syncRecognitionTimeout)
			}
			routes[locale] = transcribe.Route{Sync: elevenlabs}
		case "tencent":
			if tencent == nil {
				engines := maps.Clone(transcribe.DefaultTencentEngines)
				if p.TencentEngine != "" {
					engines["zh"] = p.TencentEngine
				}
				tencent = transcribe.NewTencentClient(p.TencentEndpoint, transcribe.TokenSigner{Token: p.TencentToken}, engines, 30*time.Second)
			}
			routes[locale] = transcribe.Route{Async: tencent}
		default:
			return nil, fmt.Errorf("RECOGNITION_ROUTES: unknown provider %q for locale %s", name, locale)
		}
	}
	return routes, nil
}

// summaryRoutes resolves SUMMARY_ROUTES. OpenAI-compatible models return the
// structured JSON summary; Gemini is used as a prose summarizer.
func summaryRoutes(cfg *config.Config) (map[string]summarize.Route, error) {
	routes := make(map[string]summarize.Route, len(cfg.SummaryRoutes))
	for locale, name := range cfg.SummaryRoutes {
		client, err := llmClient(cfg, name)
		if err != nil {
			return nil, fmt.Errorf("SUMMARY_ROUTES: %w", err)
		}
		family := summarize.FamilyStructured
		if name == "gemini" {
			family = summarize.FamilyProse
		}
		routes[locale] = summarize.Route{Client: client, Family: family}
	}
	return routes, nil
}

func llmClient(cfg *config.Config, name string) (llm.Client, error) {
	p := cfg.Providers
	switch name {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  p.OpenAIAPIKey,
			BaseURL: p.OpenAIBaseURL,
			Model:   p.OpenAIModel,
		}), nil
	case "gemini":
		return llm.NewGeminiClient(p.GeminiAPIKey, p.GeminiModel), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", name)
}

func synthesizer(cfg *config.Config) (voice.Synthesizer, error) {
	p := cfg.Providers
	switch cfg.TTSProvider {
	case "elevenlabs":
		return voice.NewElevenLabsClient(voice.ElevenLabsConfig{
			APIKey:     p.ElevenLabsAPIKey,
			BaseURL:    p.ElevenLabsBaseURL,
			ModelID:    p.ElevenLabsTTSModel,
			Stability:  -1,
			Similarity: -1,
		}), nil
	case "minimax":
		return voice.NewMiniMaxClient(p.MiniMaxAPIKey, p.MiniMaxGroupID, p.MiniMaxBaseURL, p.MiniMaxModel, 0), nil
	}
	return nil, fmt.Errorf("TTS_PROVIDER: unknown provider %q", cfg.TTSProvider)
}

func voicePolicies(cfg *config.Config) (voice.PolicyTable, error) {
	if cfg.VoicePolicyFile == "" {
		return voice.DefaultPolicies, nil
	}
	return voice.LoadPolicyFile(cfg.VoicePolicyFile)
}

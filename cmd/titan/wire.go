package main

import (
	"context"

	"titan/internal/chat"
	"titan/internal/config"
	"titan/internal/deferred"
	"titan/internal/events"
	"titan/internal/llm"
	"titan/internal/safety"
	"titan/internal/store"
	"titan/internal/tools"
	"titan/internal/types"
)

// app bundles the wired subsystems and their cleanup.
type app struct {
	service *chat.Service
	store   *store.SQLiteStore
	stage   *deferred.Stage
	cleanup func()
}

// buildApp constructs the full conversation core from config.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	stage := deferred.NewStage(cfg.Chat.WorkspaceDir)

	registry := tools.NewRegistry()
	tools.RegisterFileTools(registry, cfg.Chat.WorkspaceDir, stage)
	tools.RegisterSandboxTools(registry)
	tools.RegisterCredentialTools(registry, st)
	tools.RegisterScanTools(registry)
	webCleanup := tools.RegisterWebTools(registry)

	llmClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Models: llm.ModelMap{
			Fast:    cfg.LLM.FastModel,
			Default: cfg.LLM.DefaultModel,
			Strong:  cfg.LLM.StrongModel,
		},
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})

	var completer types.Completer
	if cfg.LLM.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiCompleter(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
		if err != nil {
			logger.Warn("gemini completer unavailable, classifier will use heuristics only")
		} else {
			completer = gemini
		}
	}

	gate := safety.NewGate(
		cfg.Safety.RateLimitPerMinute,
		cfg.Safety.RateLimitBurst,
		cfg.Safety.SuspensionAfter,
		cfg.Safety.SuspensionCooldown,
	)

	service := chat.NewService(
		st,
		llmClient,
		completer,
		registry,
		gate,
		events.NewEmitter(),
		chat.NewAbortRegistry(),
		stage,
		cfg.Chat,
		cfg.LLM.Temperature,
	)

	return &app{
		service: service,
		store:   st,
		stage:   stage,
		cleanup: func() {
			webCleanup()
			st.Close()
		},
	}, nil
}

package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexReport/config"
	"github.com/dyike/CortexReport/consts"
)

const promptKey = "prompt"

// ChatRole runs a persona against a chat model through a compiled
// template -> model chain.
type ChatRole struct {
	name     string
	runnable compose.Runnable[map[string]any, *schema.Message]
	handlers []callbacks.Handler
}

var _ Role = (*ChatRole)(nil)

func NewChatRole(ctx context.Context, persona Persona, cm model.BaseChatModel, handlers ...callbacks.Handler) (*ChatRole, error) {
	if cm == nil {
		return nil, errors.New("chat model is required")
	}
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(escapeBraces(persona.SystemPrompt())),
		schema.UserMessage("{"+promptKey+"}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.
		AppendChatTemplate(tpl, compose.WithNodeName(persona.Key+"_prompt")).
		AppendChatModel(cm, compose.WithNodeName(persona.Key+"_model"))

	runnable, err := chain.Compile(ctx, compose.WithGraphName(persona.Key))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", persona.Key, err)
	}
	return &ChatRole{name: persona.Key, runnable: runnable, handlers: handlers}, nil
}

func (r *ChatRole) Name() string { return r.name }

func (r *ChatRole) Run(ctx context.Context, p string) (string, error) {
	var opts []compose.Option
	if len(r.handlers) > 0 {
		opts = append(opts, compose.WithCallbacks(r.handlers...))
	}
	msg, err := r.runnable.Invoke(ctx, map[string]any{promptKey: p}, opts...)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", errors.New("no message returned")
	}
	return msg.Content, nil
}

// NewRoles builds the four report roles on a shared chat model.
func NewRoles(ctx context.Context, cm model.BaseChatModel, handlers ...callbacks.Handler) (Roles, error) {
	personas, err := LoadPersonas()
	if err != nil {
		return Roles{}, err
	}
	build := func(key string) (Role, error) {
		return NewChatRole(ctx, personas[key], cm, handlers...)
	}

	var roles Roles
	if roles.MarketAnalyst, err = build(consts.MarketAnalyst); err != nil {
		return Roles{}, err
	}
	if roles.CompanyResearcher, err = build(consts.CompanyResearcher); err != nil {
		return Roles{}, err
	}
	if roles.Strategist, err = build(consts.StockStrategist); err != nil {
		return Roles{}, err
	}
	if roles.TeamLead, err = build(consts.TeamLead); err != nil {
		return Roles{}, err
	}
	return roles, nil
}

// NewChatModel creates the chat model for the configured provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	apiKey := cfg.LLMAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for llm provider %q", cfg.LLMProvider)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	switch strings.ToLower(cfg.LLMProvider) {
	case "deepseek":
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    apiKey,
			Model:     cfg.QuickThinkLLM,
			BaseURL:   cfg.BackendURL,
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("create deepseek chat model: %w", err)
		}
		return cm, nil
	case "openai":
		baseURL := cfg.BackendURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   baseURL,
			APIKey:    apiKey,
			Model:     cfg.QuickThinkLLM,
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai chat model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// escapeBraces keeps literal braces in persona text out of FString
// substitution.
func escapeBraces(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}

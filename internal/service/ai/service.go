package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdbot/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var (
	// ErrCompletion wraps every failure to obtain a completion.
	ErrCompletion = errors.New("ai completion failed")
	// ErrNotConfigured is returned by NewService when no provider is set.
	ErrNotConfigured = errors.New("ai provider not configured")
)

const claudeMaxTokens = 3000

type generateFunc func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error)

// Service answers free-form prompts with a chat model, optionally through a
// tool-calling agent.
type Service struct {
	generate     generateFunc
	systemPrompt string
	timeout      time.Duration
	logger       *zap.Logger
}

// NewService builds the chat model for cfg.AI.Provider. files may be nil, in
// which case the shared file reader tool is not offered.
func NewService(ctx context.Context, cfg *config.Config, files FileSource, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ai")
	provider := strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if provider == "" {
		return nil, ErrNotConfigured
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.AI.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	chatModel, err := newChatModel(ctx, provider, modelName, provCfg)
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	var tools []tool.BaseTool
	if cfg.AI.WebSearch {
		if ws := InitWebSearch(ctx, logger); ws != nil {
			tools = append(tools, ws)
		}
	}
	if files != nil {
		if fr := initSharedFileReader(ctx, files, logger); fr != nil {
			tools = append(tools, fr)
		}
	}

	svc := &Service{
		systemPrompt: cfg.AI.SystemPrompt,
		timeout:      time.Duration(cfg.AI.Timeout) * time.Second,
		logger:       logger,
	}
	if len(tools) == 0 {
		svc.generate = func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
			return chatModel.Generate(ctx, msgs)
		}
		return svc, nil
	}

	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}
	svc.generate = func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
		return reactAgent.Generate(ctx, msgs)
	}
	logger.Info("ai agent ready", zap.String("provider", provider), zap.String("model", modelName), zap.Int("tools", len(tools)))
	return svc, nil
}

func newChatModel(ctx context.Context, provider, modelName string, provCfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// Complete returns the model's answer to prompt. The sender key in ctx, if
// any, scopes tool rate limits.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrCompletion)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msgs := make([]*schema.Message, 0, 2)
	if s.systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(s.systemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(prompt))

	start := time.Now()
	resp, err := s.generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: empty response", ErrCompletion)
	}
	s.logger.Debug("completion finished", zap.Duration("duration", time.Since(start)), zap.Int("chars", len(resp.Content)))
	return resp.Content, nil
}

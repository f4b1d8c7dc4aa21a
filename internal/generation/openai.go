package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// defaultChatModel is used when no model is configured.
	defaultChatModel = "gpt-4o-mini"

	// defaultTimeout bounds a single completion call.
	defaultTimeout = 60 * time.Second

	// maxRetries is the retry budget for rate-limit and server errors.
	maxRetries = 3

	// baseBackoff is the initial retry delay; it doubles per attempt.
	baseBackoff = 2 * time.Second

	// fallbackAnswer is returned when the model produces no content.
	fallbackAnswer = "I couldn't generate a response."
)

// OpenAIConfig holds configuration for the OpenAI chat gateway.
type OpenAIConfig struct {
	// APIKey authenticates against the API. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and compatible
	// services. Optional.
	BaseURL string

	// Model is the chat model. Defaults to gpt-4o-mini.
	Model string

	// Timeout bounds a single completion call. Defaults to 60s.
	Timeout time.Duration
}

// OpenAIGateway generates answers via the OpenAI chat completions API.
type OpenAIGateway struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAIGateway creates a new OpenAI chat gateway.
func NewOpenAIGateway(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGateway{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		logger:  logger.Named("generation"),
	}, nil
}

// Generate produces an answer for the request. Prior history is replayed as
// chat messages ahead of the current prompt.
func (g *OpenAIGateway) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	for _, m := range req.History {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(buildPrompt(req)))

	completion, err := g.completeWithRetry(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", ErrGenerationFailed)
	}

	answer := completion.Choices[0].Message.Content
	if answer == "" {
		answer = fallbackAnswer
	}

	g.logger.Debug("generated answer",
		zap.String("model", g.model),
		zap.Int("history_messages", len(req.History)),
		zap.Int("answer_chars", len(answer)))

	return answer, nil
}

// completeWithRetry retries rate-limit and server errors with exponential
// backoff.
func (g *OpenAIGateway) completeWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	var lastErr error
	backoff := baseBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !isRetryableAPIError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRetryableAPIError(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
}

// buildPrompt frames the query according to the available context.
func buildPrompt(req Request) string {
	switch {
	case req.Context != "" && req.FileScoped:
		return buildFilePrompt(req.Query, req.Context)
	case req.Context != "":
		return buildRAGPrompt(req.Query, req.Context)
	default:
		return buildPlainPrompt(req.Query)
	}
}

func buildRAGPrompt(query, context string) string {
	return fmt.Sprintf(`You are a helpful AI assistant. Use the following context to answer the user's question.
If the context doesn't contain relevant information, you can use your general knowledge, but prioritize the provided context.

Context:
%s

User Question: %s

Please provide a clear, accurate, and helpful response based on the context provided.`, context, query)
}

func buildFilePrompt(query, context string) string {
	return fmt.Sprintf(`You are a helpful AI assistant. The user is asking about a specific document.
Please answer their question based ONLY on the content of that document provided below.

Document Content:
%s

User Question: %s

Please provide a clear answer based on the document content. If the document doesn't contain information relevant to the question, please say so.`, context, query)
}

func buildPlainPrompt(query string) string {
	return fmt.Sprintf(`You are a helpful AI assistant.

User Question: %s

Please provide a clear, accurate, and helpful response.`, query)
}

var _ Gateway = (*OpenAIGateway)(nil)

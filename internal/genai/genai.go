// Package genai generates conversational replies with the OpenAI API.
//
// The model answers from a fixed knowledge base and is the fallback path for
// messages the static router cannot classify. Callers must treat every error
// as "send the static fallback message instead"; this package never produces
// user-visible errors.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/beforest-co/supportbot/internal/models"
)

// Generation defaults. Low temperature and a tight token cap keep replies
// short and grounded in the knowledge base.
const (
	// DefaultModel is used when no model is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTemperature balances grounded answers with natural phrasing.
	DefaultTemperature = 0.5
	// DefaultMaxTokens caps reply length; WhatsApp answers should be 1-3 sentences.
	DefaultMaxTokens = 200
	// HistoryWindow is how many recent history entries accompany the prompt.
	HistoryWindow = 5
	// DefaultRequestTimeout bounds a single completion call.
	DefaultRequestTimeout = 30 * time.Second
)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey     string  // API key (OpenAI or Azure)
	Endpoint   string  // Azure endpoint; empty means the public OpenAI API
	APIVersion string  // Azure API version, required with Endpoint
	Model      string  // model or Azure deployment name
	Timeout    time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithAzureEndpoint routes requests to an Azure OpenAI deployment.
func WithAzureEndpoint(endpoint, apiVersion string) Option {
	return func(o *Opts) {
		o.Endpoint = endpoint
		o.APIVersion = apiVersion
	}
}

// WithModel sets the model (or Azure deployment) name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Opts) { o.Timeout = timeout }
}

// completionService is the slice of the OpenAI SDK used here, extracted so
// tests can substitute a mock.
type completionService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client generates support replies against the Beforest knowledge base.
type Client struct {
	completions completionService
	model       string
	timeout     time.Duration
}

// NewClient creates a GenAI client for the public OpenAI API or an Azure
// deployment, depending on options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewClient invoked", "api_key_set", cfg.APIKey != "", "azure", cfg.Endpoint != "", "model", cfg.Model)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	var requestOpts []option.RequestOption
	if cfg.Endpoint != "" {
		if cfg.APIVersion == "" {
			return nil, fmt.Errorf("azure API version not set")
		}
		requestOpts = append(requestOpts,
			azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	} else {
		requestOpts = append(requestOpts, option.WithAPIKey(cfg.APIKey))
	}

	client := openai.NewClient(requestOpts...)
	slog.Info("GenAI client created", "azure", cfg.Endpoint != "", "model", cfg.Model)
	return &Client{completions: &client.Chat.Completions, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// GenerateContextualResponse answers a free-text message using the knowledge
// base and the recent conversation history.
func (c *Client) GenerateContextualResponse(ctx context.Context, userMessage string, history []models.HistoryEntry) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(knowledgeBasePrompt))
	for _, entry := range recentHistory(history, HistoryWindow) {
		switch entry.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(entry.Content))
		default:
			messages = append(messages, openai.UserMessage(entry.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMessage))

	return c.complete(ctx, messages, DefaultTemperature, DefaultMaxTokens)
}

// RecognizeIntent classifies a free-text message against the five menu
// options. Returns "1" through "5", or "0" when the intent is unclear.
func (c *Client) RecognizeIntent(ctx context.Context, userMessage string) (string, error) {
	prompt := fmt.Sprintf(`Analyze this user message and determine which Beforest service they're interested in.

User message: %q

Available options with keywords:
1. Collective Visit - group visit, team outing, corporate retreat, organization visit, group booking, team building
2. Beforest Experiences - nature experience, forest activity, workshop, guided tour, forest bathing, nature walk
3. Bewild Produce - products, shopping, honey, ghee, spices, skincare, buy, purchase, organic products
4. Beforest Hospitality - accommodation, stay, room, bungalow, glamping, hotel, lodging, overnight, blyton
5. Contact Beforest Team - query, question, support, help, contact, call, email, inquire, information

Respond with ONLY the number (1-5) that best matches their intent. If unclear or a greeting, respond with "0".`, userMessage)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You are an intent recognition expert. Match keywords precisely. Respond with only a single number 0-5."),
		openai.UserMessage(prompt),
	}
	reply, err := c.complete(ctx, messages, 0.1, 5)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// GenerateIntentConfirmation produces a one-line confirmation question for a
// recognized menu option.
func (c *Client) GenerateIntentConfirmation(ctx context.Context, userMessage, optionName string) (string, error) {
	prompt := fmt.Sprintf(
		"The user said: %q and seems interested in %q. Generate a short, friendly confirmation question like \"I understand you're interested in %s. Is that correct?\". Keep it under 15 words.",
		userMessage, optionName, optionName)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Generate brief, friendly confirmation messages."),
		openai.UserMessage(prompt),
	}
	return c.complete(ctx, messages, 0.3, 30)
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, temperature float64, maxTokens int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	completion, err := c.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		slog.Error("GenAI completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		slog.Error("GenAI completion returned no choices", "model", c.model)
		return "", fmt.Errorf("no choices returned")
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		slog.Error("GenAI completion returned empty content", "model", c.model)
		return "", fmt.Errorf("empty completion content")
	}

	slog.Debug("GenAI completion succeeded", "model", c.model,
		"response_length", len(content), "elapsed", time.Since(start).Round(time.Millisecond))
	return content, nil
}

// recentHistory returns up to n trailing entries.
func recentHistory(history []models.HistoryEntry, n int) []models.HistoryEntry {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

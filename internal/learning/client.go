// Package learning はトップページの「Learning of the Day」ウィジェットを提供する。
//
// OpenRouterのチャット補完APIで短い解説を生成し、Markdownをサニタイズ済みHTMLに変換する。
package learning

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hitoshi/dotsite/internal/model"
)

// SystemPrompt は生成時に渡すシステムプロンプト。
const SystemPrompt = `You are an AI educator specializing in explaining basic tech concepts in a simple, engaging way.
 Focus on fundamental topics OF AI/ML , DATA SCIENCE, CONCEPTS IN DEEP LEARNING, GENERATIVE AI, AND MORE.

For each topic:
- Start with a clear, concise definition
- Provide 2-3 key points or bullet points
- Include a simple real-world example
- Keep the total response under 100 words

Make the content beginner-friendly and practical.`

// UserPrompt は生成時に渡すユーザーメッセージ。
const UserPrompt = "Please provide today's learning point about a basic tech concept."

// エラーメッセージ
const (
	msgMissingAPIKey   = "OpenRouter API key is not configured"
	msgFetchFailed     = "Failed to fetch learning"
	msgInvalidResponse = "Invalid response format"
)

// Generator は解説文（Markdown）を1件生成する。
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

// ClientConfig はOpenRouterClientの設定。
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Referer はHTTP-Refererヘッダーに設定するサイトのURL。
	Referer string
	// Title はX-Titleヘッダーに設定するサイト名。
	Title   string
	Timeout time.Duration
	// HTTPClient はnilの場合http.DefaultClientを使う。
	HTTPClient *http.Client
}

// OpenRouterClient はOpenAI互換APIでOpenRouterを呼び出すGenerator。
type OpenRouterClient struct {
	client     openai.Client
	model      string
	configured bool
	timeout    time.Duration
	logger     *slog.Logger
}

// NewOpenRouterClient はOpenRouterClientを生成する。
// APIキーが空でも生成は成功し、Generateが設定エラーを返す。
func NewOpenRouterClient(cfg ClientConfig, logger *slog.Logger) *OpenRouterClient {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenRouterClient{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		configured: strings.TrimSpace(cfg.APIKey) != "",
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// Generate は固定のプロンプトでチャット補完を1回呼び出し、最初の選択肢の本文を返す。
func (c *OpenRouterClient) Generate(ctx context.Context) (string, error) {
	if !c.configured {
		return "", model.NewLearningUnavailableError(msgMissingAPIKey, nil)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(UserPrompt),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		c.logger.Warn("学習コンテンツの生成に失敗しました",
			slog.String("model", c.model),
			slog.String("error", err.Error()),
		)
		return "", model.NewLearningUnavailableError(upstreamMessage(err), err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", model.NewLearningUnavailableError(msgInvalidResponse, nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// upstreamMessage はAPIのエラーレスポンスに含まれるメッセージを返す。取得できない場合は既定の文言。
func upstreamMessage(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return msgFetchFailed
}

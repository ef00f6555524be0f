package services

import (
	"context"
	"time"

	"vendite-chat-api/pkg/openai"
)

// OpenAIService OpenAI互換チャット補完APIサービス
type OpenAIService struct {
	client *openai.Client
}

// NewOpenAIService 新しいOpenAIサービスを作成
func NewOpenAIService(baseURL, apiKey, model string) *OpenAIService {
	client := openai.NewClient(baseURL, apiKey, model, "") // proxyURLは通常運用では不要のため空文字列を渡す
	return &OpenAIService{
		client: client,
	}
}

// CompleteText 自由形式テキストの補完を実行
func (s *OpenAIService) CompleteText(systemPrompt, userPrompt string, maxTokens int, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages := []openai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	resp, err := s.client.ChatCompletion(ctx, messages, maxTokens, temperature, false)
	if err != nil {
		return "", err
	}

	return resp.FirstContent()
}

// CompleteJSON JSONモードで補完を実行し、応答本文をそのまま返す
// 応答はJSONオブジェクトに制約されるが、構造の検証は呼び出し側で行う
func (s *OpenAIService) CompleteJSON(systemPrompt, userPrompt string, maxTokens int, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages := []openai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	resp, err := s.client.ChatCompletion(ctx, messages, maxTokens, temperature, true)
	if err != nil {
		return "", err
	}

	return resp.FirstContent()
}

package services

import (
	"fmt"
	"strings"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/models"
)

const (
	responseMaxTokens   = 700
	responseTemperature = 0.7
)

// ResponseService は予測結果とトレンドから自然言語の回答を組み立てるサービス
type ResponseService struct {
	ai      *OpenAIService
	prompts *config.PromptsConfig
}

// NewResponseService 新しい応答生成サービスを作成
func NewResponseService(ai *OpenAIService, prompts *config.PromptsConfig) *ResponseService {
	return &ResponseService{
		ai:      ai,
		prompts: prompts,
	}
}

// GenerateForecastReply は予測データを根拠にした回答を生成する
func (s *ResponseService) GenerateForecastReply(message string, predictions []models.PredictionRecord, trends []models.TrendsSummary, failures []models.LookupFailure) (string, error) {
	userPrompt := fmt.Sprintf("Domanda dell'utente: %s\n\n## Dati disponibili\n%s",
		message, buildForecastContext(predictions, trends, failures))

	reply, err := s.ai.CompleteText(s.prompts.BuildResponsePrompt(), userPrompt, responseMaxTokens, responseTemperature)
	if err != nil {
		return "", &models.UpstreamServiceError{Service: "openai", Err: err}
	}
	return reply, nil
}

// GenerateChatReply は業務外の雑談・機能質問に答える
func (s *ResponseService) GenerateChatReply(message, context string) (string, error) {
	userPrompt := message
	if context != "" {
		userPrompt = fmt.Sprintf("Contesto della conversazione:\n%s\n\nDomanda: %s", context, message)
	}

	reply, err := s.ai.CompleteText(s.prompts.BuildConversationPrompt(), userPrompt, responseMaxTokens, responseTemperature)
	if err != nil {
		return "", &models.UpstreamServiceError{Service: "openai", Err: err}
	}
	return reply, nil
}

// DegradedParseReply はクエリ解析に失敗した時の定型回答
func (s *ResponseService) DegradedParseReply() string {
	return "Non sono riuscito a interpretare la richiesta. Puoi riformularla indicando il codice prodotto e il periodo (mese e anno)? " +
		"Esempio: \"Quanto venderemo del prodotto 40000 ad aprile 2026?\""
}

// DegradedLookupReply は全ての組み合わせが解決できなかった時の定型回答
func (s *ResponseService) DegradedLookupReply(failures []models.LookupFailure) string {
	var sb strings.Builder
	sb.WriteString("Non ho trovato dati sufficienti per elaborare una previsione.\n")
	for _, f := range failures {
		sb.WriteString(fmt.Sprintf("- %s\n", describeFailure(f)))
	}
	sb.WriteString("Verifica che il codice prodotto sia corretto oppure prova con un altro periodo.")
	return sb.String()
}

// buildForecastContext は言語モデルに渡すデータセクションを組み立てる
func buildForecastContext(predictions []models.PredictionRecord, trends []models.TrendsSummary, failures []models.LookupFailure) string {
	var sb strings.Builder

	if len(predictions) > 0 {
		sb.WriteString("### Previsioni\n")
		for _, p := range predictions {
			sb.WriteString(fmt.Sprintf("- %s: %.2f kg per %s (fonte: %s, confidenza: %.0f%%)",
				describeCombination(p.Product, p.ProductName, p.Customer, p.CustomerName), p.PredictedQuantity, p.Period, sourceLabel(p.Source), p.Confidence*100))
			if p.LowConfidence {
				sb.WriteString(" [ATTENZIONE: confidenza bassa, da segnalare]")
			}
			sb.WriteString("\n")
		}
	}

	if len(trends) > 0 {
		sb.WriteString("\n### Tendenze di ricerca\n")
		for _, tr := range trends {
			sb.WriteString(fmt.Sprintf("- Prodotto %s: interesse %.0f/100, tendenza %s. %s\n",
				tr.Product, tr.InterestLevel, tr.TrendDirection, tr.Commentary))
		}
	}

	if len(failures) > 0 {
		sb.WriteString("\n### Combinazioni senza dati\n")
		for _, f := range failures {
			sb.WriteString(fmt.Sprintf("- %s\n", describeFailure(f)))
		}
	}

	return sb.String()
}

// describeCombination は製品・顧客の説明ラベルを作る
func describeCombination(product, productName, customer, customerName string) string {
	label := fmt.Sprintf("Prodotto %s", product)
	if productName != "" {
		label = fmt.Sprintf("Prodotto %s (%s)", product, productName)
	}
	if customer != "" {
		label += fmt.Sprintf(", cliente %s", customer)
		if customerName != "" {
			label += fmt.Sprintf(" (%s)", customerName)
		}
	}
	return label
}

// describeFailure は解決できなかった組み合わせの説明ラベルを作る
func describeFailure(f models.LookupFailure) string {
	return fmt.Sprintf("%s, periodo %s: nessun dato disponibile", describeCombination(f.Product, "", f.Customer, ""), f.Period)
}

// sourceLabel は予測元のイタリア語ラベル
func sourceLabel(source string) string {
	if source == models.SourceHistorical {
		return "storico"
	}
	return "modello"
}

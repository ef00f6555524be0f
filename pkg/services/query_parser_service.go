package services

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/models"
)

const (
	parseMaxTokens   = 300
	parseTemperature = 0.3
)

// rawPeriod は言語モデルが返す期間オブジェクト（イタリア語キー）
type rawPeriod struct {
	Mese int `json:"mese"`
	Anno int `json:"anno"`
}

// rawParsedQuery は言語モデルが返すJSONの生の形
type rawParsedQuery struct {
	Intent    string     `json:"intent"`
	Products  []string   `json:"products"`
	Customer  string     `json:"customer"`
	Period    *rawPeriod `json:"period"`
	PeriodEnd *rawPeriod `json:"period_end"`
}

// QueryParserService は自然言語の質問を検証済みのParsedQueryに変換するサービス
type QueryParserService struct {
	ai      *OpenAIService
	prompts *config.PromptsConfig
}

// NewQueryParserService 新しいクエリ解析サービスを作成
func NewQueryParserService(ai *OpenAIService, prompts *config.PromptsConfig) *QueryParserService {
	return &QueryParserService{
		ai:      ai,
		prompts: prompts,
	}
}

// ParseQuery はユーザーの質問を解析する
// 返すエラーは *models.ParseFailure（劣化応答で継続）か
// *models.UpstreamServiceError（リクエスト失敗）のどちらか
func (s *QueryParserService) ParseQuery(message string) (*models.ParsedQuery, error) {
	today := time.Now().Format("2006-01-02")
	systemPrompt := s.prompts.BuildParserPrompt(today)

	raw, err := s.ai.CompleteJSON(systemPrompt, message, parseMaxTokens, parseTemperature)
	if err != nil {
		return nil, &models.UpstreamServiceError{Service: "openai", Err: err}
	}

	var parsed rawParsedQuery
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		log.Printf("⚠️ クエリ解析のJSONが壊れています: %v", err)
		return nil, &models.ParseFailure{
			Reason:    "risposta del modello non in formato JSON",
			RawOutput: raw,
		}
	}

	return validateParsedQuery(&parsed, raw, time.Now().Year())
}

// validateParsedQuery は生のJSONを検証し、正規化済みのParsedQueryへ変換する
// 年が省略された期間は現在の年として解釈する
func validateParsedQuery(parsed *rawParsedQuery, raw string, currentYear int) (*models.ParsedQuery, error) {
	intent := strings.ToLower(strings.TrimSpace(parsed.Intent))
	switch intent {
	case models.IntentChat:
		// 雑談は製品・期間を必要としない
		return &models.ParsedQuery{Intent: models.IntentChat}, nil
	case models.IntentForecast:
		// 続けて検証
	default:
		return nil, &models.ParseFailure{
			Reason:    "intento non riconosciuto: " + parsed.Intent,
			RawOutput: raw,
		}
	}

	products := normalizeProducts(parsed.Products)
	if len(products) == 0 {
		return nil, &models.ParseFailure{
			Reason:    "nessun prodotto riconosciuto nella domanda",
			RawOutput: raw,
		}
	}

	period, ok := resolvePeriod(parsed.Period, currentYear)
	if !ok {
		return nil, &models.ParseFailure{
			Reason:    "periodo non valido o mancante",
			RawOutput: raw,
		}
	}

	query := &models.ParsedQuery{
		Intent:   models.IntentForecast,
		Products: products,
		Customer: normalizeCode(parsed.Customer),
		Period:   period,
	}

	// 終了期間は任意。指定があれば検証する
	if parsed.PeriodEnd != nil {
		end, ok := resolvePeriod(parsed.PeriodEnd, currentYear)
		if !ok {
			return nil, &models.ParseFailure{
				Reason:    "periodo finale non valido",
				RawOutput: raw,
			}
		}
		if end.Before(query.Period) {
			return nil, &models.ParseFailure{
				Reason:    "periodo finale precedente a quello iniziale",
				RawOutput: raw,
			}
		}
		if query.Period.Before(end) {
			query.PeriodEnd = &end
		}
	}

	return query, nil
}

// resolvePeriod は期間オブジェクトを検証し、省略された年を補完する
func resolvePeriod(p *rawPeriod, currentYear int) (models.Period, bool) {
	if p == nil || p.Mese < 1 || p.Mese > 12 {
		return models.Period{}, false
	}
	year := p.Anno
	if year == 0 {
		year = currentYear
	}
	if year < 2000 || year > 2100 {
		return models.Period{}, false
	}
	return models.Period{Month: p.Mese, Year: year}, true
}

// normalizeProducts は空要素を除き、順序を保ったまま重複を取り除く
func normalizeProducts(products []string) []string {
	seen := make(map[string]bool, len(products))
	out := make([]string, 0, len(products))
	for _, p := range products {
		code := normalizeCode(p)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// extractJSON はコードフェンスや前後のテキストを取り除きJSON本体を取り出す
// 互換プロバイダーの中にはJSONモード指定を無視してフェンス付きで返すものがある
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}

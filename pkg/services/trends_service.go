package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/models"
)

const (
	trendsWindowDays  = 90
	maxTrendKeywords  = 5
	keywordsMaxTokens = 200
)

// グローバルキャッシュ（スレッドセーフ）
var (
	trendsCache      = make(map[string][]float64)
	trendsCacheMutex sync.RWMutex
)

// TrendsService は消費者の検索トレンドで予測結果を補強するサービス
// プロバイダー障害は常にローカルで回復し、リクエスト全体を失敗させない
type TrendsService struct {
	ai      *OpenAIService
	cfg     *config.TrendsConfig
	prompts *config.PromptsConfig
	client  *http.Client
}

// NewTrendsService 新しいトレンド分析サービスを作成
func NewTrendsService(ai *OpenAIService, cfg *config.TrendsConfig, prompts *config.PromptsConfig) *TrendsService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TrendsService{
		ai:      ai,
		cfg:     cfg,
		prompts: prompts,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// keywordsReply は言語モデルが返すキーワードJSONの形
type keywordsReply struct {
	Keywords []string `json:"keywords"`
}

// trendsAPIResponse はトレンドプロバイダーの応答構造体
type trendsAPIResponse struct {
	InterestOverTime struct {
		TimelineData []struct {
			Date   string `json:"date"`
			Values []struct {
				ExtractedValue float64 `json:"extracted_value"`
			} `json:"values"`
		} `json:"timeline_data"`
	} `json:"interest_over_time"`
}

// AnalyzeProducts は各製品のトレンドサマリーを作成する
// 製品ごとに独立して処理し、失敗した製品はスキップする
func (s *TrendsService) AnalyzeProducts(products []string, productNames map[string]string, period models.Period) []models.TrendsSummary {
	if !s.cfg.Enabled {
		return nil
	}

	summaries := make([]models.TrendsSummary, 0, len(products))

	for _, product := range products {
		summary, err := s.analyzeProduct(product, productNames[product], period)
		if err != nil {
			log.Printf("⚠️ %v", err)
			continue
		}
		summaries = append(summaries, summary)
	}

	return summaries
}

// analyzeProduct は1製品のトレンドサマリーを作成する
func (s *TrendsService) analyzeProduct(product, productName string, period models.Period) (models.TrendsSummary, *models.TrendsUnavailable) {
	keywords, err := s.GenerateKeywords(product, productName)
	if err != nil {
		return models.TrendsSummary{}, &models.TrendsUnavailable{
			Product: product,
			Reason:  fmt.Sprintf("generazione parole chiave fallita: %v", err),
		}
	}

	start, end, clamped := trendsWindow(period, time.Now())

	series, err := s.FetchInterest(keywords, start, end)
	if err != nil {
		return models.TrendsSummary{}, &models.TrendsUnavailable{
			Product: product,
			Reason:  fmt.Sprintf("provider non disponibile: %v", err),
		}
	}
	if len(series) == 0 {
		return models.TrendsSummary{}, &models.TrendsUnavailable{
			Product: product,
			Reason:  "nessun dato di interesse nel periodo",
		}
	}

	level := calculateMean(series)
	direction := trendDirection(series)

	displayName := productName
	if displayName == "" {
		displayName = product
	}

	commentary := buildTrendsCommentary(displayName, keywords, series, level, direction, end, clamped)

	log.Printf("✅ トレンド分析完了: %s (interesse %.0f, %s)", product, level, direction)
	return models.TrendsSummary{
		Product:        product,
		Keywords:       keywords,
		InterestLevel:  level,
		TrendDirection: direction,
		Commentary:     commentary,
	}, nil
}

// GenerateKeywords は製品の検索キーワードを言語モデルで生成する
func (s *TrendsService) GenerateKeywords(product, productName string) ([]string, error) {
	userPrompt := fmt.Sprintf("Prodotto: %s", product)
	if productName != "" {
		userPrompt = fmt.Sprintf("Prodotto: %s (%s)", productName, product)
	}

	raw, err := s.ai.CompleteJSON(s.prompts.BuildKeywordsPrompt(), userPrompt, keywordsMaxTokens, parseTemperature)
	if err != nil {
		return nil, err
	}

	var reply keywordsReply
	if err := json.Unmarshal([]byte(extractJSON(raw)), &reply); err != nil {
		return nil, fmt.Errorf("risposta keywords non valida: %w", err)
	}

	keywords := make([]string, 0, maxTrendKeywords)
	for _, kw := range reply.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) == maxTrendKeywords {
			break
		}
	}

	if len(keywords) == 0 {
		return nil, fmt.Errorf("nessuna parola chiave generata")
	}
	return keywords, nil
}

// FetchInterest はプロバイダーから期間内の興味指数系列を取得する（キャッシュ対応版）
func (s *TrendsService) FetchInterest(keywords []string, start, end time.Time) ([]float64, error) {
	query := strings.Join(keywords, ",")
	cacheKey := fmt.Sprintf("%s:%s:%s:%s", s.cfg.Geo, query, start.Format("2006-01-02"), end.Format("2006-01-02"))

	// キャッシュをチェック（読み取りロック）
	trendsCacheMutex.RLock()
	cached, exists := trendsCache[cacheKey]
	trendsCacheMutex.RUnlock()

	if exists {
		log.Printf("🎯 トレンドキャッシュヒット: %s (%d件)", query, len(cached))
		return cached, nil
	}

	log.Printf("🔍 トレンド取得開始: %s, 期間=%s〜%s",
		query, start.Format("2006-01-02"), end.Format("2006-01-02"))

	params := url.Values{}
	params.Set("q", query)
	params.Set("geo", s.cfg.Geo)
	params.Set("date", fmt.Sprintf("%s %s", start.Format("2006-01-02"), end.Format("2006-01-02")))
	if s.cfg.APIKey != "" {
		params.Set("api_key", s.cfg.APIKey)
	}

	requestURL := fmt.Sprintf("%s?%s", strings.TrimSuffix(s.cfg.BaseURL, "/"), params.Encode())

	resp, err := s.client.Get(requestURL)
	if err != nil {
		return nil, fmt.Errorf("トレンドAPI呼び出しエラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("トレンドAPI応答エラー: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み込みエラー: %w", err)
	}

	var apiResp trendsAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("JSON解析エラー: %w", err)
	}

	series := make([]float64, 0, len(apiResp.InterestOverTime.TimelineData))
	for _, point := range apiResp.InterestOverTime.TimelineData {
		if len(point.Values) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range point.Values {
			sum += v.ExtractedValue
		}
		series = append(series, sum/float64(len(point.Values)))
	}

	// キャッシュに保存（書き込みロック）
	trendsCacheMutex.Lock()
	trendsCache[cacheKey] = series
	trendsCacheMutex.Unlock()

	log.Printf("✅ トレンド取得完了: %d件 (キャッシュに保存)", len(series))
	return series, nil
}

// trendsWindow は対象月を末尾とする90日間の窓を返す
// 窓が未完了の月にかかる場合は、直近の完了月まで繰り上げて代替する
func trendsWindow(period models.Period, now time.Time) (time.Time, time.Time, bool) {
	end := lastDayOfMonth(period.Year, period.Month)

	maxEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	clamped := false
	if end.After(maxEnd) {
		end = maxEnd
		clamped = true
	}

	start := end.AddDate(0, 0, -(trendsWindowDays - 1))
	return start, end, clamped
}

// lastDayOfMonth は指定月の末日を返す
func lastDayOfMonth(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}

// trendDirection は系列の前半と後半の平均を比べて傾向を判定する
func trendDirection(series []float64) string {
	chunk := len(series) / 3
	if chunk == 0 {
		return models.TrendStable
	}

	first := calculateMean(series[:chunk])
	last := calculateMean(series[len(series)-chunk:])

	switch {
	case last > first*1.05:
		return models.TrendUp
	case last < first*0.95:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

// buildTrendsCommentary はサマリーの説明文を組み立てる（イタリア語）
func buildTrendsCommentary(displayName string, keywords []string, series []float64, level float64, direction string, end time.Time, clamped bool) string {
	shown := keywords
	if len(shown) > 3 {
		shown = shown[:3]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Interesse di ricerca medio %.0f/100 per %s (parole chiave: %s), tendenza %s negli ultimi %d giorni fino al %s.",
		level, displayName, strings.Join(shown, ", "), direction, trendsWindowDays, end.Format("02/01/2006")))

	if level > 0 {
		stdDev := calculateStandardDeviation(series)
		if stdDev/level > 0.25 {
			sb.WriteString(" L'interesse mostra una forte variabilità nel periodo.")
		}
	}

	if clamped {
		sb.WriteString(" Il periodo richiesto è futuro: i dati di interesse sono riferiti all'ultimo intervallo disponibile.")
	}

	return sb.String()
}

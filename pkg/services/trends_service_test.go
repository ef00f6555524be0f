package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/models"
)

// resetTrendsCache はテスト間でグローバルキャッシュを初期化する
func resetTrendsCache() {
	trendsCacheMutex.Lock()
	trendsCache = make(map[string][]float64)
	trendsCacheMutex.Unlock()
}

// stubTrendsServer は興味指数系列を返すトレンドプロバイダーのスタブ
func stubTrendsServer(t *testing.T, series []float64, status int, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		points := make([]map[string]interface{}, 0, len(series))
		for i, v := range series {
			points = append(points, map[string]interface{}{
				"date":   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02"),
				"values": []map[string]interface{}{{"extracted_value": v}},
			})
		}
		resp := map[string]interface{}{
			"interest_over_time": map[string]interface{}{
				"timeline_data": points,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestTrendsService(t *testing.T, llmReply string, series []float64, status int) (*TrendsService, *httptest.Server, *httptest.Server, *int32) {
	t.Helper()
	resetTrendsCache()

	hits := new(int32)
	llm := stubChatServer(t, llmReply)
	provider := stubTrendsServer(t, series, status, hits)

	ai := NewOpenAIService(llm.URL, "test-key", "gpt-4o-mini")
	cfg := &config.TrendsConfig{
		Enabled:        true,
		APIKey:         "test-trends-key",
		BaseURL:        provider.URL,
		Geo:            "IT",
		TimeoutSeconds: 10,
	}
	return NewTrendsService(ai, cfg, loadTestPrompts(t)), llm, provider, hits
}

func TestAnalyzeProductsDisabled(t *testing.T) {
	// フラグで無効化されている場合は何も呼ばずに終了
	svc, llm, provider, hits := newTestTrendsService(t, `{"keywords":["grissini"]}`, []float64{10, 20, 30}, http.StatusOK)
	defer llm.Close()
	defer provider.Close()
	svc.cfg.Enabled = false

	summaries := svc.AnalyzeProducts([]string{"40000"}, nil, models.Period{Month: 4, Year: 2020})

	if summaries != nil {
		t.Errorf("Expected no summaries when trends are disabled, got %v", summaries)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("Expected no provider calls when disabled, got %d", atomic.LoadInt32(hits))
	}
}

func TestTrendsWindowPastPeriod(t *testing.T) {
	// 過去の月はその月の末日で窓を閉じる
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	start, end, clamped := trendsWindow(models.Period{Month: 4, Year: 2020}, now)

	if clamped {
		t.Error("Expected no clamping for a past period")
	}
	wantEnd := time.Date(2020, 4, 30, 0, 0, 0, 0, time.UTC)
	if !end.Equal(wantEnd) {
		t.Errorf("Expected end %s, got %s", wantEnd.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	wantStart := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("Expected start %s, got %s", wantStart.Format("2006-01-02"), start.Format("2006-01-02"))
	}
}

func TestTrendsWindowFuturePeriod(t *testing.T) {
	// 未来の月は直近の完了月まで繰り上げる
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	start, end, clamped := trendsWindow(models.Period{Month: 1, Year: 2999}, now)

	if !clamped {
		t.Error("Expected clamping for a future period")
	}
	wantEnd := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if !end.Equal(wantEnd) {
		t.Errorf("Expected end %s, got %s", wantEnd.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if days := end.Sub(start).Hours() / 24; days != float64(trendsWindowDays-1) {
		t.Errorf("Expected a %d day window, got %.0f days between endpoints", trendsWindowDays, days)
	}
}

func TestTrendsWindowCurrentMonth(t *testing.T) {
	// 進行中の月も未完了なので繰り上げ対象
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	_, end, clamped := trendsWindow(models.Period{Month: 8, Year: 2026}, now)

	if !clamped {
		t.Error("Expected clamping for the current month")
	}
	wantEnd := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if !end.Equal(wantEnd) {
		t.Errorf("Expected end %s, got %s", wantEnd.Format("2006-01-02"), end.Format("2006-01-02"))
	}
}

func TestTrendDirection(t *testing.T) {
	testCases := []struct {
		name     string
		series   []float64
		expected string
	}{
		{"上昇トレンド", []float64{10, 10, 10, 20, 20, 20, 30, 30, 30}, models.TrendUp},
		{"下降トレンド", []float64{30, 30, 30, 20, 20, 20, 10, 10, 10}, models.TrendDown},
		{"安定トレンド", []float64{50, 50, 50, 50, 50, 50, 50, 50, 50}, models.TrendStable},
		{"5%未満の変動は安定", []float64{100, 100, 100, 102, 102, 102, 103, 103, 103}, models.TrendStable},
		{"ゼロから上昇", []float64{0, 0, 0, 5, 5, 5, 9, 9, 9}, models.TrendUp},
		{"短すぎる系列", []float64{10, 90}, models.TrendStable},
		{"空の系列", []float64{}, models.TrendStable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := trendDirection(tc.series); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestAnalyzeProductsSuccess(t *testing.T) {
	series := []float64{10, 10, 10, 20, 20, 20, 30, 30, 30}
	svc, llm, provider, hits := newTestTrendsService(t, `{"keywords":["grissini torinesi","snack italiani"]}`, series, http.StatusOK)
	defer llm.Close()
	defer provider.Close()

	summaries := svc.AnalyzeProducts([]string{"40000"}, map[string]string{"40000": "GRISSINI 125G"}, models.Period{Month: 4, Year: 2020})

	if len(summaries) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(summaries))
	}
	summary := summaries[0]

	if summary.Product != "40000" {
		t.Errorf("Expected product 40000, got %q", summary.Product)
	}
	if len(summary.Keywords) != 2 {
		t.Errorf("Expected 2 keywords, got %v", summary.Keywords)
	}
	if summary.TrendDirection != models.TrendUp {
		t.Errorf("Expected %q direction, got %q", models.TrendUp, summary.TrendDirection)
	}
	if summary.InterestLevel != 20 {
		t.Errorf("Expected interest level 20, got %.2f", summary.InterestLevel)
	}
	if !strings.Contains(summary.Commentary, "GRISSINI 125G") {
		t.Errorf("Expected commentary to mention the product name, got %q", summary.Commentary)
	}
	if strings.Contains(summary.Commentary, "futuro") {
		t.Errorf("Did not expect a substitution note for a past period, got %q", summary.Commentary)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("Expected 1 provider call, got %d", atomic.LoadInt32(hits))
	}
}

func TestAnalyzeProductsFuturePeriod(t *testing.T) {
	// 未来の期間でもエラーにならず、説明文に代替の注記が入る
	series := []float64{40, 42, 41, 43, 44, 42}
	svc, llm, provider, _ := newTestTrendsService(t, `{"keywords":["taralli pugliesi"]}`, series, http.StatusOK)
	defer llm.Close()
	defer provider.Close()

	summaries := svc.AnalyzeProducts([]string{"40140"}, nil, models.Period{Month: 1, Year: 2999})

	if len(summaries) != 1 {
		t.Fatalf("Expected 1 summary for a future period, got %d", len(summaries))
	}
	if !strings.Contains(summaries[0].Commentary, "Il periodo richiesto è futuro") {
		t.Errorf("Expected a substitution note in the commentary, got %q", summaries[0].Commentary)
	}
	// 製品名が無い場合はコードで表示
	if !strings.Contains(summaries[0].Commentary, "40140") {
		t.Errorf("Expected the product code in the commentary, got %q", summaries[0].Commentary)
	}
}

func TestAnalyzeProductsKeywordFailure(t *testing.T) {
	// キーワード生成に失敗した製品はスキップされ、プロバイダーは呼ばれない
	svc, llm, provider, hits := newTestTrendsService(t, "risposta non valida", []float64{10, 20}, http.StatusOK)
	defer llm.Close()
	defer provider.Close()

	summaries := svc.AnalyzeProducts([]string{"40000"}, nil, models.Period{Month: 4, Year: 2020})

	if len(summaries) != 0 {
		t.Errorf("Expected no summaries, got %d", len(summaries))
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("Expected no provider calls, got %d", atomic.LoadInt32(hits))
	}
}

func TestAnalyzeProductsProviderDown(t *testing.T) {
	svc, llm, provider, _ := newTestTrendsService(t, `{"keywords":["grissini"]}`, nil, http.StatusInternalServerError)
	defer llm.Close()
	defer provider.Close()

	summaries := svc.AnalyzeProducts([]string{"40000"}, nil, models.Period{Month: 4, Year: 2020})

	if len(summaries) != 0 {
		t.Errorf("Expected no summaries when the provider fails, got %d", len(summaries))
	}
}

func TestAnalyzeProductsEmptySeries(t *testing.T) {
	svc, llm, provider, _ := newTestTrendsService(t, `{"keywords":["grissini"]}`, []float64{}, http.StatusOK)
	defer llm.Close()
	defer provider.Close()

	summaries := svc.AnalyzeProducts([]string{"40000"}, nil, models.Period{Month: 4, Year: 2020})

	if len(summaries) != 0 {
		t.Errorf("Expected no summaries for an empty series, got %d", len(summaries))
	}
}

func TestFetchInterestCache(t *testing.T) {
	resetTrendsCache()

	hits := new(int32)
	provider := stubTrendsServer(t, []float64{10, 20, 30}, http.StatusOK, hits)
	defer provider.Close()

	svc := NewTrendsService(nil, &config.TrendsConfig{BaseURL: provider.URL, Geo: "IT"}, nil)

	start := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 4, 30, 0, 0, 0, 0, time.UTC)

	first, err := svc.FetchInterest([]string{"grissini"}, start, end)
	if err != nil {
		t.Fatalf("FetchInterest returned error: %v", err)
	}
	second, err := svc.FetchInterest([]string{"grissini"}, start, end)
	if err != nil {
		t.Fatalf("FetchInterest returned error on cached call: %v", err)
	}

	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("Expected 1 provider call with cache, got %d", atomic.LoadInt32(hits))
	}
	if len(first) != 3 || len(second) != 3 {
		t.Errorf("Expected 3 points from both calls, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Cached series differs at index %d: %.2f vs %.2f", i, first[i], second[i])
		}
	}
}

func TestGenerateKeywordsLimit(t *testing.T) {
	// 5件を超えるキーワードは切り詰め、空要素は除外する
	reply := `{"keywords":["uno","due","  ","tre","quattro","cinque","sei","sette"]}`
	llm := stubChatServer(t, reply)
	defer llm.Close()

	ai := NewOpenAIService(llm.URL, "test-key", "gpt-4o-mini")
	svc := NewTrendsService(ai, &config.TrendsConfig{Geo: "IT"}, loadTestPrompts(t))

	keywords, err := svc.GenerateKeywords("40000", "GRISSINI")
	if err != nil {
		t.Fatalf("GenerateKeywords returned error: %v", err)
	}

	if len(keywords) != maxTrendKeywords {
		t.Fatalf("Expected %d keywords, got %d", maxTrendKeywords, len(keywords))
	}
	expected := []string{"uno", "due", "tre", "quattro", "cinque"}
	for i, kw := range expected {
		if keywords[i] != kw {
			t.Errorf("Expected keyword %q at index %d, got %q", kw, i, keywords[i])
		}
	}
}

func TestBuildTrendsCommentaryVolatility(t *testing.T) {
	series := []float64{10, 100, 10, 100, 10, 100}
	level := calculateMean(series)
	end := time.Date(2020, 4, 30, 0, 0, 0, 0, time.UTC)

	commentary := buildTrendsCommentary("GRISSINI", []string{"a", "b", "c", "d"}, series, level, models.TrendStable, end, false)

	if !strings.Contains(commentary, "forte variabilità") {
		t.Errorf("Expected a volatility note, got %q", commentary)
	}
	if !strings.Contains(commentary, "a, b, c") {
		t.Errorf("Expected the first three keywords, got %q", commentary)
	}
	if strings.Contains(commentary, "c, d") {
		t.Errorf("Expected only three keywords shown, got %q", commentary)
	}
	if !strings.Contains(commentary, "30/04/2020") {
		t.Errorf("Expected the window end date, got %q", commentary)
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "vendite-chat-api/configs"
)

// newTestConfig は実在する一時データファイルを指す設定を作る
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	tablePath := filepath.Join(dir, "storico.csv")
	table := "Articolo;Descrizione Articolo;Cliente;Anno;Mese;Kg Previsti\n" +
		"40000;GRISSINI 125G;102330;2026;4;1200\n"
	require.NoError(t, os.WriteFile(tablePath, []byte(table), 0o644))

	modelPath := filepath.Join(dir, "model.json")
	artifact := map[string]interface{}{
		"model_name":   "linear_regression",
		"features":     []string{"Mese_Sin"},
		"coefficients": []float64{0},
		"intercept":    480.0,
		"scaler": map[string]interface{}{
			"mean": []float64{0},
			"std":  []float64{1},
		},
		"product_codes":  map[string]float64{"40000": 12},
		"customer_codes": map[string]float64{"": 0},
		"global_mean_kg": 900.0,
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(modelPath, data, 0o644))

	return &config.Config{
		Port:                   "8080",
		APIKey:                 "default_secret_key",
		AdminUsername:          "admin",
		AdminPassword:          "",
		OpenAIBaseURL:          "http://localhost:9",
		OpenAIAPIKey:           "test-key",
		OpenAIModel:            "gpt-4o-mini",
		HistoricalDataPath:     tablePath,
		ModelArtifactPath:      modelPath,
		PromptsPath:            "../../configs/prompts.yaml",
		LowConfidenceThreshold: 0.7,
		Trends:                 &config.TrendsConfig{Enabled: false},
	}
}

func get(t *testing.T, router *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest("GET", path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouterServesCoreRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(newTestConfig(t))
	require.NoError(t, err)

	// API情報
	w := get(t, router, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Vendite Chat API")
	assert.Contains(t, w.Body.String(), "POST /api/v1/chat")

	// ヘルスチェック
	w = get(t, router, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 稼働状態（テーブルとモデルは読み込み済み）
	w = get(t, router, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"operational"`)
	assert.Contains(t, w.Body.String(), `"table_rows":1`)
}

func TestNewRouterMissingPrompts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := newTestConfig(t)
	cfg.PromptsPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewRouter(cfg)
	assert.Error(t, err)
}

func TestAuthMiddlewarePlaceholderSkips(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// プレースホルダーのままなら認証なしで通る
	router, err := NewRouter(newTestConfig(t))
	require.NoError(t, err)

	w := get(t, router, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareEnforcesKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := newTestConfig(t)
	cfg.APIKey = "real-secret"
	router, err := NewRouter(cfg)
	require.NoError(t, err)

	// ヘッダーなし
	w := get(t, router, "/api/v1/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 間違ったキー
	w = get(t, router, "/api/v1/status", map[string]string{"X-API-KEY": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 正しいキー
	w = get(t, router, "/api/v1/status", map[string]string{"X-API-KEY": "real-secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	// 認証は/api/v1配下のみ。ヘルスチェックは常に開いている
	w = get(t, router, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

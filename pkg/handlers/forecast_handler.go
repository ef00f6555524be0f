package handlers

import (
	"net/http"
	"time"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/models"
	"vendite-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ForecastHandler は言語モデルを介さない構造化予測と稼働状態のハンドラです。
type ForecastHandler struct {
	cfg         *config.Config
	predictions *services.PredictionService
	predictor   *services.PredictorService
	history     *services.HistoryService
}

// NewForecastHandler は新しいForecastHandlerを生成します。
func NewForecastHandler(
	cfg *config.Config,
	predictions *services.PredictionService,
	predictor *services.PredictorService,
	history *services.HistoryService,
) *ForecastHandler {
	return &ForecastHandler{
		cfg:         cfg,
		predictions: predictions,
		predictor:   predictor,
		history:     history,
	}
}

// Predict は単一の製品/顧客/期間の組み合わせを直接解決します。
// チャットと同じ解決ポリシー（履歴テーブル優先、モデルフォールバック）を使います。
func (h *ForecastHandler) Predict(c *gin.Context) {
	var req models.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formato della richiesta non valido: " + err.Error()})
		return
	}
	if req.Month < 1 || req.Month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Mese non valido: deve essere compreso tra 1 e 12"})
		return
	}
	if req.Year < 2000 || req.Year > 2100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Anno non valido: deve essere compreso tra 2000 e 2100"})
		return
	}

	record, failure := h.predictions.Resolve(req.Product, req.Customer, models.Period{Month: req.Month, Year: req.Year})
	if failure != nil {
		c.Set(services.ContextErrorType, "lookup_failure")
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Nessun dato disponibile per la combinazione richiesta",
			"failure": failure,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"prediction": record,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// Status は各モジュールの稼働状態を返します。
// 中核モジュール（解析・テーブル・モデル）のどれかが使えない場合は503になります。
func (h *ForecastHandler) Status(c *gin.Context) {
	tableRows, tableErr := h.history.Count()
	artifact, artifactErr := h.predictor.Artifact()

	parserReady := h.cfg.OpenAIAPIKey != ""
	tableReady := tableErr == nil
	modelReady := artifactErr == nil

	data := gin.H{"table_rows": tableRows}
	if modelReady {
		data["model_name"] = artifact.ModelName
		data["model_features"] = len(artifact.Features)
		data["trained_at"] = artifact.TrainedAt
	}

	status := "operational"
	code := http.StatusOK
	if !parserReady || !tableReady || !modelReady {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"modules": gin.H{
			"query_parser":     parserReady,
			"historical_table": tableReady,
			"predictor":        modelReady,
			"trends":           h.cfg.Trends.Enabled,
		},
		"data": data,
	})
}

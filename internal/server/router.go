package server

import (
	"log"
	"net/http"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/handlers"
	"vendite-chat-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter は全サービスと全ルートを組み立てたGinエンジンを返します。
// cmd/serverとサーバーレスアダプターの両方がこの組み立てを共有します。
func NewRouter(cfg *config.Config) (*gin.Engine, error) {
	prompts, err := config.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}

	r := gin.Default()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	aiService := services.NewOpenAIService(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	historyService := services.NewHistoryService(cfg.HistoricalDataPath)
	predictorService := services.NewPredictorService(cfg.ModelArtifactPath, historyService)
	predictionService := services.NewPredictionService(historyService, predictorService, cfg.LowConfidenceThreshold)
	parserService := services.NewQueryParserService(aiService, prompts)
	trendsService := services.NewTrendsService(aiService, cfg.Trends, prompts)
	responseService := services.NewResponseService(aiService, prompts)

	// 履歴テーブルとモデルは起動時に読み込む。失敗してもサーバーは起動し、
	// /api/v1/statusが劣化状態を報告する。
	if rows, err := historyService.Count(); err != nil {
		log.Printf("⚠️ 履歴テーブルの読み込みに失敗: %v", err)
	} else {
		log.Printf("✅ 履歴テーブルを読み込みました (%d行)", rows)
	}
	if artifact, err := predictorService.Artifact(); err != nil {
		log.Printf("⚠️ モデル成果物の読み込みに失敗: %v", err)
	} else {
		log.Printf("✅ モデル %s を読み込みました (%d特徴量)", artifact.ModelName, len(artifact.Features))
	}

	// ハンドラーの初期化
	chatHandler := handlers.NewChatHandler(parserService, predictionService, trendsService, responseService, historyService)
	forecastHandler := handlers.NewForecastHandler(cfg, predictionService, predictorService, historyService)
	adminHandler := handlers.NewAdminHandler(cfg)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	r.Use(cors.New(corsConfig))

	// ヘルスチェックとAPI情報
	r.GET("/health", handlers.HealthCheck)
	r.GET("/", apiInfo)

	// APIルートの定義
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		v1.POST("/chat", chatHandler.Chat)
		v1.POST("/predict", forecastHandler.Predict)
		v1.GET("/status", forecastHandler.Status)

		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	return r, nil
}

// authMiddleware はX-API-KEYヘッダーを検証します。
// キーが未設定、または既定のプレースホルダーのままの場合は認証をスキップします。
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || apiKey == "default_secret_key" {
			c.Next()
			return
		}
		if providedKey := c.GetHeader("X-API-KEY"); providedKey != apiKey {
			log.Printf("❌ [認証] 無効なAPI Key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// apiInfo はルートエンドポイントでAPIの概要を返します。
func apiInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "Vendite Chat API",
		"version": "2.0",
		"endpoints": gin.H{
			"POST /api/v1/chat":           "Invia un messaggio (chat o richiesta di previsione)",
			"POST /api/v1/predict":        "Richiesta diretta di predizione",
			"GET /api/v1/status":          "Stato del sistema",
			"GET /api/v1/monitoring/logs": "Dashboard di monitoraggio",
			"GET /health":                 "Health check",
		},
	})
}

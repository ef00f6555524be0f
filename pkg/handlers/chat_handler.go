package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"vendite-chat-api/pkg/models"
	"vendite-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ChatHandler は自然言語チャットのパイプライン全体を束ねるハンドラです。
// 解析 → 予測解決 → トレンド補強 → 応答生成の順に各サービスを呼び出します。
type ChatHandler struct {
	parser      *services.QueryParserService
	predictions *services.PredictionService
	trends      *services.TrendsService
	responses   *services.ResponseService
	history     *services.HistoryService
}

// NewChatHandler は新しいChatHandlerを生成します。
func NewChatHandler(
	parser *services.QueryParserService,
	predictions *services.PredictionService,
	trends *services.TrendsService,
	responses *services.ResponseService,
	history *services.HistoryService,
) *ChatHandler {
	return &ChatHandler{
		parser:      parser,
		predictions: predictions,
		trends:      trends,
		responses:   responses,
		history:     history,
	}
}

// Chat はユーザーメッセージを処理するメインエンドポイントです。
//
// Flow:
// 1. Query Parserがチャットか予測クエリかを判定
// 2. 予測クエリ → 履歴テーブル/モデルで解決し、トレンドで補強
// 3. チャット → 会話プロンプトで直接応答
//
// 解析失敗と全組み合わせの解決失敗は200の劣化応答、
// 外部サービスの障害のみ502を返します。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formato della richiesta non valido: " + err.Error()})
		return
	}

	// STEP 1: メッセージを解析
	parsed, err := h.parser.ParseQuery(req.Message)
	if err != nil {
		var parseErr *models.ParseFailure
		if errors.As(err, &parseErr) {
			log.Printf("⚠️ クエリ解析に失敗: %v", parseErr)
			c.Set(services.ContextErrorType, "parse_failure")
			h.respond(c, nil, nil, nil, h.responses.DegradedParseReply())
			return
		}
		log.Printf("❌ 言語モデルの呼び出しに失敗: %v", err)
		c.Set(services.ContextErrorType, "upstream_error")
		respondUpstreamError(c)
		return
	}

	c.Set(services.ContextIntent, parsed.Intent)

	// STEP 2a: 通常のチャットは会話プロンプトで直接応答
	if parsed.Intent == models.IntentChat {
		reply, err := h.responses.GenerateChatReply(req.Message, req.Context)
		if err != nil {
			log.Printf("❌ チャット応答の生成に失敗: %v", err)
			c.Set(services.ContextErrorType, "upstream_error")
			respondUpstreamError(c)
			return
		}
		h.respond(c, parsed, nil, nil, reply)
		return
	}

	// STEP 2b: 予測クエリは全組み合わせを解決する
	records, failures := h.predictions.ResolveQuery(parsed)
	if len(records) == 0 && len(failures) > 0 {
		log.Printf("⚠️ 解決できた組み合わせがありません (%d件失敗)", len(failures))
		c.Set(services.ContextErrorType, "lookup_failure")
		h.respond(c, parsed, nil, nil, h.responses.DegradedLookupReply(failures))
		return
	}

	// STEP 3: 検索トレンドで補強（失敗しても応答は止めない）
	trends := h.trends.AnalyzeProducts(parsed.Products, productDisplayNames(h.history, parsed.Products), parsed.Period)

	// STEP 4: データを根拠にした応答文を生成
	reply, err := h.responses.GenerateForecastReply(req.Message, records, trends, failures)
	if err != nil {
		log.Printf("❌ 応答生成に失敗: %v", err)
		c.Set(services.ContextErrorType, "upstream_error")
		respondUpstreamError(c)
		return
	}

	h.respond(c, parsed, records, trends, reply)
}

// respond は成功・劣化を問わず200のチャット応答を組み立てます。
// データ配列はnullではなく空配列で返します。
func (h *ChatHandler) respond(c *gin.Context, parsed *models.ParsedQuery, predictions []models.PredictionRecord, trends []models.TrendsSummary, reply string) {
	if predictions == nil {
		predictions = []models.PredictionRecord{}
	}
	if trends == nil {
		trends = []models.TrendsSummary{}
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		Success:     true,
		Response:    reply,
		ParsedQuery: parsed,
		Predictions: predictions,
		Trends:      trends,
		RequestID:   requestID(c),
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

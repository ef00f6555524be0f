package services

import (
	"log"

	"vendite-chat-api/pkg/models"
)

// maxRangeMonths は1リクエストで展開する期間の上限
const maxRangeMonths = 12

// PredictionService は履歴テーブルと回帰モデルを束ねて予測を解決するサービス
// 照会は常に履歴テーブルの完全一致を優先し、無い場合のみモデルを評価する
type PredictionService struct {
	history                *HistoryService
	predictor              *PredictorService
	lowConfidenceThreshold float64
}

// NewPredictionService 新しい予測解決サービスを作成
func NewPredictionService(history *HistoryService, predictor *PredictorService, lowConfidenceThreshold float64) *PredictionService {
	return &PredictionService{
		history:                history,
		predictor:              predictor,
		lowConfidenceThreshold: lowConfidenceThreshold,
	}
}

// ResolveQuery は解析済みクエリの全組み合わせ（製品×期間）を解決する
// 一部の組み合わせが失敗しても残りの解決は継続する
func (s *PredictionService) ResolveQuery(query *models.ParsedQuery) ([]models.PredictionRecord, []models.LookupFailure) {
	periods := expandPeriods(query)

	records := make([]models.PredictionRecord, 0, len(query.Products)*len(periods))
	failures := make([]models.LookupFailure, 0)

	for _, product := range query.Products {
		for _, period := range periods {
			record, failure := s.Resolve(product, query.Customer, period)
			if failure != nil {
				failures = append(failures, *failure)
				continue
			}
			records = append(records, record)
		}
	}

	return records, failures
}

// Resolve は単一の製品/顧客/期間の組み合わせを解決する
func (s *PredictionService) Resolve(product, customer string, period models.Period) (models.PredictionRecord, *models.LookupFailure) {
	product = normalizeCode(product)
	customer = normalizeCode(customer)

	rec, found, err := s.history.Lookup(product, customer, period)
	if err != nil {
		// テーブルが読めなくてもモデルで答えられる可能性がある
		log.Printf("⚠️ 履歴テーブルの参照に失敗: %v。モデルにフォールバックします", err)
	}
	if found {
		log.Printf("✅ 履歴テーブルから取得: %s %s", product, period)
		return models.PredictionRecord{
			Product:           product,
			ProductName:       rec.ProductName,
			Customer:          customer,
			CustomerName:      rec.CustomerName,
			Period:            period,
			PredictedQuantity: rec.Quantity(),
			Confidence:        rec.Confidence,
			Source:            models.SourceHistorical,
			LowConfidence:     rec.Confidence < s.lowConfidenceThreshold,
		}, nil
	}

	quantity, confidence, err := s.predictor.Predict(product, customer, period)
	if err != nil {
		log.Printf("⚠️ モデル予測に失敗 (%s/%s/%s): %v", product, customer, period, err)
		return models.PredictionRecord{}, &models.LookupFailure{
			Product:  product,
			Customer: customer,
			Period:   period,
		}
	}

	log.Printf("🤖 モデルから予測: %s %s → %.1f kg (信頼度 %.2f)", product, period, quantity, confidence)
	return models.PredictionRecord{
		Product:           product,
		ProductName:       s.history.ProductName(product),
		Customer:          customer,
		Period:            period,
		PredictedQuantity: quantity,
		Confidence:        confidence,
		Source:            models.SourceModel,
		LowConfidence:     confidence < s.lowConfidenceThreshold,
	}, nil
}

// expandPeriods はクエリが指す月の一覧を古い順に返す（上限あり）
func expandPeriods(query *models.ParsedQuery) []models.Period {
	periods := []models.Period{query.Period}
	if !query.IsRange() {
		return periods
	}

	current := query.Period
	for len(periods) < maxRangeMonths && current.Before(*query.PeriodEnd) {
		current = current.Next()
		periods = append(periods, current)
	}
	return periods
}

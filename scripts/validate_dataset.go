//go:build ignore

package main

import (
	"log"
	"os"
	"time"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/models"
	"vendite-chat-api/pkg/services"

	"github.com/joho/godotenv"
)

// データセットとモデル成果物の整合性を確認するスクリプト。
// デプロイ前に `go run scripts/validate_dataset.go` で実行する。
func main() {
	log.Println("🚀 データセット検証を開始します...")

	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	// 設定を読み込む
	cfg := config.LoadConfig()

	failures := 0

	// --- 履歴テーブル ---
	historyService := services.NewHistoryService(cfg.HistoricalDataPath)
	rows, err := historyService.Count()
	if err != nil {
		log.Printf("❌ 履歴テーブルの読み込みに失敗: %v", err)
		failures++
	} else if rows == 0 {
		log.Printf("❌ 履歴テーブルが空です: %s", cfg.HistoricalDataPath)
		failures++
	} else {
		log.Printf("✅ 履歴テーブル: %d行 (%s)", rows, cfg.HistoricalDataPath)
	}

	// --- モデル成果物 ---
	predictorService := services.NewPredictorService(cfg.ModelArtifactPath, historyService)
	artifact, err := predictorService.Artifact()
	if err != nil {
		log.Printf("❌ モデル成果物の読み込みに失敗: %v", err)
		failures++
	} else {
		log.Printf("✅ モデル成果物: %s (%d特徴量, 学習日時 %s)",
			artifact.ModelName, len(artifact.Features), artifact.TrainedAt)
		if artifact.GlobalMeanKg <= 0 {
			log.Printf("⚠️ global_mean_kg が正の値ではありません: %.2f", artifact.GlobalMeanKg)
		}
	}

	// --- テーブルとモデルの製品コード整合性 ---
	if err == nil && rows > 0 {
		products, perr := historyService.Products()
		if perr != nil {
			log.Printf("❌ 製品一覧の取得に失敗: %v", perr)
			failures++
		} else {
			missing := 0
			for _, product := range products {
				if _, ok := artifact.ProductCodes[product]; !ok {
					log.Printf("⚠️ テーブルの製品 %s がモデルに含まれていません", product)
					missing++
				}
			}
			if missing == 0 {
				log.Printf("✅ テーブルの全%d製品がモデルのエンコーディングに存在します", len(products))
			} else {
				log.Printf("⚠️ %d/%d製品がモデル未対応（該当製品はフォールバック不可）", missing, len(products))
			}

			// --- サンプル予測 ---
			if len(products) > 0 {
				now := time.Now()
				period := models.Period{Month: int(now.Month()), Year: now.Year()}.Next()
				value, confidence, perr := predictorService.Predict(products[0], "", period)
				if perr != nil {
					log.Printf("❌ サンプル予測に失敗 (%s, %s): %v", products[0], period, perr)
					failures++
				} else {
					log.Printf("✅ サンプル予測: %s %s → %.2f kg (confidenza %.2f)",
						products[0], period, value, confidence)
				}
			}
		}
	}

	if failures > 0 {
		log.Printf("❌ 検証失敗: %d件の問題が見つかりました", failures)
		os.Exit(1)
	}

	log.Println("🎉 検証完了: データセットとモデルは整合しています")
}

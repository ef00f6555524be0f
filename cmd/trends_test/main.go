package main

import (
	"fmt"
	"log"
	"time"

	config "vendite-chat-api/configs"
	"vendite-chat-api/pkg/services"

	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("=== トレンドプロバイダー 接続テスト ===")

	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	cfg := config.LoadConfig()
	if !cfg.Trends.Enabled {
		log.Fatal("FATAL: TRENDS_ENABLED=false のためテストを実行できません。")
	}

	prompts, err := config.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		log.Printf("Warning: プロンプト定義を読み込めませんでした。キーワード生成テストはスキップします: %v", err)
	}

	ai := services.NewOpenAIService(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	trendsService := services.NewTrendsService(ai, cfg.Trends, prompts)

	// 固定キーワードでプロバイダーへの接続を確認
	keywordSets := [][]string{
		{"grissini"},
		{"crackers", "snack salati"},
	}

	end := time.Now().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -89)

	for _, keywords := range keywordSets {
		fmt.Printf("\n--- キーワード: %v ---\n", keywords)

		series, err := trendsService.FetchInterest(keywords, start, end)
		if err != nil {
			log.Printf("エラー: %v", err)
			continue
		}

		fmt.Printf("取得データ数: %d件\n", len(series))

		if len(series) > 0 {
			sum := 0.0
			for _, v := range series {
				sum += v
			}
			fmt.Printf("興味指数の平均: %.1f\n", sum/float64(len(series)))
			fmt.Printf("最初の値: %.1f / 最後の値: %.1f\n", series[0], series[len(series)-1])
		}
	}

	// OPENAI_API_KEYが設定されていればキーワード生成も確認
	if cfg.OpenAIAPIKey != "" && prompts != nil {
		fmt.Println("\n--- キーワード生成テスト ---")

		keywords, err := trendsService.GenerateKeywords("40000", "GRISSINI TORINESI 125G")
		if err != nil {
			log.Printf("エラー: %v", err)
		} else {
			fmt.Printf("生成されたキーワード: %v\n", keywords)
		}
	}

	fmt.Println("\n=== テスト完了 ===")
}

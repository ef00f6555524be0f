package config

// TrendsConfig トレンドプロバイダーAPI設定
type TrendsConfig struct {
	Enabled        bool
	APIKey         string
	BaseURL        string
	Geo            string
	TimeoutSeconds int
}

// LoadTrendsConfig トレンドプロバイダー設定を取得
func LoadTrendsConfig() *TrendsConfig {
	return &TrendsConfig{
		Enabled:        getEnvBool("TRENDS_ENABLED", true),
		APIKey:         getEnv("TRENDS_API_KEY", ""),
		BaseURL:        getEnv("TRENDS_BASE_URL", "https://trends.googleapis.example.com/v1"),
		Geo:            getEnv("TRENDS_GEO", "IT"),
		TimeoutSeconds: getEnvInt("TRENDS_TIMEOUT_SECONDS", 10),
	}
}

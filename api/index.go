package handler

import (
	"log"
	"net/http"
	"sync"

	config "vendite-chat-api/configs"
	"vendite-chat-api/internal/server"

	"github.com/gin-gonic/gin"
)

var (
	app  *gin.Engine
	once sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() *gin.Engine {
	once.Do(func() {
		log.Printf("🟢 [setupApp] Initializing Gin application")

		// .envファイルはプラットフォームの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()

		r, err := server.NewRouter(cfg)
		if err != nil {
			log.Printf("❌ [setupApp] Failed to build router: %v", err)
			return
		}

		log.Printf("🟢 [setupApp] Router ready")
		app = r
	})
	return app
}

// Handler はサーバーレス環境からのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔵 [Handler] Request received: %s %s", r.Method, r.URL.Path)

	// Ginアプリケーションをセットアップ（初回のみ実行される）
	app := setupApp()
	if app == nil {
		http.Error(w, "Service initialization failed", http.StatusInternalServerError)
		return
	}

	// Ginにリクエストを処理させる
	app.ServeHTTP(w, r)
}

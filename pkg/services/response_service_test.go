package services

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vendite-chat-api/pkg/models"
)

// captureChatServer は受け取ったユーザープロンプトを記録するスタブ
func captureChatServer(t *testing.T, content string, status int) (*httptest.Server, *string) {
	t.Helper()
	captured := new(string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err == nil {
			for _, m := range req.Messages {
				if m.Role == "user" {
					*captured = m.Content
				}
			}
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	return server, captured
}

func newTestResponseService(t *testing.T, server *httptest.Server) *ResponseService {
	t.Helper()
	ai := NewOpenAIService(server.URL, "test-key", "gpt-4o-mini")
	return NewResponseService(ai, loadTestPrompts(t))
}

func samplePredictions() []models.PredictionRecord {
	return []models.PredictionRecord{
		{
			Product:           "40000",
			ProductName:       "GRISSINI 125G",
			Customer:          "102330",
			Period:            models.Period{Month: 4, Year: 2026},
			PredictedQuantity: 1234.56,
			Confidence:        1.0,
			Source:            models.SourceHistorical,
		},
		{
			Product:           "40140",
			Period:            models.Period{Month: 4, Year: 2026},
			PredictedQuantity: 480.0,
			Confidence:        0.55,
			Source:            models.SourceModel,
			LowConfidence:     true,
		},
	}
}

func TestGenerateForecastReply(t *testing.T) {
	server, captured := captureChatServer(t, "Ad aprile 2026 venderai circa 1.234 kg di grissini.", http.StatusOK)
	defer server.Close()
	svc := newTestResponseService(t, server)

	trends := []models.TrendsSummary{
		{Product: "40000", InterestLevel: 62, TrendDirection: models.TrendUp, Commentary: "Interesse in crescita."},
	}
	failures := []models.LookupFailure{
		{Product: "99999", Period: models.Period{Month: 4, Year: 2026}},
	}

	reply, err := svc.GenerateForecastReply("Quanto venderemo ad aprile 2026?", samplePredictions(), trends, failures)
	if err != nil {
		t.Fatalf("GenerateForecastReply returned error: %v", err)
	}

	if reply != "Ad aprile 2026 venderai circa 1.234 kg di grissini." {
		t.Errorf("Expected the model reply to pass through, got %q", reply)
	}

	// 言語モデルに渡したコンテキストの検証
	prompt := *captured
	if !strings.Contains(prompt, "Quanto venderemo ad aprile 2026?") {
		t.Errorf("Expected the original question in the prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "### Previsioni") {
		t.Errorf("Expected a predictions section, got %q", prompt)
	}
	if !strings.Contains(prompt, "fonte: storico, confidenza: 100%") {
		t.Errorf("Expected the historical source line, got %q", prompt)
	}
	if !strings.Contains(prompt, "fonte: modello, confidenza: 55%") {
		t.Errorf("Expected the model source line, got %q", prompt)
	}
	if !strings.Contains(prompt, "ATTENZIONE: confidenza bassa") {
		t.Errorf("Expected the low confidence marker, got %q", prompt)
	}
	if !strings.Contains(prompt, "tendenza crescente") {
		t.Errorf("Expected the trends section, got %q", prompt)
	}
	if !strings.Contains(prompt, "Prodotto 99999, periodo 2026-04") {
		t.Errorf("Expected the failure line, got %q", prompt)
	}
}

func TestGenerateForecastReplyUpstreamError(t *testing.T) {
	// 応答生成の失敗はリクエスト失敗として呼び出し元に伝える
	server, _ := captureChatServer(t, "", http.StatusInternalServerError)
	defer server.Close()
	svc := newTestResponseService(t, server)

	_, err := svc.GenerateForecastReply("Quanto venderemo?", samplePredictions(), nil, nil)
	if err == nil {
		t.Fatal("Expected an error when the provider is down")
	}

	var upstream *models.UpstreamServiceError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected an UpstreamServiceError, got %T", err)
	}
	if upstream.Service != "openai" {
		t.Errorf("Expected service openai, got %q", upstream.Service)
	}
}

func TestGenerateChatReply(t *testing.T) {
	server, captured := captureChatServer(t, "Sono l'assistente per le previsioni di vendita.", http.StatusOK)
	defer server.Close()
	svc := newTestResponseService(t, server)

	reply, err := svc.GenerateChatReply("Ciao, cosa sai fare?", "L'utente ha già chiesto del prodotto 40000.")
	if err != nil {
		t.Fatalf("GenerateChatReply returned error: %v", err)
	}

	if reply != "Sono l'assistente per le previsioni di vendita." {
		t.Errorf("Expected the model reply to pass through, got %q", reply)
	}
	if !strings.Contains(*captured, "Contesto della conversazione") {
		t.Errorf("Expected the context block in the prompt, got %q", *captured)
	}
	if !strings.Contains(*captured, "Ciao, cosa sai fare?") {
		t.Errorf("Expected the question in the prompt, got %q", *captured)
	}
}

func TestGenerateChatReplyUpstreamError(t *testing.T) {
	server, _ := captureChatServer(t, "", http.StatusInternalServerError)
	defer server.Close()
	svc := newTestResponseService(t, server)

	_, err := svc.GenerateChatReply("Ciao", "")
	if err == nil {
		t.Fatal("Expected an error when the provider is down")
	}

	var upstream *models.UpstreamServiceError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected an UpstreamServiceError, got %T", err)
	}
	if upstream.Service != "openai" {
		t.Errorf("Expected service openai, got %q", upstream.Service)
	}
}

func TestDegradedReplies(t *testing.T) {
	svc := NewResponseService(nil, nil)

	parseReply := svc.DegradedParseReply()
	if !strings.Contains(parseReply, "riformularla") {
		t.Errorf("Expected a rephrase hint, got %q", parseReply)
	}
	if !strings.Contains(parseReply, "40000") {
		t.Errorf("Expected an example query, got %q", parseReply)
	}

	failures := []models.LookupFailure{
		{Product: "40000", Customer: "102330", Period: models.Period{Month: 4, Year: 2026}},
	}
	lookupReply := svc.DegradedLookupReply(failures)
	if !strings.Contains(lookupReply, "Prodotto 40000, cliente 102330, periodo 2026-04") {
		t.Errorf("Expected the failed combination, got %q", lookupReply)
	}
	if !strings.Contains(lookupReply, "Verifica che il codice prodotto") {
		t.Errorf("Expected the closing hint, got %q", lookupReply)
	}
}

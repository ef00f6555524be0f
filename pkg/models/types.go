package models

import "fmt"

// Intent values produced by the query parser.
const (
	IntentChat     = "chat"
	IntentForecast = "forecast"
)

// Source values recorded on a PredictionRecord.
const (
	SourceHistorical = "historical"
	SourceModel      = "model"
)

// Trend direction labels used in TrendsSummary.
const (
	TrendUp     = "crescente"
	TrendDown   = "decrescente"
	TrendStable = "stabile"
)

// Period identifies a single forecast month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// String returns the period in "YYYY-MM" form.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Before reports whether p precedes other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Month: 1, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// ParsedQuery is the validated output of the query parser.
// It is created once per request and never mutated afterwards.
type ParsedQuery struct {
	Intent    string   `json:"intent"`
	Products  []string `json:"products"`
	Customer  string   `json:"customer,omitempty"`
	Period    Period   `json:"period"`
	PeriodEnd *Period  `json:"period_end,omitempty"`
}

// IsRange reports whether the query spans more than one month.
func (q *ParsedQuery) IsRange() bool {
	return q.PeriodEnd != nil && q.Period.Before(*q.PeriodEnd)
}

// PredictionRecord is a single resolved forecast value.
// Source records whether the value came from the historical table or from the model.
type PredictionRecord struct {
	Product           string  `json:"product"`
	ProductName       string  `json:"product_name,omitempty"`
	Customer          string  `json:"customer,omitempty"`
	CustomerName      string  `json:"customer_name,omitempty"`
	Period            Period  `json:"period"`
	PredictedQuantity float64 `json:"predicted_quantity"`
	Confidence        float64 `json:"confidence"`
	Source            string  `json:"source"`
	LowConfidence     bool    `json:"low_confidence,omitempty"`
}

// TrendsSummary condenses the trends provider reply for one product.
// Summaries are independent across products.
type TrendsSummary struct {
	Product        string   `json:"product"`
	Keywords       []string `json:"keywords"`
	InterestLevel  float64  `json:"interest_level"`
	TrendDirection string   `json:"trend_direction"`
	Commentary     string   `json:"commentary"`
}

// ChatRequest represents an incoming chat request.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	Context string `json:"context,omitempty"`
}

// ChatResponse is the full payload returned by the chat endpoint.
// It only exists for the duration of one request; nothing is persisted.
type ChatResponse struct {
	Success     bool               `json:"success"`
	Response    string             `json:"response"`
	ParsedQuery *ParsedQuery       `json:"parsed_query,omitempty"`
	Predictions []PredictionRecord `json:"predictions"`
	Trends      []TrendsSummary    `json:"trends"`
	RequestID   string             `json:"request_id"`
	Timestamp   string             `json:"timestamp"`
}

// PredictRequest is the structured forecast request (no language parsing involved).
type PredictRequest struct {
	Product  string `json:"product" binding:"required"`
	Customer string `json:"customer,omitempty"`
	Month    int    `json:"month" binding:"required"`
	Year     int    `json:"year" binding:"required"`
}

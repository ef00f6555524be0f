package models

import "fmt"

// ParseFailure indicates that the language model reply could not be
// turned into a valid ParsedQuery. The request is not aborted: the
// handler answers with a degraded reply instead.
type ParseFailure struct {
	Reason    string
	RawOutput string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("クエリ解析に失敗: %s", e.Reason)
}

// LookupFailure indicates that one product/customer/period combination
// could not be resolved, neither from the historical table nor from the
// model. Other combinations of the same request are unaffected.
type LookupFailure struct {
	Product  string `json:"product"`
	Customer string `json:"customer,omitempty"`
	Period   Period `json:"period"`
}

func (e *LookupFailure) Error() string {
	if e.Customer != "" {
		return fmt.Sprintf("予測不可: 製品 %s / 顧客 %s / %s", e.Product, e.Customer, e.Period)
	}
	return fmt.Sprintf("予測不可: 製品 %s / %s", e.Product, e.Period)
}

// TrendsUnavailable indicates that trend enrichment for one product was
// skipped. It never escalates to a request failure.
type TrendsUnavailable struct {
	Product string
	Reason  string
}

func (e *TrendsUnavailable) Error() string {
	return fmt.Sprintf("トレンド取得をスキップ (製品 %s): %s", e.Product, e.Reason)
}

// UpstreamServiceError wraps a transport or provider failure from an
// external dependency. Handlers map it to a generic failure message
// without exposing upstream details to the caller.
type UpstreamServiceError struct {
	Service string
	Err     error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("外部サービスエラー (%s): %v", e.Service, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error {
	return e.Err
}

package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"vendite-chat-api/pkg/models"
)

// ErrUnknownProduct is returned when a product code has no encoding in the
// model artifact, so no feature vector can be built for it.
var ErrUnknownProduct = errors.New("prodotto non presente nel modello")

// ArtifactScaler holds the standardization parameters used at training time.
type ArtifactScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// ModelPerformance holds the offline evaluation metrics of the artifact.
type ModelPerformance struct {
	R2  float64 `json:"r2"`
	MAE float64 `json:"mae"`
}

// ModelArtifact is the pre-trained regression model as exported by the
// training pipeline. The artifact is read-only: it is loaded once and
// shared across requests.
type ModelArtifact struct {
	ModelName     string             `json:"model_name"`
	TrainedAt     string             `json:"trained_at"`
	Features      []string           `json:"features"`
	Coefficients  []float64          `json:"coefficients"`
	Intercept     float64            `json:"intercept"`
	Scaler        ArtifactScaler     `json:"scaler"`
	ProductCodes  map[string]float64 `json:"product_codes"`
	CustomerCodes map[string]float64 `json:"customer_codes"`
	GlobalMeanKg  float64            `json:"global_mean_kg"`
	Performance   *ModelPerformance  `json:"performance,omitempty"`
}

// lagValues carries the recent-history features of one combination.
type lagValues struct {
	KgLag1       float64
	KgLag3       float64
	MediaMobile3 float64
}

// PredictorService evaluates the regression artifact for a single
// product/customer/period combination. Lag features are read from the
// historical table at prediction time, so recent shipments sharpen the
// estimate without retraining.
type PredictorService struct {
	mu       sync.RWMutex
	path     string
	history  *HistoryService
	artifact *ModelArtifact
}

// NewPredictorService creates a new PredictorService for the given artifact file.
func NewPredictorService(path string, history *HistoryService) *PredictorService {
	return &PredictorService{path: path, history: history}
}

// Predict returns the estimated quantity and the confidence for one combination.
// The quantity is never negative: a non-positive regression output collapses
// to zero with the minimum confidence.
func (s *PredictorService) Predict(product, customer string, period models.Period) (float64, float64, error) {
	artifact, err := s.getOrLoad()
	if err != nil {
		return 0, 0, err
	}

	product = normalizeCode(product)
	customer = normalizeCode(customer)

	if _, ok := artifact.ProductCodes[product]; !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownProduct, product)
	}

	lags := s.lagValues(product, customer, period, artifact.GlobalMeanKg)

	raw := artifact.Intercept
	for i, name := range artifact.Features {
		value, err := artifact.featureValue(name, product, customer, period, lags)
		if err != nil {
			return 0, 0, err
		}

		std := artifact.Scaler.Std[i]
		if std == 0 {
			std = 1
		}
		scaled := (value - artifact.Scaler.Mean[i]) / std
		raw += artifact.Coefficients[i] * scaled
	}

	if raw <= 0 {
		// clamped predictions carry the minimum confidence
		return 0, 0.5, nil
	}

	return raw, artifact.confidence(raw), nil
}

// Artifact returns the loaded model artifact for inspection.
func (s *PredictorService) Artifact() (*ModelArtifact, error) {
	return s.getOrLoad()
}

// Reload discards the cached artifact so the next access re-reads the file.
func (s *PredictorService) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = nil
}

// lagValues reads the quantities of the three months before the target
// period for the same product/customer from the historical table. Months
// without a row fall back to the artifact's global mean, so a sparse table
// still yields a complete feature vector.
func (s *PredictorService) lagValues(product, customer string, period models.Period, globalMean float64) lagValues {
	lags := lagValues{
		KgLag1:       globalMean,
		KgLag3:       globalMean,
		MediaMobile3: globalMean,
	}
	if s.history == nil {
		return lags
	}

	var sum float64
	var n int
	prev := period
	for offset := 1; offset <= 3; offset++ {
		prev = prev.Prev()
		quantity, ok := s.history.QuantityAt(product, customer, prev)
		if !ok {
			continue
		}
		sum += quantity
		n++
		if offset == 1 {
			lags.KgLag1 = quantity
		}
		if offset == 3 {
			lags.KgLag3 = quantity
		}
	}
	if n > 0 {
		lags.MediaMobile3 = sum / float64(n)
	}
	return lags
}

// getOrLoad returns the cached artifact or loads it from disk.
func (s *PredictorService) getOrLoad() (*ModelArtifact, error) {
	s.mu.RLock()
	if s.artifact != nil {
		artifact := s.artifact
		s.mu.RUnlock()
		return artifact, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact != nil { // double-check
		return s.artifact, nil
	}

	artifact, err := loadArtifact(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact from %s: %w", s.path, err)
	}

	s.artifact = artifact
	return s.artifact, nil
}

// loadArtifact reads and validates the artifact file.
func loadArtifact(path string) (*ModelArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var artifact ModelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("artifact: invalid JSON: %w", err)
	}

	n := len(artifact.Features)
	if n == 0 {
		return nil, errors.New("artifact: no features")
	}
	if len(artifact.Coefficients) != n || len(artifact.Scaler.Mean) != n || len(artifact.Scaler.Std) != n {
		return nil, fmt.Errorf("artifact: inconsistent dimensions (features=%d, coefficients=%d, scaler=%d/%d)",
			n, len(artifact.Coefficients), len(artifact.Scaler.Mean), len(artifact.Scaler.Std))
	}
	if len(artifact.ProductCodes) == 0 {
		return nil, errors.New("artifact: no product encodings")
	}

	return &artifact, nil
}

// featureValue computes a single named feature for the combination.
func (a *ModelArtifact) featureValue(name, product, customer string, period models.Period, lags lagValues) (float64, error) {
	switch name {
	case "Mese_Sin":
		return math.Sin(2 * math.Pi * float64(period.Month) / 12), nil
	case "Mese_Cos":
		return math.Cos(2 * math.Pi * float64(period.Month) / 12), nil
	case "Trimestre":
		return float64((period.Month-1)/3 + 1), nil
	case "Prodotto_Enc":
		return a.ProductCodes[product], nil
	case "Cliente_Enc":
		if code, ok := a.CustomerCodes[customer]; ok {
			return code, nil
		}
		// unknown customers fall back to the aggregate encoding
		return a.CustomerCodes[""], nil
	case "Kg_Lag_1":
		return lags.KgLag1, nil
	case "Kg_Lag_3":
		return lags.KgLag3, nil
	case "Media_Mobile_3":
		return lags.MediaMobile3, nil
	default:
		return 0, fmt.Errorf("artifact: unsupported feature %q", name)
	}
}

// confidence derives the confidence of a positive prediction from the
// offline MAE: the larger the prediction relative to the typical error,
// the closer the confidence gets to 1.
func (a *ModelArtifact) confidence(prediction float64) float64 {
	if a.Performance == nil || a.Performance.MAE < 0 {
		return 0.7
	}
	mae := a.Performance.MAE
	return clamp(1-mae/(prediction+mae), 0.5, 1.0)
}

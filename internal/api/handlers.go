package api

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanytics/urbanytics/internal/ml"
)

const serviceName = "urbanytics-ml-service"

// predictionConfidence is the fixed confidence reported with every
// estimate. The model does not produce per-prediction uncertainty.
const predictionConfidence = 0.85

const (
	defaultListYear        = 2020
	defaultYearsUntilSold  = 0
	defaultResidentialType = "Unknown"
)

type predictRequest struct {
	AssessedValue   *float64 `json:"assessed_value"`
	PropertyType    string   `json:"property_type"`
	Town            string   `json:"town"`
	ResidentialType string   `json:"residential_type"`
	ListYear        *float64 `json:"list_year"`
	YearsUntilSold  *float64 `json:"years_until_sold"`
}

type prediction struct {
	PredictedPrice  float64 `json:"predicted_price"`
	AssessedValue   float64 `json:"assessed_value"`
	PriceRatio      float64 `json:"price_ratio"`
	ConfidenceScore float64 `json:"confidence_score"`
	ModelVersion    string  `json:"model_version"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := "connected"
	status := "healthy"
	if err := s.store.Ping(r.Context()); err != nil {
		database = "disconnected"
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"service":      serviceName,
		"version":      ml.ModelVersion,
		"model_loaded": s.models.Ready(),
		"database":     database,
		"timestamp":    timestamp(),
	})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if _, err := s.models.Train(r.Context()); err != nil {
		if eris.Is(err, ml.ErrNoTrainingData) {
			respondError(w, http.StatusConflict, "no training data loaded")
			return
		}
		zap.L().Error("training failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "training failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "model trained successfully",
		"timestamp": timestamp(),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	bundle := s.models.Bundle()
	if bundle == nil {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AssessedValue == nil {
		respondError(w, http.StatusBadRequest, "assessed_value is required")
		return
	}
	if req.PropertyType == "" {
		respondError(w, http.StatusBadRequest, "property_type is required")
		return
	}
	if req.Town == "" {
		respondError(w, http.StatusBadRequest, "town is required")
		return
	}

	listYear := float64(defaultListYear)
	if req.ListYear != nil {
		listYear = *req.ListYear
	}
	yearsUntilSold := float64(defaultYearsUntilSold)
	if req.YearsUntilSold != nil {
		yearsUntilSold = *req.YearsUntilSold
	}
	residentialType := req.ResidentialType
	if residentialType == "" {
		residentialType = defaultResidentialType
	}

	features, err := bundle.Features(listYear, *req.AssessedValue, yearsUntilSold,
		req.PropertyType, residentialType, req.Town)
	if err != nil {
		zap.L().Error("feature assembly failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	predicted, err := bundle.Predict(features)
	if err != nil {
		zap.L().Error("prediction failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	priceRatio := 0.0
	if *req.AssessedValue > 0 {
		priceRatio = predicted / *req.AssessedValue
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"prediction": prediction{
			PredictedPrice:  round2(predicted),
			AssessedValue:   *req.AssessedValue,
			PriceRatio:      round4(priceRatio),
			ConfidenceScore: predictionConfidence,
			ModelVersion:    bundle.Version,
		},
		"input_data": map[string]any{
			"assessed_value":   *req.AssessedValue,
			"property_type":    req.PropertyType,
			"residential_type": residentialType,
			"town":             req.Town,
			"list_year":        listYear,
			"years_until_sold": yearsUntilSold,
		},
		"timestamp": timestamp(),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	bundle := s.models.Bundle()
	if bundle == nil {
		respondError(w, http.StatusNotFound, "model not loaded")
		return
	}

	importance := make(map[string]float64, len(bundle.FeatureNames))
	for i, name := range bundle.FeatureNames {
		if i < len(bundle.Forest.Importances) {
			importance[name] = round4(bundle.Forest.Importances[i])
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"model_info": map[string]any{
			"type":               "RandomForestRegressor",
			"n_estimators":       bundle.Forest.Estimators,
			"max_depth":          bundle.Forest.MaxDepth,
			"model_version":      bundle.Version,
			"trained_at":         bundle.TrainedAt,
			"row_count":          bundle.RowCount,
			"feature_names":      bundle.FeatureNames,
			"metrics":            bundle.Metrics,
			"feature_importance": importance,
			"available_categories": map[string][]string{
				"property_types":    encoderClasses(bundle, ml.EncoderPropertyType),
				"residential_types": encoderClasses(bundle, ml.EncoderResidentialType),
				"towns":             encoderClasses(bundle, ml.EncoderTown),
			},
		},
		"timestamp": timestamp(),
	})
}

func encoderClasses(b *ml.Bundle, key string) []string {
	if enc, ok := b.Encoders[key]; ok {
		return enc.Classes
	}
	return []string{}
}

func (s *Server) handleModelRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListTrainingRuns(r.Context(), 20)
	if err != nil {
		zap.L().Error("list training runs failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list training runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleDataStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DataStats(r.Context())
	if err != nil {
		zap.L().Error("data stats failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to compute data stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data_stats": stats,
		"timestamp":  timestamp(),
	})
}

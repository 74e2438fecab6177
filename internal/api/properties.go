package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/urbanytics/urbanytics/internal/model"
	"github.com/urbanytics/urbanytics/internal/store"
)

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Town:         q.Get("town"),
		PropertyType: q.Get("property_type"),
	}
	filter.ListYear, _ = strconv.Atoi(q.Get("list_year"))
	filter.MinPrice, _ = strconv.ParseFloat(q.Get("min_price"), 64)
	filter.MaxPrice, _ = strconv.ParseFloat(q.Get("max_price"), 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	properties, err := s.store.ListProperties(r.Context(), filter)
	if err != nil {
		zap.L().Error("list properties failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list properties")
		return
	}
	if properties == nil {
		properties = []model.Property{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":      len(properties),
		"properties": properties,
	})
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	serial, err := strconv.ParseInt(chi.URLParam(r, "serial"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid serial number")
		return
	}

	p, err := s.store.GetProperty(r.Context(), serial)
	if err != nil {
		zap.L().Error("get property failed", zap.Int64("serial", serial), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load property")
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "property not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleTowns(w http.ResponseWriter, r *http.Request) {
	s.respondCatalog(w, r, "towns", s.store.Towns)
}

func (s *Server) handlePropertyTypes(w http.ResponseWriter, r *http.Request) {
	s.respondCatalog(w, r, "property_types", s.store.PropertyTypes)
}

func (s *Server) handleResidentialTypes(w http.ResponseWriter, r *http.Request) {
	s.respondCatalog(w, r, "residential_types", s.store.ResidentialTypes)
}

func (s *Server) handleListYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.store.ListYears(r.Context())
	if err != nil {
		zap.L().Error("list years failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	if years == nil {
		years = []int{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"years": years})
}

func (s *Server) respondCatalog(w http.ResponseWriter, r *http.Request, key string, load func(ctx context.Context) ([]string, error)) {
	values, err := load(r.Context())
	if err != nil {
		zap.L().Error("catalog load failed", zap.String("catalog", key), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	if values == nil {
		values = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{key: values})
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := s.store.KPISummary(r.Context())
	if err != nil {
		zap.L().Error("kpi summary failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to compute kpis")
		return
	}
	respondJSON(w, http.StatusOK, kpis)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := s.store.YearTrends(r.Context())
	if err != nil {
		zap.L().Error("year trends failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to compute trends")
		return
	}
	if trends == nil {
		trends = []model.YearTrend{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/climalink/climalink-core/internal/device"
)

// handleListModels lists the model catalogue, optionally filtered by brand.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	var (
		models []device.Model
		err    error
	)
	if brand := r.URL.Query().Get("brand_id"); brand != "" {
		models, err = s.models.ListModelsByBrand(r.Context(), brand)
	} else {
		models, err = s.models.ListModels(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models": models,
		"count":  len(models),
	})
}

// handleGetModel returns a single model.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	model, err := s.models.GetModel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// handleCreateModel adds a model to the catalogue.
func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var model device.Model
	if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.models.CreateModel(r.Context(), &model); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model)
}

// handleUpdateModel replaces a model's mutable fields.
func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	var model device.Model
	if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	model.ID = chi.URLParam(r, "id")
	if err := s.models.UpdateModel(r.Context(), &model); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// handleDeleteModel removes a model from the catalogue.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.models.DeleteModel(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleListBrands lists all brands.
func (s *Server) handleListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := s.models.ListBrands(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"brands": brands,
		"count":  len(brands),
	})
}

// handleCreateBrand adds a brand.
func (s *Server) handleCreateBrand(w http.ResponseWriter, r *http.Request) {
	var brand device.Brand
	if err := json.NewDecoder(r.Body).Decode(&brand); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.models.CreateBrand(r.Context(), &brand); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, brand)
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tdrizzle0202/hiddencash/common/db"
	"github.com/tdrizzle0202/hiddencash/common/utils"
)

type HealthHandler struct {
	db     *db.DB
	router *chi.Mux
}

func NewHealthHandler(database *db.DB) *HealthHandler {
	h := &HealthHandler{
		db: database,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/database", h.handleDatabaseHealth)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "hiddencash",
	})
}

func (h *HealthHandler) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	if err := h.db.Ping(ctx); err != nil {
		response["status"] = "unhealthy"
		response["error"] = err.Error()
		utils.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"orderviews/internal/engine"
	"orderviews/internal/models"
)

// ErrorResponse is the JSON error body for malformed requests that never
// reach the engine.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ViewHandlers adapts the REST surface onto the engine's command interface.
// Every route builds a command, calls Execute and writes the structured
// result; the engine owns all business outcomes.
type ViewHandlers struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewViewHandlers creates the handler set.
func NewViewHandlers(eng *engine.Engine, logger *slog.Logger) *ViewHandlers {
	return &ViewHandlers{
		engine: eng,
		logger: logger.With("component", "handlers"),
	}
}

// Routes mounts all view routes on the router.
func (h *ViewHandlers) Routes(r chi.Router) {
	r.Post("/orders", h.ConsumeOrder)
	r.Post("/persist", h.Persist)
	r.Post("/reset", h.Reset)
	r.Get("/customers/{customerID}", h.GetCustomer)
	r.Get("/products/{productID}", h.GetProduct)
	r.Get("/timeline", h.GetTimeline)
	r.Get("/stats", h.GetStats)
	r.Get("/health", h.HealthCheck)
}

// ConsumeOrder handles POST /orders with a raw order body.
func (h *ViewHandlers) ConsumeOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "unreadable_body", "failed to read request body")
		return
	}

	result := h.engine.Execute(r.Context(), engine.Command{
		Kind:  engine.CmdConsume,
		Order: body,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	h.writeResult(w, status, result)
}

// Persist handles POST /persist.
func (h *ViewHandlers) Persist(w http.ResponseWriter, r *http.Request) {
	result := h.engine.Execute(r.Context(), engine.Command{Kind: engine.CmdPersist})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	h.writeResult(w, status, result)
}

// Reset handles POST /reset. Operational/test use only.
func (h *ViewHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	result := h.engine.Execute(r.Context(), engine.Command{Kind: engine.CmdReset})
	h.writeResult(w, http.StatusOK, result)
}

// GetCustomer handles GET /customers/{customerID}.
func (h *ViewHandlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil || customerID <= 0 {
		h.sendError(w, http.StatusBadRequest, "invalid_parameter", "customerID must be a positive integer")
		return
	}

	result := h.engine.Execute(r.Context(), engine.Command{
		Kind:       engine.CmdQueryCustomer,
		CustomerID: customerID,
	})
	h.writeQueryResult(w, result)
}

// GetProduct handles GET /products/{productID}.
func (h *ViewHandlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if productID == "" {
		h.sendError(w, http.StatusBadRequest, "missing_parameter", "productID is required")
		return
	}

	result := h.engine.Execute(r.Context(), engine.Command{
		Kind:      engine.CmdQueryProduct,
		ProductID: productID,
	})
	h.writeQueryResult(w, result)
}

// GetTimeline handles GET /timeline?limit=N.
func (h *ViewHandlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.sendError(w, http.StatusBadRequest, "invalid_parameter", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	result := h.engine.Execute(r.Context(), engine.Command{
		Kind:  engine.CmdQueryTimeline,
		Limit: limit,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	h.writeResult(w, status, result)
}

// GetStats handles GET /stats from the in-memory snapshot.
func (h *ViewHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	result := h.engine.Execute(r.Context(), engine.Command{Kind: engine.CmdGetStats})
	h.writeResult(w, http.StatusOK, result)
}

// HealthCheck handles GET /health by probing the persistence gateway.
func (h *ViewHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	result := h.engine.Execute(r.Context(), engine.Command{Kind: engine.CmdHealthCheck})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	h.writeResult(w, status, result)
}

// writeQueryResult maps a lookup result: gateway fault -> 503, missing
// entity -> 404 with the success body (data stays null), found -> 200.
func (h *ViewHandlers) writeQueryResult(w http.ResponseWriter, result engine.Result) {
	status := http.StatusOK
	switch {
	case !result.Success:
		status = http.StatusServiceUnavailable
	case isNilData(result.Data):
		status = http.StatusNotFound
	}
	h.writeResult(w, status, result)
}

func (h *ViewHandlers) writeResult(w http.ResponseWriter, status int, result engine.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("json_encode_failed", "error", err)
	}
}

// isNilData reports whether a lookup result carries no entity. The engine
// returns typed nil pointers for never-persisted ids, which stay non-nil as
// interface values.
func isNilData(data interface{}) bool {
	switch v := data.(type) {
	case nil:
		return true
	case *models.CustomerStats:
		return v == nil
	case *models.ProductStats:
		return v == nil
	}
	return false
}

func (h *ViewHandlers) sendError(w http.ResponseWriter, statusCode int, errorCode string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message})
}

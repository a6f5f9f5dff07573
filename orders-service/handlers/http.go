package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/order-system/orders-service/application"
	"github.com/draftea/order-system/orders-service/domain"
	"github.com/draftea/order-system/shared/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// OrderHandlers contains order HTTP handlers
type OrderHandlers struct {
	createOrder  *application.CreateOrder
	processOrder *application.ProcessOrder
	orchestrator *application.Orchestrator
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(
	createOrder *application.CreateOrder,
	processOrder *application.ProcessOrder,
	orchestrator *application.Orchestrator,
) *OrderHandlers {
	return &OrderHandlers{
		createOrder:  createOrder,
		processOrder: processOrder,
		orchestrator: orchestrator,
	}
}

// CreateOrder starts a new order saga
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.createOrder.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(result)
}

// ProcessOrder runs the synchronous inventory and payment validation
func (h *OrderHandlers) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	var cmd application.ProcessOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cmd.OrderID = orderID

	result, err := h.processOrder.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// GetOrder returns the current saga state for a correlation id
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	correlationID, err := models.NewID(chi.URLParam(r, "correlation_id"))
	if err != nil {
		http.Error(w, "Invalid correlation ID", http.StatusBadRequest)
		return
	}

	saga, err := h.orchestrator.Find(r.Context(), correlationID)
	if err != nil {
		if errors.Is(err, domain.ErrSagaNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(saga)
}

// Health returns service health status
func (h *OrderHandlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// RegisterRoutes registers order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Post("/{order_id}/process", h.ProcessOrder)
			r.Get("/{correlation_id}", h.GetOrder)
		})
	})
}

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/ec-cart/internal/domain/cart"
)

type Handlers struct {
	engine  *cart.Engine
	catalog cart.Catalog
	notes   *cart.NotificationLog
}

func NewHandlers(engine *cart.Engine, catalog cart.Catalog, notes *cart.NotificationLog) *Handlers {
	return &Handlers{
		engine:  engine,
		catalog: catalog,
		notes:   notes,
	}
}

type cartResponse struct {
	Items []cart.Product `json:"items"`
	cart.Summary
}

type errorResponse struct {
	Error string       `json:"error"`
	Cart  cartResponse `json:"cart"`
}

type catalogItem struct {
	cart.Product
	Stock int `json:"stock"`
}

// Product Handlers

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		log.Printf("[API] Failed to list products: %v", err)
		http.Error(w, "Catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	stock, err := h.catalog.ListStock(r.Context())
	if err != nil {
		log.Printf("[API] Failed to list stock: %v", err)
		http.Error(w, "Catalog unavailable", http.StatusServiceUnavailable)
		return
	}

	available := make(map[int]int, len(stock))
	for _, s := range stock {
		available[s.ID] = s.Amount
	}
	items := make([]catalogItem, 0, len(products))
	for _, p := range products {
		items = append(items, catalogItem{Product: p, Stock: available[p.ID]})
	}
	respondJSON(w, http.StatusOK, items)
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.engine.AddProduct(r.Context(), req.ProductID)
	h.respondMutation(w, cart.OpAddProduct, err)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDFromPath(w, r.URL.Path)
	if !ok {
		return
	}

	var req struct {
		Amount int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.engine.UpdateProductAmount(r.Context(), productID, req.Amount)
	h.respondMutation(w, cart.OpUpdateProductAmount, err)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDFromPath(w, r.URL.Path)
	if !ok {
		return
	}

	err := h.engine.RemoveProduct(r.Context(), productID)
	h.respondMutation(w, cart.OpRemoveProduct, err)
}

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notes := []cart.Notification{}
	if h.notes != nil {
		notes = h.notes.Recent()
	}
	respondJSON(w, http.StatusOK, notes)
}

// Helper functions

func (h *Handlers) snapshot() cartResponse {
	items := h.engine.Cart()
	return cartResponse{Items: items, Summary: cart.Totals(items)}
}

func (h *Handlers) respondMutation(w http.ResponseWriter, op cart.Operation, err error) {
	if err != nil {
		respondJSON(w, statusFor(err), errorResponse{
			Error: cart.MessageFor(op, err),
			Cart:  h.snapshot(),
		})
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrProductNotFound), errors.Is(err, cart.ErrProductNotInCart):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, cart.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func productIDFromPath(w http.ResponseWriter, path string) (int, bool) {
	raw := strings.Trim(strings.TrimPrefix(path, "/cart/items/"), "/")
	id, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "Invalid product id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

package checkout

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/marx5/storefront/internal/domain"
)

type Handler struct {
	service *Service
	repo    *Repository
	logger  *slog.Logger
}

func NewHandler(service *Service, repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		logger:  logger,
	}
}

type createOrderRequest struct {
	CartItemIDs   []string `json:"cart_item_ids"`
	SelectAll     bool     `json:"select_all"`
	AddressID     string   `json:"address_id"`
	PaymentMethod string   `json:"payment_method"`
	PromotionCode string   `json:"promotion_code"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.CreateFromCart(r.Context(), CreateFromCartInput{
		UserID:        userID,
		CartItemIDs:   req.CartItemIDs,
		SelectAll:     req.SelectAll,
		AddressID:     req.AddressID,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		PromotionCode: req.PromotionCode,
	})
	if err != nil {
		h.writeFailure(w, err, "failed to create order", "user_id", userID)
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "user_id", userID)
	h.writeJSON(w, http.StatusCreated, order)
}

type buyNowRequest struct {
	ProductVariantID string `json:"product_variant_id"`
	Quantity         int    `json:"quantity"`
	AddressID        string `json:"address_id"`
	PaymentMethod    string `json:"payment_method"`
	PromotionCode    string `json:"promotion_code"`
}

func (h *Handler) HandleBuyNow(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req buyNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.BuyNow(r.Context(), BuyNowInput{
		UserID:           userID,
		ProductVariantID: req.ProductVariantID,
		Quantity:         req.Quantity,
		AddressID:        req.AddressID,
		PaymentMethod:    domain.PaymentMethod(req.PaymentMethod),
		PromotionCode:    req.PromotionCode,
	})
	if err != nil {
		h.writeFailure(w, err, "failed to create buy-now order", "user_id", userID)
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "user_id", userID)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orderID := r.PathValue("id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.service.Cancel(r.Context(), orderID, userID); err != nil {
		h.writeFailure(w, err, "failed to cancel order", "order_id", orderID)
		return
	}

	h.logger.Info("order cancelled", "order_id", orderID, "user_id", userID)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.OrderStatusCancelled)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orderID := r.PathValue("id")
	order, err := h.repo.GetByID(r.Context(), orderID, userID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, string(domain.ReasonNotFound))
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	if page < 1 || limit < 1 {
		h.writeError(w, http.StatusBadRequest, "page and limit must be positive integers")
		return
	}

	status := domain.OrderStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.OrderStatusPending, domain.OrderStatusProcessing,
		domain.OrderStatusCompleted, domain.OrderStatusFailed, domain.OrderStatusCancelled:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	orders, total, err := h.repo.List(r.Context(), userID, status, page, limit)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"orders":       orders,
		"total":        total,
		"total_pages":  int(math.Ceil(float64(total) / float64(limit))),
		"current_page": page,
	})
}

// userID extracts the opaque authenticated user id set by the auth layer,
// which is outside this service.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

// writeFailure maps a business rejection to its HTTP shape and everything
// else to a logged 500.
func (h *Handler) writeFailure(w http.ResponseWriter, err error, msg string, logArgs ...any) {
	if rej, ok := domain.AsRejection(err); ok {
		h.writeJSON(w, rejectionStatus(rej.Reason), rejectionBody(rej))
		return
	}
	h.logger.Error(msg, append([]any{"error", err}, logArgs...)...)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func rejectionStatus(reason domain.Reason) int {
	switch reason {
	case domain.ReasonNotFound, domain.ReasonAddressNotFound:
		return http.StatusNotFound
	case domain.ReasonGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func rejectionBody(rej *domain.Rejection) map[string]string {
	body := map[string]string{"error": string(rej.Reason)}
	if rej.Detail != "" {
		body["detail"] = rej.Detail
	}
	return body
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

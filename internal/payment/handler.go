package payment

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/marx5/storefront/internal/domain"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type initiateRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	result, err := h.service.Initiate(r.Context(), req.OrderID, userID, clientIP(r))
	if err != nil {
		h.writeFailure(w, err, "failed to initiate payment", "order_id", req.OrderID)
		return
	}

	h.logger.Info("payment initiated",
		"order_id", req.OrderID, "transaction_id", result.TransactionID, "method", result.Method)
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleVNPayCallback(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.ReconcileVNPay(r.Context(), r.URL.Query())
	if err != nil {
		h.writeFailure(w, err, "failed to reconcile vnpay callback")
		return
	}

	status := domain.PaymentStatusCompleted
	if !outcome.Success {
		status = domain.PaymentStatusFailed
	}
	h.logger.Info("vnpay payment reconciled",
		"transaction_id", outcome.TransactionID, "status", status)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"transaction_id": outcome.TransactionID,
		"status":         string(status),
	})
}

func (h *Handler) HandlePayPalReturn(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orderID := r.URL.Query().Get("orderId")
	token := r.URL.Query().Get("token")
	if orderID == "" || token == "" {
		h.writeError(w, http.StatusBadRequest, "missing orderId or token")
		return
	}

	if err := h.service.CompletePayPal(r.Context(), orderID, userID, token); err != nil {
		h.writeFailure(w, err, "failed to complete paypal payment", "order_id", orderID)
		return
	}

	h.logger.Info("paypal payment captured", "order_id", orderID)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"order_id": orderID,
		"status":   string(domain.PaymentStatusCompleted),
	})
}

func (h *Handler) HandlePayPalCancel(w http.ResponseWriter, r *http.Request) {
	userID := userID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing orderId")
		return
	}

	if err := h.service.CancelPayment(r.Context(), orderID, userID); err != nil {
		h.writeFailure(w, err, "failed to cancel payment", "order_id", orderID)
		return
	}

	h.logger.Info("payment canceled", "order_id", orderID, "user_id", userID)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"order_id": orderID,
		"status":   string(domain.PaymentStatusCanceled),
	})
}

// userID extracts the opaque authenticated user id set by the auth layer,
// which is outside this service.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

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
	case domain.ReasonNotFound:
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

package checkout

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marx5/storefront/internal/domain"
)

func testHandler() *Handler {
	return NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandlersRequireUserIdentity(t *testing.T) {
	h := testHandler()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		target  string
		body    string
	}{
		{"create", h.HandleCreate, http.MethodPost, "/orders", `{}`},
		{"buy now", h.HandleBuyNow, http.MethodPost, "/orders/buy-now", `{}`},
		{"cancel", h.HandleCancel, http.MethodPost, "/orders/abc/cancel", ""},
		{"get", h.HandleGet, http.MethodGet, "/orders/abc", ""},
		{"list", h.HandleList, http.MethodGet, "/orders", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			tt.handler(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestHandleCreateInvalidBody(t *testing.T) {
	h := testHandler()

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("not json"))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListValidation(t *testing.T) {
	h := testHandler()

	tests := []struct {
		name   string
		target string
	}{
		{"negative page", "/orders?page=-1"},
		{"zero limit", "/orders?limit=0"},
		{"non-numeric page", "/orders?page=abc"},
		{"unknown status", "/orders?status=shipped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("X-User-ID", "user-1")
			rec := httptest.NewRecorder()
			h.HandleList(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRejectionStatus(t *testing.T) {
	tests := []struct {
		reason domain.Reason
		want   int
	}{
		{domain.ReasonNotFound, http.StatusNotFound},
		{domain.ReasonAddressNotFound, http.StatusNotFound},
		{domain.ReasonGatewayError, http.StatusBadGateway},
		{domain.ReasonInsufficientStock, http.StatusBadRequest},
		{domain.ReasonInvalidCode, http.StatusBadRequest},
		{domain.ReasonPendingOrderExists, http.StatusBadRequest},
	}

	for _, tt := range tests {
		if got := rejectionStatus(tt.reason); got != tt.want {
			t.Errorf("rejectionStatus(%s) = %d, want %d", tt.reason, got, tt.want)
		}
	}
}

func TestWriteFailure(t *testing.T) {
	h := testHandler()

	t.Run("rejection carries reason and detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.writeFailure(rec, domain.Reject(domain.ReasonInsufficientStock, "Shirt (Black, M)"), "failed")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["error"] != "insufficient_stock" {
			t.Errorf("error = %q", body["error"])
		}
		if body["detail"] != "Shirt (Black, M)" {
			t.Errorf("detail = %q", body["detail"])
		}
	})

	t.Run("internal errors are masked", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.writeFailure(rec, io.ErrUnexpectedEOF, "failed")

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["error"] != "internal server error" {
			t.Errorf("error = %q, internal detail must not leak", body["error"])
		}
	})
}

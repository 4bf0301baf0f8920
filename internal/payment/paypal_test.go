package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func paypalTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)

		switch {
		case r.URL.Path == "/v1/oauth2/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-id" || pass != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token"})

		case r.URL.Path == "/v2/checkout/orders":
			if r.Header.Get("Authorization") != "Bearer test-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), `"value":"44.78"`) {
				t.Errorf("create order body has wrong amount: %s", body)
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "PAYPAL-ORDER-1",
				"links": []map[string]string{
					{"rel": "self", "href": "https://api.sandbox.paypal.com/v2/checkout/orders/PAYPAL-ORDER-1"},
					{"rel": "approve", "href": "https://www.sandbox.paypal.com/checkoutnow?token=PAYPAL-ORDER-1"},
				},
			})

		case strings.HasSuffix(r.URL.Path, "/capture"):
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":     "CAPTURE-1",
				"status": "COMPLETED",
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestPayPalInitiate(t *testing.T) {
	server, _ := paypalTestServer(t)
	p := NewPayPal("client-id", "client-secret", server.URL,
		"https://shop.example.com/payments/paypal/callback",
		"https://shop.example.com/payments/paypal/cancel",
		23_000, server.Client())

	redirect, err := p.Initiate(context.Background(), InitiateRequest{
		TransactionID: "txn-1",
		OrderID:       "order-1",
		Amount:        1_030_000,
	})
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}

	if redirect.URL != "https://www.sandbox.paypal.com/checkoutnow?token=PAYPAL-ORDER-1" {
		t.Errorf("redirect URL = %q", redirect.URL)
	}
	if redirect.Correlation != "PAYPAL-ORDER-1" {
		t.Errorf("correlation = %q, want PAYPAL-ORDER-1", redirect.Correlation)
	}
}

func TestPayPalCapture(t *testing.T) {
	server, requests := paypalTestServer(t)
	p := NewPayPal("client-id", "client-secret", server.URL,
		"https://shop.example.com/payments/paypal/callback",
		"https://shop.example.com/payments/paypal/cancel",
		23_000, server.Client())

	result, err := p.Capture(context.Background(), "PAYPAL-ORDER-1")
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if result.Status != "COMPLETED" {
		t.Errorf("status = %q, want COMPLETED", result.Status)
	}
	if result.ID != "CAPTURE-1" {
		t.Errorf("id = %q, want CAPTURE-1", result.ID)
	}

	want := "POST /v2/checkout/orders/PAYPAL-ORDER-1/capture"
	found := false
	for _, req := range *requests {
		if req == want {
			found = true
		}
	}
	if !found {
		t.Errorf("capture endpoint was not called, saw %v", *requests)
	}
}

func TestPayPalTokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	p := NewPayPal("client-id", "client-secret", server.URL,
		"https://shop.example.com/return", "https://shop.example.com/cancel",
		23_000, server.Client())

	if _, err := p.Initiate(context.Background(), InitiateRequest{
		TransactionID: "txn-1",
		OrderID:       "order-1",
		Amount:        100_000,
	}); err == nil {
		t.Fatal("expected error when token endpoint fails")
	}
	if _, err := p.Capture(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when token endpoint fails")
	}
}

func TestPayPalCreateOrderMissingApprovalLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token"})
		case "/v2/checkout/orders":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "PAYPAL-ORDER-1"})
		}
	}))
	t.Cleanup(server.Close)

	p := NewPayPal("client-id", "client-secret", server.URL,
		"https://shop.example.com/return", "https://shop.example.com/cancel",
		23_000, server.Client())

	if _, err := p.Initiate(context.Background(), InitiateRequest{
		TransactionID: "txn-1",
		OrderID:       "order-1",
		Amount:        100_000,
	}); err == nil {
		t.Fatal("expected error when response has no approval link")
	}
}

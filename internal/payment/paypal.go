package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marx5/storefront/internal/domain"
)

// PayPal drives the checkout-order API: create an order for approval during
// initiation, capture it when the buyer returns. Orders are priced in VND, so
// amounts are converted to two-decimal USD at a fixed rate.
type PayPal struct {
	clientID     string
	clientSecret string
	apiURL       string
	returnURL    string
	cancelURL    string
	exchangeRate int64 // VND per USD
	client       *http.Client
}

func NewPayPal(clientID, clientSecret, apiURL, returnURL, cancelURL string, exchangeRate int64, client *http.Client) *PayPal {
	return &PayPal{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiURL:       apiURL,
		returnURL:    returnURL,
		cancelURL:    cancelURL,
		exchangeRate: exchangeRate,
		client:       client,
	}
}

func (p *PayPal) Method() domain.PaymentMethod {
	return domain.PaymentMethodPayPal
}

func (p *PayPal) Currency() string {
	return "USD"
}

// Initiate creates a PayPal checkout order and returns its approval link.
// The returned order token is the correlation data checked when the buyer
// comes back through the return URL.
func (p *PayPal) Initiate(ctx context.Context, req InitiateRequest) (*Redirect, error) {
	accessToken, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	amountUSD := decimal.NewFromInt(req.Amount).
		DivRound(decimal.NewFromInt(p.exchangeRate), 2).
		StringFixed(2)

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"amount": map[string]string{
					"currency_code": "USD",
					"value":         amountUSD,
				},
				"description": "Payment for order #" + req.OrderID,
			},
		},
		"application_context": map[string]string{
			"return_url": p.returnURL + "?orderId=" + req.OrderID,
			"cancel_url": p.cancelURL + "?orderId=" + req.OrderID,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/v2/checkout/orders", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("paypal create order returned status %d", resp.StatusCode)
	}

	var created struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode paypal create response: %w", err)
	}

	var approvalURL string
	for _, link := range created.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return nil, fmt.Errorf("paypal create response has no approval link")
	}

	return &Redirect{
		URL:         approvalURL,
		Correlation: created.ID,
	}, nil
}

// CaptureResult is PayPal's answer to a capture call.
type CaptureResult struct {
	ID     string
	Status string
}

// Capture settles an approved checkout order server-side. Called without any
// database lock held.
func (p *PayPal) Capture(ctx context.Context, token string) (*CaptureResult, error) {
	accessToken, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiURL+"/v2/checkout/orders/"+token+"/capture", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("capture paypal order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("paypal capture returned status %d", resp.StatusCode)
	}

	var captured struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&captured); err != nil {
		return nil, fmt.Errorf("decode paypal capture response: %w", err)
	}

	return &CaptureResult{ID: captured.ID, Status: captured.Status}, nil
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Basic "+credentials)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token endpoint returned status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode paypal token response: %w", err)
	}

	return token.AccessToken, nil
}

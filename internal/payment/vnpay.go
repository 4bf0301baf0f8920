package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marx5/storefront/internal/domain"
)

// VNPay builds signed redirect URLs and verifies inbound callbacks. The
// signature is HMAC-SHA512 over the key-sorted, unencoded k=v query string,
// excluding the hash fields themselves.
type VNPay struct {
	tmnCode    string
	hashSecret string
	baseURL    string
	returnURL  string
	now        func() time.Time
}

func NewVNPay(tmnCode, hashSecret, baseURL, returnURL string) *VNPay {
	return &VNPay{
		tmnCode:    tmnCode,
		hashSecret: hashSecret,
		baseURL:    baseURL,
		returnURL:  returnURL,
		now:        time.Now,
	}
}

func (v *VNPay) Method() domain.PaymentMethod {
	return domain.PaymentMethodVNPay
}

func (v *VNPay) Currency() string {
	return "VND"
}

// Initiate builds the signed payment URL. No network round-trip: VNPay
// receives the parameters when the client follows the redirect. The
// transaction id travels as vnp_TxnRef and comes back in the callback.
func (v *VNPay) Initiate(ctx context.Context, req InitiateRequest) (*Redirect, error) {
	if req.Amount < 0 {
		return nil, errors.New("order amount cannot be negative")
	}

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    v.tmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_CreateDate": v.now().UTC().Format("20060102150405"),
		"vnp_CurrCode":   "VND",
		"vnp_IpAddr":     req.ClientIP,
		"vnp_Locale":     "vn",
		"vnp_OrderInfo":  "Payment for order #" + req.OrderID,
		"vnp_OrderType":  "250000",
		"vnp_ReturnUrl":  v.returnURL,
		"vnp_TxnRef":     req.TransactionID,
	}
	params["vnp_SecureHash"] = v.sign(params)

	query := canonicalQuery(params)
	return &Redirect{
		URL:         v.baseURL + "?" + query,
		Correlation: query,
	}, nil
}

// VerifyCallback checks the callback signature and normalizes the result.
// The check runs before any state is touched: a tampered parameter set is
// rejected regardless of the embedded response code.
func (v *VNPay) VerifyCallback(values url.Values) (*Outcome, error) {
	received := values.Get("vnp_SecureHash")
	if received == "" {
		return nil, domain.Reject(domain.ReasonSignatureMismatch, "")
	}

	params := make(map[string]string, len(values))
	for key := range values {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		params[key] = values.Get(key)
	}

	expected := v.sign(params)
	if !hmac.Equal([]byte(received), []byte(expected)) {
		return nil, domain.Reject(domain.ReasonSignatureMismatch, "")
	}

	code := params["vnp_ResponseCode"]
	outcome := &Outcome{
		TransactionID: params["vnp_TxnRef"],
		Success:       code == "00",
		ProviderRef:   params["vnp_TransactionNo"],
		ResponseCode:  code,
	}
	if outcome.Success {
		outcome.Message = "Payment successful"
	} else {
		outcome.Message = "Payment failed"
	}
	return outcome, nil
}

func (v *VNPay) sign(params map[string]string) string {
	mac := hmac.New(sha512.New, []byte(v.hashSecret))
	mac.Write([]byte(canonicalQuery(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery joins the parameters as unencoded k=v pairs in key order.
// The callback side must reproduce this byte-for-byte, so no URL escaping.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + params[key]
	}
	return strings.Join(pairs, "&")
}

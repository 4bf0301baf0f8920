package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marx5/storefront/internal/domain"
)

// stateTTL bounds how long reconciliation state lives. Providers that are
// verified against the stored token (PayPal) reject a return whose state has
// expired and the user re-initiates; signature-verified callbacks (VNPay) do
// not consult the state.
const stateTTL = time.Hour

// StateStore keeps the pending-transaction-to-provider correlation mapping
// between payment initiation and the provider callback.
type StateStore struct {
	client *redis.Client
}

func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

func stateKey(method domain.PaymentMethod, transactionID string) string {
	return strings.ToLower(string(method)) + ":" + transactionID
}

func (s *StateStore) Put(ctx context.Context, method domain.PaymentMethod, transactionID, correlation string) error {
	return s.client.Set(ctx, stateKey(method, transactionID), correlation, stateTTL).Err()
}

// Get returns the stored correlation data, or "" when the key is missing or
// expired.
func (s *StateStore) Get(ctx context.Context, method domain.PaymentMethod, transactionID string) (string, error) {
	value, err := s.client.Get(ctx, stateKey(method, transactionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *StateStore) Delete(ctx context.Context, method domain.PaymentMethod, transactionID string) error {
	return s.client.Del(ctx, stateKey(method, transactionID)).Err()
}

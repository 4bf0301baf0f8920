package cart

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Cache invalidates the cached cart and promotion-list responses for a user
// after checkout mutates them. It is a performance aid only: correctness
// holds with it disabled, so every method tolerates a nil receiver.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// InvalidateUser drops the user's cart and promotion response caches. Called
// after a successful commit; failures are the caller's to log, not to
// propagate.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	keys := []string{
		fmt.Sprintf("cart:user:%s", userID),
		fmt.Sprintf("promotions:user:%s", userID),
	}
	return c.client.Del(ctx, keys...).Err()
}

package guest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedisStore(t *testing.T, c context.Context) Store {
	t.Helper()

	redisContainer, err := testRedis.Run(c, "redis:7.4.2-alpine3.21")
	if err != nil {
		t.Fatalf("failed running redis container with error: %s", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	})

	redisConnStr, err := redisContainer.ConnectionString(c)
	if err != nil {
		t.Fatalf("failed getting redis connection string with error: %s", err)
	}
	redisOpt, err := redis.ParseURL(redisConnStr)
	if err != nil {
		t.Fatalf("failed parsing redis connection string with error: %s", err)
	}
	redisClient := redis.NewClient(redisOpt)
	if err = redisClient.Ping(c).Err(); err != nil {
		t.Fatalf("failed ping redis client with error: %s", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	return NewRedisStore(redisClient, "storefront-test")
}

func TestRedisStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	c := context.Background()
	store := setupRedisStore(t, c)
	productId := uuid.New()

	ok, err := store.AddCartItem(c, &productId, nil, CartItemOptions{Quantity: 2})
	require.NoError(t, err)
	assert.True(t, ok)

	items, err := store.LoadCart(c)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	ok, err = store.AddWishlistItem(c, &productId, nil, WishlistItemOptions{Notes: "for the workshop"})
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.LoadWishlist(c)
	require.NoError(t, err)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "for the workshop", data.Items[0].Notes)

	require.NoError(t, store.SetMigrationDone(c, "cart"))
	done, err := store.MigrationDone(c, "cart")
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, store.ClearCart(c))
	items, err = store.LoadCart(c)
	require.NoError(t, err)
	assert.Empty(t, items)
}

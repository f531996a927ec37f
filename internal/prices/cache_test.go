package prices

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
)

// countingSource records how many single-day lookups reach the wrapped source
type countingSource struct {
	*Series
	barCalls int
}

func (c *countingSource) Bar(ctx context.Context, ticker string, date time.Time) (Bar, error) {
	c.barCalls++
	return c.Series.Bar(ctx, ticker, date)
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	rdb := setupRedis(t)
	day := dates.New(2024, 1, 2)

	t.Run("second lookup is served from redis", func(t *testing.T) {
		require.NoError(t, rdb.FlushAll(ctx).Err())
		src := &countingSource{Series: NewSeries()}
		src.Add("AAPL", Bar{Date: day, Open: 100, Close: 101.5})
		cache := NewCache(src, rdb, time.Hour, time.Minute)

		b1, err := cache.Bar(ctx, "aapl", day)
		require.NoError(t, err)
		b2, err := cache.Bar(ctx, "AAPL", day)
		require.NoError(t, err)

		assert.Equal(t, 1, src.barCalls)
		assert.Equal(t, b1, b2)
		assert.Equal(t, 101.5, b2.Close)
	})

	t.Run("misses are cached as ErrNoData", func(t *testing.T) {
		require.NoError(t, rdb.FlushAll(ctx).Err())
		src := &countingSource{Series: NewSeries()}
		cache := NewCache(src, rdb, time.Hour, time.Minute)

		_, err := cache.Bar(ctx, "MSFT", day)
		assert.ErrorIs(t, err, ErrNoData)
		_, err = cache.Bar(ctx, "MSFT", day)
		assert.ErrorIs(t, err, ErrNoData)
		assert.Equal(t, 1, src.barCalls)
	})

	t.Run("Invalidate forces a reload", func(t *testing.T) {
		require.NoError(t, rdb.FlushAll(ctx).Err())
		src := &countingSource{Series: NewSeries()}
		src.Add("AAPL", Bar{Date: day, Open: 1, Close: 2})
		cache := NewCache(src, rdb, time.Hour, time.Minute)

		_, err := cache.Bar(ctx, "AAPL", day)
		require.NoError(t, err)
		src.Add("AAPL", Bar{Date: day, Open: 1, Close: 3})
		require.NoError(t, cache.Invalidate(ctx, "AAPL", day))

		b, err := cache.Bar(ctx, "AAPL", day)
		require.NoError(t, err)
		assert.Equal(t, 3.0, b.Close)
		assert.Equal(t, 2, src.barCalls)
	})
}

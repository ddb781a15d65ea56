package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront-svc/config"
	"storefront-svc/models"
)

const ProductTTL = 5 * time.Minute

func InitRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr()))
	return rdb, nil
}

// ProductCache is the cache-aside layer in front of catalog reads.
type ProductCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewProductCache(rdb redis.Cmdable, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// Get returns redis.Nil on a miss.
func (c *ProductCache) Get(ctx context.Context, id string) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("decode cached product: %w", err)
	}
	return &product, nil
}

func (c *ProductCache) Set(ctx context.Context, product *models.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(product.ID), data, c.ttl).Err()
}

func (c *ProductCache) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}

// Publish drops the cached entries of products whose stock an order event
// changed, so catalog reads pick up the new counts.
func (c *ProductCache) Publish(ctx context.Context, event models.OrderEvent) error {
	if len(event.Items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(event.Items))
	for _, item := range event.Items {
		keys = append(keys, productKey(item.ProductID))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// CartStore persists cart snapshots in Redis so carts survive across sessions.
type CartStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewCartStore(rdb redis.Cmdable, ttl time.Duration) *CartStore {
	return &CartStore{rdb: rdb, ttl: ttl}
}

func cartKey(id string) string {
	return fmt.Sprintf("cart:%s", id)
}

// Load returns an empty snapshot for an unknown cart.
func (s *CartStore) Load(ctx context.Context, id string) (*models.CartSnapshot, error) {
	data, err := s.rdb.Get(ctx, cartKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &models.CartSnapshot{ID: id, Lines: []models.CartLine{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var snap models.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	snap.ID = id
	return &snap, nil
}

// saveCartScript writes ARGV[2] only while the stored version equals ARGV[1].
// A missing cart counts as version 0.
var saveCartScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local version = 0
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and type(decoded) == 'table' and decoded['version'] then
    version = tonumber(decoded['version'])
  end
end
if version ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Save writes the snapshot and refreshes its expiry. It fails with
// models.ErrCartConflict when another writer saved since snap was loaded,
// and bumps snap.Version on success.
func (s *CartStore) Save(ctx context.Context, snap *models.CartSnapshot) error {
	next := *snap
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	saved, err := saveCartScript.Run(ctx, s.rdb, []string{cartKey(snap.ID)},
		snap.Version, string(data), s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if saved == 0 {
		return models.ErrCartConflict
	}
	snap.Version = next.Version
	return nil
}

func (s *CartStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

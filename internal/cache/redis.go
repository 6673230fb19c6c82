// Package cache реализует хранилище корзин в Redis с плавающим временем жизни.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/basket-service/internal/model"
)

// DefaultBasketTTL — время бездействия, после которого корзина исчезает.
const DefaultBasketTTL = 2 * time.Minute

// ErrCorruptItem возвращается, если позицию корзины не удалось декодировать.
var ErrCorruptItem = errors.New("corrupt basket item")

// RedisBasketStore хранит корзину пользователя как хеш productId -> JSON позиции.
type RedisBasketStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisBasketStore создаёт хранилище корзин поверх клиента Redis.
func NewRedisBasketStore(client redis.UniversalClient, ttl time.Duration) *RedisBasketStore {
	if ttl <= 0 {
		ttl = DefaultBasketTTL
	}
	return &RedisBasketStore{
		client: client,
		ttl:    ttl,
	}
}

// TTL возвращает окно бездействия корзины.
func (s *RedisBasketStore) TTL() time.Duration {
	return s.ttl
}

// List возвращает позиции корзины, упорядоченные по номеру товара.
func (s *RedisBasketStore) List(ctx context.Context, userID int64) ([]model.LineItem, error) {
	fields, err := s.client.HGetAll(ctx, basketKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	items := make([]model.LineItem, 0, len(fields))
	for productID, raw := range fields {
		item, err := decodeItem(productID, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].ProductID < items[j].ProductID
	})

	return items, nil
}

// Exists проверяет наличие товара в корзине.
func (s *RedisBasketStore) Exists(ctx context.Context, userID int64, productID string) (bool, error) {
	ok, err := s.client.HExists(ctx, basketKey(userID), productID).Result()
	if err != nil {
		return false, fmt.Errorf("redis hexists: %w", err)
	}
	return ok, nil
}

// Put записывает позицию и продлевает время жизни корзины одной транзакцией.
func (s *RedisBasketStore) Put(ctx context.Context, userID int64, item model.LineItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	key := basketKey(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, item.ProductID, data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put item: %w", err)
	}
	return nil
}

// Remove удаляет позицию и сообщает, была ли она в корзине.
func (s *RedisBasketStore) Remove(ctx context.Context, userID int64, productID string) (bool, error) {
	n, err := s.client.HDel(ctx, basketKey(userID), productID).Result()
	if err != nil {
		return false, fmt.Errorf("redis hdel: %w", err)
	}
	return n > 0, nil
}

// Touch продлевает время жизни корзины. Для отсутствующей корзины ничего не делает.
func (s *RedisBasketStore) Touch(ctx context.Context, userID int64) error {
	if err := s.client.Expire(ctx, basketKey(userID), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

// Clear удаляет корзину целиком. Повторный вызов не является ошибкой.
func (s *RedisBasketStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, basketKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeItem(productID, raw string) (model.LineItem, error) {
	var item model.LineItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return model.LineItem{}, fmt.Errorf("%w %s: %v", ErrCorruptItem, productID, err)
	}
	if item.ProductID != productID {
		return model.LineItem{}, fmt.Errorf("%w %s: stored under foreign key", ErrCorruptItem, productID)
	}
	return item, nil
}

func basketKey(userID int64) string {
	return "basket:" + strconv.FormatInt(userID, 10)
}

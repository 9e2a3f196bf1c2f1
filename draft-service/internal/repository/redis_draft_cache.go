package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"story-draft-server/shared/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DraftCache - read-through кэш записей черновиков. Промах кэша не ошибка:
// Get возвращает (nil, nil), и сервис идет в PostgreSQL.
type DraftCache interface {
	Get(ctx context.Context, draftKey string) (*models.DraftRecord, error)
	Set(ctx context.Context, rec *models.DraftRecord) error
	Invalidate(ctx context.Context, draftKey string) error
}

// Compile-time check
var _ DraftCache = (*redisDraftCache)(nil)

type redisDraftCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisDraftCache создает кэш черновиков поверх Redis с заданным TTL.
func NewRedisDraftCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) DraftCache {
	return &redisDraftCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisDraftCache"),
	}
}

func draftCacheKey(draftKey string) string {
	return fmt.Sprintf("draft_record:%s", draftKey)
}

func (c *redisDraftCache) Get(ctx context.Context, draftKey string) (*models.DraftRecord, error) {
	data, err := c.client.Get(ctx, draftCacheKey(draftKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.logger.Warn("Failed to read draft from cache", zap.String("draftKey", draftKey), zap.Error(err))
		return nil, fmt.Errorf("ошибка чтения черновика из кэша: %w", err)
	}

	var rec models.DraftRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Битое значение выбрасываем, чтобы следующий Get снова пошел в базу.
		c.logger.Warn("Corrupted draft cache entry, dropping", zap.String("draftKey", draftKey), zap.Error(err))
		c.client.Del(ctx, draftCacheKey(draftKey))
		return nil, nil
	}
	return &rec, nil
}

func (c *redisDraftCache) Set(ctx context.Context, rec *models.DraftRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации черновика для кэша: %w", err)
	}
	if err := c.client.Set(ctx, draftCacheKey(rec.DraftKey), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache draft", zap.String("draftKey", rec.DraftKey), zap.Error(err))
		return fmt.Errorf("ошибка записи черновика в кэш: %w", err)
	}
	return nil
}

func (c *redisDraftCache) Invalidate(ctx context.Context, draftKey string) error {
	if err := c.client.Del(ctx, draftCacheKey(draftKey)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate draft cache", zap.String("draftKey", draftKey), zap.Error(err))
		return fmt.Errorf("ошибка инвалидации кэша черновика: %w", err)
	}
	return nil
}

package limits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDailyLimiter считает создания броней по пользователю за календарные
// сутки UTC. Ключ живёт до полуночи, так что окно сбрасывается само.
type RedisDailyLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisDailyLimiter(client *redis.Client, logger *slog.Logger) *RedisDailyLimiter {
	return &RedisDailyLimiter{client: client, logger: logger}
}

// Allow инкрементирует суточный счётчик и сравнивает с лимитом. Ошибка Redis
// возвращается вызывающему; решение пропускать или нет принимает он.
func (l *RedisDailyLimiter) Allow(ctx context.Context, userID int, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	now := time.Now().UTC()
	key := dailyKey(userID, now)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, endOfDay(now))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	count := incr.Val()
	if count > int64(limit) {
		l.logger.Info("daily reservation limit hit",
			slog.Int("user_id", userID), slog.Int64("count", count), slog.Int("limit", limit))
		return false, nil
	}
	return true, nil
}

// Revoke возвращает единицу квоты, списанную в Allow. Вызывается при откате
// создания брони, чтобы неудачная попытка не съедала суточный лимит.
func (l *RedisDailyLimiter) Revoke(ctx context.Context, userID int) error {
	now := time.Now().UTC()
	key := dailyKey(userID, now)

	pipe := l.client.TxPipeline()
	pipe.Decr(ctx, key)
	pipe.ExpireAt(ctx, key, endOfDay(now))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func dailyKey(userID int, now time.Time) string {
	return fmt.Sprintf("reservations:daily:%d:%s", userID, now.Format("2006-01-02"))
}

func endOfDay(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

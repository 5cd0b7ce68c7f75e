package store

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

const analysisTTL = 10 * time.Minute

// CompatibilityRedisCache keeps browse-listing analyses for a short TTL so
// repeated compatibility reads do not recompute against the stores.
type CompatibilityRedisCache struct {
	client *redis.Client
	tracer trace.Tracer
}

func NewCompatibilityRedisCache(client *redis.Client, tracer trace.Tracer) domain.CompatibilityCache {
	return &CompatibilityRedisCache{
		client: client,
		tracer: tracer,
	}
}

func (cache *CompatibilityRedisCache) PostAnalysis(ctx context.Context, key string, analysis *domain.CompatibilityAnalysis) error {
	ctx, span := cache.tracer.Start(ctx, "CompatibilityRedisCache.PostAnalysis")
	defer span.End()

	payload, err := json.Marshal(analysis)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	result := cache.client.Set(key, payload, analysisTTL)
	if result.Err() != nil {
		span.SetStatus(codes.Error, "Error posting cached analysis")
		log.Printf("redis set error: %s", result.Err())
		return result.Err()
	}

	return nil
}

func (cache *CompatibilityRedisCache) GetAnalysis(ctx context.Context, key string) (*domain.CompatibilityAnalysis, error) {
	ctx, span := cache.tracer.Start(ctx, "CompatibilityRedisCache.GetAnalysis")
	defer span.End()

	result := cache.client.Get(key)
	payload, err := result.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.SetStatus(codes.Error, "Error getting cached analysis")
		log.Println(err)
		return nil, err
	}

	var analysis domain.CompatibilityAnalysis
	if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &analysis, nil
}

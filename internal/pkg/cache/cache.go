package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

// SetupCache opens a client to the Redis/Dragonfly server configured in the
// environment. A failed ping is logged; go-redis reconnects lazily.
func SetupCache() *redis.Client {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     env.GetEnv("CACHE_PASSWORD", ""),
		DB:           env.GetEnvInt("CACHE_DB", 0),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}

	return client
}

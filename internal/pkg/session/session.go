package session

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

const (
	// Sessions live in their own database; the cache uses DB 0.
	sessionDB = 1
	// OAuth state handshakes use DB 2.
	oauthDB = 2
)

// NewSessionStore creates the app session store on the Redis server behind client.
func NewSessionStore(client *redis.Client) *session.Store {
	return session.New(session.Config{
		Storage:        NewRedisStorage(client, sessionDB),
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     24 * time.Hour,
		KeyLookup:      "cookie:session_id",
	})
}

// NewOAuthStorage is the storage for goth's OAuth state.
func NewOAuthStorage(client *redis.Client) fiber.Storage {
	return NewRedisStorage(client, oauthDB)
}

// NewRedisStorage opens a fiber storage on database db of the server client
// points at. A nil client falls back to localhost.
func NewRedisStorage(client *redis.Client, db int) fiber.Storage {
	host, port := "localhost", 6379
	username, password := "", env.GetEnv("CACHE_PASSWORD", "")
	if client != nil {
		opts := client.Options()
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		} else if opts.Addr != "" {
			host = opts.Addr
		}
		username = opts.Username
		// Prefer password from the underlying client if present
		if opts.Password != "" {
			password = opts.Password
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Database: db,
		Reset:    false,
	})
}

// SetValues stores values in sess and saves it.
func SetValues(sess *session.Session, values map[string]interface{}) error {
	for key, value := range values {
		sess.Set(key, value)
	}
	if err := sess.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetString returns the string stored under key, or "" if the key is unset
// or holds another type.
func GetString(sess *session.Session, key string) string {
	if value, ok := sess.Get(key).(string); ok {
		return value
	}
	return ""
}

package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visual-alchemy/blackgate-project/config"
	"github.com/visual-alchemy/blackgate-project/store"
)

// Open builds the Store selected by cfg.Driver. db is only required by the
// "sql" driver and may be nil otherwise.
func Open(cfg *config.SessionConfig, db *store.DB) (*Store, error) {
	switch cfg.Driver {
	case "memory":
		return New(NewMemoryBackend()), nil
	case "file", "":
		b, err := NewFileBackend(cfg.File.Path, cfg.File.Passphrase)
		if err != nil {
			return nil, err
		}
		return New(b), nil
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("session: sql driver needs a database")
		}
		return New(NewSQLBackend(db)), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("session: redis %s: %w", cfg.Redis.Address, err)
		}
		log.Printf("session: redis connected (%s)", cfg.Redis.Address)
		return New(NewRedisBackend(client, cfg.Redis.KeyPrefix)), nil
	case "keyring":
		return New(NewKeyringBackend(cfg.Keyring.Service)), nil
	default:
		return nil, fmt.Errorf("unsupported session driver: %s", cfg.Driver)
	}
}

package session

import (
	"context"

	"github.com/visual-alchemy/blackgate-project/store"
)

// SQLBackend keeps values in the console database (sqlite or postgres).
type SQLBackend struct {
	db *store.DB
}

func NewSQLBackend(db *store.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Get(_ context.Context, key string) (string, bool, error) {
	return b.db.GetSessionValue(key)
}

func (b *SQLBackend) Set(_ context.Context, key, value string) error {
	return b.db.SetSessionValue(key, value)
}

func (b *SQLBackend) Delete(_ context.Context, key string) error {
	return b.db.DeleteSessionValue(key)
}

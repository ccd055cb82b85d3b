package store

import (
	"database/sql"
	"errors"
)

// GetSessionValue returns the stored value for key and whether it exists.
func (db *DB) GetSessionValue(key string) (string, bool, error) {
	var value string
	err := db.QueryRow(db.Q(`SELECT value FROM session_values WHERE key=?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (db *DB) SetSessionValue(key, value string) error {
	_, err := db.Exec(db.Q(`INSERT INTO session_values (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=datetime('now','localtime')`), key, value)
	return err
}

// DeleteSessionValue removes key. Deleting a missing key is not an error.
func (db *DB) DeleteSessionValue(key string) error {
	_, err := db.Exec(db.Q(`DELETE FROM session_values WHERE key=?`), key)
	return err
}

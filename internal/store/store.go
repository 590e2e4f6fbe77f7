// Package store is the Postgres-backed document store and account service.
package store

import "github.com/bwise1/safestreet/internal/db"

type Store struct {
	db *db.DB
}

func New(database *db.DB) *Store {
	return &Store{db: database}
}

// Package store implements the durable on-device store backing the
// reading log: book and session records, the visible book order, finished
// marks, and the deletion queue. Everything lives in a single Badger
// database so multi-record mutations commit atomically.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes. Index keys nest under the record prefix with an "idx:"
// marker so record scans can skip them.
const (
	bookPrefix          = "book:"
	sessionPrefix       = "session:"
	sessionByBookPrefix = "session:idx:book:"
	finishedPrefix      = "finished:"
	bookOrderKey        = "bookorder"
	queueBooksKey       = "delqueue:books"
	queueSessionsKey    = "delqueue:sessions"
)

// sessionIndexPrefix builds the per-book index key prefix. Titles are
// user text and may themselves contain the ":" separator, so they are
// query-escaped inside index keys; a prefix scan for one book then never
// matches another book whose title it prefixes. Session ids are nanoids
// and need no escaping.
func sessionIndexPrefix(title string) string {
	return sessionByBookPrefix + url.QueryEscape(title) + ":"
}

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // A crash between local delete and remote ack must not lose the queue
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &Error{Code: 500, Message: "failed to open local database", Err: err}
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	if logger != nil {
		logger.Info("local database opened", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("closing local database")
	}
	return s.db.Close()
}

// ClearAll wipes every record: books, sessions, order, finished marks,
// and the deletion queue. Used on sign-out / account switch, where
// pending deletions for the old account must not replay into the next.
func (s *Store) ClearAll() error {
	if s.logger != nil {
		s.logger.Info("clearing local store")
	}
	if err := s.db.DropAll(); err != nil {
		return &Error{Code: 500, Message: "failed to clear local store", Err: err}
	}
	return nil
}

// Helper methods for database operations.

// get retrieves a value by key.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

// set stores a value by key.
func (s *Store) set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// getTxn reads and unmarshals a key within an open transaction.
// Returns badger.ErrKeyNotFound when the key is absent.
func getTxn(txn *badger.Txn, key string, dest any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

// setTxn marshals and writes a key within an open transaction.
func setTxn(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return txn.Set([]byte(key), data)
}

// unmarshalValue decodes a raw Badger value into dest.
func unmarshalValue(val []byte, dest any) error {
	return json.Unmarshal(val, dest)
}

// getStringsTxn reads a string list key, treating a missing key as empty.
func getStringsTxn(txn *badger.Txn, key string) ([]string, error) {
	var values []string
	err := getTxn(txn, key, &values)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return values, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/readingpal/readingpal/internal/domain"
)

// PutSession upserts a session record and its book index atomically.
func (s *Store) PutSession(ctx context.Context, sess *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := setTxn(txn, sessionPrefix+sess.ID, sess); err != nil {
			return fmt.Errorf("set session: %w", err)
		}

		idxKey := sessionIndexPrefix(sess.BookTitle) + sess.ID
		if err := txn.Set([]byte(idxKey), []byte(sess.ID)); err != nil {
			return fmt.Errorf("set session index: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sess domain.Session
	err := s.get([]byte(sessionPrefix+id), &sess)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// SessionsForBook returns a book's sessions in visible order: newest
// first, ties broken by id for a stable listing.
func (s *Store) SessionsForBook(ctx context.Context, title string) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := sessionIndexPrefix(title)
	var sessions []*domain.Session

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), prefix)

			var sess domain.Session
			err := getTxn(txn, sessionPrefix+id, &sess)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get session %q: %w", id, err)
			}
			sessions = append(sessions, &sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(sessions, func(a, b *domain.Session) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sessions, nil
}

// AllSessions returns every session record in the store.
func (s *Store) AllSessions(ctx context.Context) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sessions []*domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(sessionPrefix)); it.ValidForPrefix([]byte(sessionPrefix)); it.Next() {
			// Skip index keys nested under the record prefix.
			remainder := strings.TrimPrefix(string(it.Item().Key()), sessionPrefix)
			if strings.HasPrefix(remainder, "idx:") {
				continue
			}

			var sess domain.Session
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalValue(val, &sess)
			}); err != nil {
				return err
			}
			sessions = append(sessions, &sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSessionWithQueue removes a session and enqueues its remote
// deletion in one transaction, so the pending deletion survives a crash
// immediately after the local removal.
func (s *Store) DeleteSessionWithQueue(ctx context.Context, sess *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(sessionPrefix + sess.ID)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		idxKey := sessionIndexPrefix(sess.BookTitle) + sess.ID
		if err := txn.Delete([]byte(idxKey)); err != nil {
			return fmt.Errorf("delete session index: %w", err)
		}
		return enqueueSessionTxn(txn, SessionDeletion{ID: sess.ID, BookTitle: sess.BookTitle})
	})
}

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
)

// SessionDeletion is a pending remote deletion of one session. The
// owning book title is captured at enqueue time, before the local record
// is purged, so the replay can address the remote subcollection.
type SessionDeletion struct {
	ID        string `json:"id"`
	BookTitle string `json:"book_title"`
}

// EnqueueBookDeletion adds a book title to the deletion queue.
// Idempotent: duplicate adds are no-ops.
func (s *Store) EnqueueBookDeletion(ctx context.Context, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return enqueueBookTxn(txn, title)
	})
}

// EnqueueSessionDeletion adds a session to the deletion queue.
// Idempotent: duplicate adds (by id) are no-ops.
func (s *Store) EnqueueSessionDeletion(ctx context.Context, del SessionDeletion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return enqueueSessionTxn(txn, del)
	})
}

// PendingBookDeletions returns the queued book titles.
func (s *Store) PendingBookDeletions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var titles []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		titles, err = getStringsTxn(txn, queueBooksKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read book deletion queue: %w", err)
	}
	return titles, nil
}

// PendingSessionDeletions returns the queued session deletions.
func (s *Store) PendingSessionDeletions(ctx context.Context) ([]SessionDeletion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var dels []SessionDeletion
	err := s.db.View(func(txn *badger.Txn) error {
		err := getTxn(txn, queueSessionsKey, &dels)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read session deletion queue: %w", err)
	}
	return dels, nil
}

// AckBookDeletion removes a single title from the queue after its remote
// deletion was confirmed. Entries whose remote delete failed stay queued
// for the next pass.
func (s *Store) AckBookDeletion(ctx context.Context, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		titles, err := getStringsTxn(txn, queueBooksKey)
		if err != nil {
			return err
		}
		titles = slices.DeleteFunc(titles, func(t string) bool { return t == title })
		return setTxn(txn, queueBooksKey, titles)
	})
}

// AckSessionDeletion removes a single session entry from the queue after
// its remote deletion was confirmed.
func (s *Store) AckSessionDeletion(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		var dels []SessionDeletion
		err := getTxn(txn, queueSessionsKey, &dels)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		dels = slices.DeleteFunc(dels, func(d SessionDeletion) bool { return d.ID == id })
		return setTxn(txn, queueSessionsKey, dels)
	})
}

// enqueueBookTxn appends a title to the book queue within a transaction.
func enqueueBookTxn(txn *badger.Txn, title string) error {
	titles, err := getStringsTxn(txn, queueBooksKey)
	if err != nil {
		return fmt.Errorf("read book deletion queue: %w", err)
	}
	if slices.Contains(titles, title) {
		return nil
	}
	titles = append(titles, title)
	return setTxn(txn, queueBooksKey, titles)
}

// enqueueSessionTxn appends a session entry to the queue within a transaction.
func enqueueSessionTxn(txn *badger.Txn, del SessionDeletion) error {
	var dels []SessionDeletion
	err := getTxn(txn, queueSessionsKey, &dels)
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("read session deletion queue: %w", err)
	}
	if slices.ContainsFunc(dels, func(d SessionDeletion) bool { return d.ID == del.ID }) {
		return nil
	}
	dels = append(dels, del)
	return setTxn(txn, queueSessionsKey, dels)
}

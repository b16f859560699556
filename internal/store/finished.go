package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// SetFinished marks a book finished on the given date, overwriting any
// earlier mark.
func (s *Store) SetFinished(ctx context.Context, title string, date time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set([]byte(finishedPrefix+title), date)
}

// FinishedDate returns when a book was marked finished.
// Returns ErrFinishedMarkMissing for unfinished books.
func (s *Store) FinishedDate(ctx context.Context, title string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	var date time.Time
	err := s.get([]byte(finishedPrefix+title), &date)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, ErrFinishedMarkMissing
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get finished mark: %w", err)
	}
	return date, nil
}

// ClearFinished reopens a book. Idempotent.
func (s *Store) ClearFinished(ctx context.Context, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(finishedPrefix + title))
	})
}

// FinishedMarks returns all finished marks keyed by book title.
func (s *Store) FinishedMarks(ctx context.Context) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	marks := make(map[string]time.Time)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(finishedPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(finishedPrefix)); it.ValidForPrefix([]byte(finishedPrefix)); it.Next() {
			title := strings.TrimPrefix(string(it.Item().Key()), finishedPrefix)
			var date time.Time
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalValue(val, &date)
			}); err != nil {
				return err
			}
			marks[title] = date
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marks, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/readingpal/readingpal/internal/domain"
)

// CreateBook stores a new book and prepends its title to the visible
// order. Returns ErrBookExists if the title is already taken.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := bookPrefix + book.Title
		if _, err := txn.Get([]byte(key)); err == nil {
			return ErrBookExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing book: %w", err)
		}

		if err := setTxn(txn, key, book); err != nil {
			return fmt.Errorf("set book: %w", err)
		}

		order, err := getStringsTxn(txn, bookOrderKey)
		if err != nil {
			return fmt.Errorf("read book order: %w", err)
		}
		order = append([]string{book.Title}, order...)
		return setTxn(txn, bookOrderKey, order)
	})
}

// GetBook retrieves a book by title.
func (s *Store) GetBook(ctx context.Context, title string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var book domain.Book
	err := s.get([]byte(bookPrefix+title), &book)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// PutBook upserts a book record and ensures its title appears in the
// visible order (appended at the end when missing). Used by the sync
// engine when pulling remote-only books.
func (s *Store) PutBook(ctx context.Context, book *domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := setTxn(txn, bookPrefix+book.Title, book); err != nil {
			return fmt.Errorf("set book: %w", err)
		}

		order, err := getStringsTxn(txn, bookOrderKey)
		if err != nil {
			return fmt.Errorf("read book order: %w", err)
		}
		if !slices.Contains(order, book.Title) {
			order = append(order, book.Title)
			return setTxn(txn, bookOrderKey, order)
		}
		return nil
	})
}

// ListBooks returns all books in visible order (most recent first).
// Book records missing an order entry are appended at the end; they can
// appear after a crash between the record write and the order write.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var books []*domain.Book
	err := s.db.View(func(txn *badger.Txn) error {
		order, err := getStringsTxn(txn, bookOrderKey)
		if err != nil {
			return fmt.Errorf("read book order: %w", err)
		}

		seen := make(map[string]bool, len(order))
		for _, title := range order {
			var book domain.Book
			err := getTxn(txn, bookPrefix+title, &book)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // torn write; order entry without a record
			}
			if err != nil {
				return fmt.Errorf("get book %q: %w", title, err)
			}
			books = append(books, &book)
			seen[title] = true
		}

		// Pick up records the order list doesn't know about.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bookPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(bookPrefix)); it.ValidForPrefix([]byte(bookPrefix)); it.Next() {
			var book domain.Book
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalValue(val, &book)
			}); err != nil {
				return err
			}
			if !seen[book.Title] {
				books = append(books, &book)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return books, nil
}

// BookOrder returns the persisted visible order of book titles.
func (s *Store) BookOrder(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var order []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		order, err = getStringsTxn(txn, bookOrderKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read book order: %w", err)
	}
	return order, nil
}

// SetBookOrder persists a new visible order. The caller is responsible
// for validating that the order is a permutation of current titles.
func (s *Store) SetBookOrder(ctx context.Context, titles []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set([]byte(bookOrderKey), titles)
}

// DeleteBookCascade removes a book, its sessions, its finished mark, and
// its order entry, enqueueing every removal for remote deletion. All
// writes commit in one transaction: either the whole cascade lands or
// none of it does. Returns the ids of the removed sessions.
func (s *Store) DeleteBookCascade(ctx context.Context, title string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sessionIDs []string
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(bookPrefix + title)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrBookNotFound
		} else if err != nil {
			return fmt.Errorf("check book: %w", err)
		}

		// Sessions first, collecting ids for the deletion queue.
		prefix := sessionIndexPrefix(title)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)

		var indexKeys []string
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			key := string(it.Item().Key())
			indexKeys = append(indexKeys, key)
			sessionIDs = append(sessionIDs, strings.TrimPrefix(key, prefix))
		}
		it.Close()

		for i, id := range sessionIDs {
			if err := txn.Delete([]byte(sessionPrefix + id)); err != nil {
				return fmt.Errorf("delete session %q: %w", id, err)
			}
			if err := txn.Delete([]byte(indexKeys[i])); err != nil {
				return fmt.Errorf("delete session index: %w", err)
			}
		}

		// Then the book itself plus its satellite records.
		if err := txn.Delete([]byte(bookPrefix + title)); err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		if err := txn.Delete([]byte(finishedPrefix + title)); err != nil {
			return fmt.Errorf("delete finished mark: %w", err)
		}

		order, err := getStringsTxn(txn, bookOrderKey)
		if err != nil {
			return fmt.Errorf("read book order: %w", err)
		}
		order = slices.DeleteFunc(order, func(t string) bool { return t == title })
		if err := setTxn(txn, bookOrderKey, order); err != nil {
			return fmt.Errorf("write book order: %w", err)
		}

		// Queue the remote deletions in the same transaction so a crash
		// cannot separate the local delete from its pending remote delete.
		if err := enqueueBookTxn(txn, title); err != nil {
			return err
		}
		for _, id := range sessionIDs {
			if err := enqueueSessionTxn(txn, SessionDeletion{ID: id, BookTitle: title}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("book removed locally",
			"title", title,
			"cascaded_sessions", len(sessionIDs))
	}
	return sessionIDs, nil
}

// MaxOrderIndex returns the highest order index across all books, or 0
// when the library is empty.
func (s *Store) MaxOrderIndex(ctx context.Context) (int, error) {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return 0, err
	}
	maxIdx := 0
	for _, b := range books {
		if b.OrderIndex > maxIdx {
			maxIdx = b.OrderIndex
		}
	}
	return maxIdx, nil
}

// TouchBook bumps a book's LastUpdated and marks it dirty. Used when a
// child session changes so the book rides along on the next push.
func (s *Store) TouchBook(ctx context.Context, title string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		var book domain.Book
		err := getTxn(txn, bookPrefix+title, &book)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrBookNotFound
		}
		if err != nil {
			return fmt.Errorf("get book: %w", err)
		}

		book.LastUpdated = at
		book.Dirty = true
		return setTxn(txn, bookPrefix+title, &book)
	})
}

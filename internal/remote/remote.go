// Package remote defines the document-store contract the sync engine
// pushes to and pulls from, plus its implementations. Documents are
// addressed per user: a user document holding identity and the library
// order, book documents keyed by title, and session documents nested
// under their book.
package remote

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors. ErrNotFound means the addressed document does not
// exist; ErrUnavailable covers transport failures and server errors,
// after which the affected record stays dirty or queued.
var (
	ErrNotFound    = errors.New("remote: document not found")
	ErrUnavailable = errors.New("remote: store unavailable")
)

// UserDocument is the per-user root document. Library holds book titles
// in visible order. Identity fields live alongside it, so writes must
// merge rather than replace.
type UserDocument struct {
	FullName string   `json:"fullName"`
	Email    string   `json:"email"`
	Library  []string `json:"library"`
}

// BookDocument mirrors one book. LastUpdated is a pointer because
// documents written by older clients may lack it; a missing timestamp
// always loses to local.
type BookDocument struct {
	Title       string     `json:"title"`
	LastUpdated *time.Time `json:"lastUpdated,omitzero"`
	OrderIndex  int        `json:"orderIndex"`
}

// SessionDocument mirrors one reading session.
type SessionDocument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	LastUpdated time.Time `json:"lastUpdated,omitzero"`
	PagesRead   int       `json:"pagesRead"`
	Summary     string    `json:"summary"`
	StartPage   string    `json:"startPage"`
	EndPage     string    `json:"endPage"`
	Duration    string    `json:"duration"`
}

// Store is the remote document store. Writes carry a fields map plus a
// merge flag: merge writes touch only the provided keys, replace writes
// overwrite the whole document. Deletes of absent documents succeed.
//
// Listing sessions of an absent book returns an empty list, not an
// error, so reconciliation can union local and remote sets uniformly.
type Store interface {
	GetUserDocument(ctx context.Context, userID string) (*UserDocument, error)
	SetUserDocument(ctx context.Context, userID string, fields map[string]any, merge bool) error

	GetBookDocument(ctx context.Context, userID, title string) (*BookDocument, error)
	SetBookDocument(ctx context.Context, userID, title string, fields map[string]any, merge bool) error
	DeleteBookDocument(ctx context.Context, userID, title string) error

	ListSessionDocuments(ctx context.Context, userID, title string) ([]*SessionDocument, error)
	SetSessionDocument(ctx context.Context, userID, title, sessionID string, fields map[string]any, merge bool) error
	DeleteSessionDocument(ctx context.Context, userID, title, sessionID string) error
}

// Package domain contains the core business entities and domain logic for the ReadingPal reading log.
package domain

import "time"

// Book represents one book in a user's library.
//
// Title is the stable join key between the local store and the remote
// document store; it must never collide within one user's library.
type Book struct {
	Title       string    `json:"title"`
	OrderIndex  int       `json:"order_index"`
	LastUpdated time.Time `json:"last_updated"`
	Dirty       bool      `json:"dirty"`
}

// Touch records a local mutation. The record becomes dirty until a sync
// pass pushes it remotely.
func (b *Book) Touch() {
	b.LastUpdated = time.Now()
	b.Dirty = true
}

// FinishedMark records that a book was marked finished on a given date.
// Finished state is independent data, never derived from sessions.
type FinishedMark struct {
	Title        string    `json:"title"`
	FinishedDate time.Time `json:"finished_date"`
}

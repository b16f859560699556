package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Session is one recorded reading session of a book.
//
// ID is generated locally at creation and never reused. Summary is the
// only field mutable after creation. LastUpdated is the conflict
// resolution key for last-write-wins merging.
type Session struct {
	ID          string    `json:"id"`
	BookTitle   string    `json:"book_title"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	StartPage   string    `json:"start_page"`
	EndPage     string    `json:"end_page"`
	PagesRead   int       `json:"pages_read"`
	Duration    string    `json:"duration"` // MM:SS
	Summary     string    `json:"summary"`
	LastUpdated time.Time `json:"last_updated"`
	Dirty       bool      `json:"dirty"`
}

// Touch records a local mutation on the session.
func (s *Session) Touch() {
	s.LastUpdated = time.Now()
	s.Dirty = true
}

// PagesRead derives the page count from string-encoded page markers.
// Returns an error for non-numeric input; the result is clamped so it
// is never negative (reading backwards counts as zero pages).
func PagesRead(startPage, endPage string) (int, error) {
	start, err := strconv.Atoi(startPage)
	if err != nil {
		return 0, fmt.Errorf("invalid start page %q", startPage)
	}
	end, err := strconv.Atoi(endPage)
	if err != nil {
		return 0, fmt.Errorf("invalid end page %q", endPage)
	}
	if end < start {
		return 0, nil
	}
	return end - start, nil
}

// NextSessionName generates the default name for an unnamed session.
// Names count up from the current session count, skipping any name
// already in use so "Session N" never collides.
func NextSessionName(existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, name := range existing {
		taken[name] = true
	}

	n := len(existing) + 1
	for {
		candidate := fmt.Sprintf("Session %d", n)
		if !taken[candidate] {
			return candidate
		}
		n++
	}
}

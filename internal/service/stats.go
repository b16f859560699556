package service

import (
	"context"
	"time"

	"github.com/readingpal/readingpal/internal/domain"
	"github.com/readingpal/readingpal/internal/store"
)

// BookStats aggregates a book's session list for display.
type BookStats struct {
	SessionCount  int        `json:"session_count"`
	TotalPages    int        `json:"total_pages"`
	TotalSeconds  int        `json:"total_seconds"`
	TotalDuration string     `json:"total_duration"`
	EarliestDate  *time.Time `json:"earliest_date,omitzero"`
}

// StatsService computes read-side statistics over session lists. All
// computations are pure functions of the session set, so the same
// sessions always produce the same stats.
type StatsService struct {
	store *store.Store
}

// NewStatsService creates a new stats service.
func NewStatsService(store *store.Store) *StatsService {
	return &StatsService{store: store}
}

// Aggregate computes the stats for one book.
func (s *StatsService) Aggregate(ctx context.Context, title string) (*BookStats, error) {
	sessions, err := s.store.SessionsForBook(ctx, title)
	if err != nil {
		return nil, err
	}
	return AggregateSessions(sessions), nil
}

// AggregateSessions folds a session list into its stats. Sessions with
// an unparsable duration count zero seconds; durations are validated at
// creation, but records pulled from remote are taken as-is.
func AggregateSessions(sessions []*domain.Session) *BookStats {
	stats := &BookStats{SessionCount: len(sessions)}

	for _, sess := range sessions {
		stats.TotalPages += sess.PagesRead

		if secs, err := domain.ParseSessionDuration(sess.Duration); err == nil {
			stats.TotalSeconds += secs
		}

		if stats.EarliestDate == nil || sess.Date.Before(*stats.EarliestDate) {
			d := sess.Date
			stats.EarliestDate = &d
		}
	}

	stats.TotalDuration = domain.FormatTotalDuration(stats.TotalSeconds)
	return stats
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSessionDuration parses a "MM:SS" encoded duration into seconds.
// Minutes may exceed 59 ("65:00" is 3900 seconds).
func ParseSessionDuration(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid duration %q: want MM:SS", s)
	}

	minutes, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("invalid duration %q: bad minutes", s)
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid duration %q: bad seconds", s)
	}

	return minutes*60 + seconds, nil
}

// FormatTotalDuration renders a total number of seconds for display:
// "H hours, M minutes", or just "M minutes" when under an hour.
// Leftover seconds are truncated, matching how totals were always shown.
func FormatTotalDuration(totalSeconds int) string {
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	if hours == 0 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%d hours, %d minutes", hours, minutes)
}

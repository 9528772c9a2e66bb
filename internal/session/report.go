package session

import (
	"math"
	"slices"
	"time"
)

// Thresholds used by BuildReport.
const (
	// ActiveWindow is how recent the last query must be for a session to
	// count as active.
	ActiveWindow = 15 * time.Minute

	// RecentWindow limits the report to sessions started this recently.
	RecentWindow = time.Hour
)

// ReportEntry describes one recent session.
type ReportEntry struct {
	ID                string  `json:"session_id"`
	MinutesSinceStart float64 `json:"elapsed_from_start_min"`
	MinutesIdle       float64 `json:"elapsed_from_last_query_min"`
	Active            bool    `json:"active"`
}

// Report summarizes the sessions of a Store at a point in time.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Total       int           `json:"total"`
	Active      int           `json:"active"`
	Recent      []ReportEntry `json:"recent"`
}

// BuildReport lists sessions started within RecentWindow of now, oldest
// first. Minutes are rounded to two decimals.
func BuildReport(sessions []Session, now time.Time) Report {
	r := Report{GeneratedAt: now, Total: len(sessions), Recent: []ReportEntry{}}

	sessions = slices.Clone(sessions)
	slices.SortFunc(sessions, func(a, b Session) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	for _, sess := range sessions {
		sinceStart := now.Sub(sess.StartedAt)
		idle := now.Sub(sess.LastQueryAt)
		active := idle < ActiveWindow
		if active {
			r.Active++
		}
		if sinceStart >= RecentWindow {
			continue
		}
		r.Recent = append(r.Recent, ReportEntry{
			ID:                sess.ID,
			MinutesSinceStart: minutes(sinceStart),
			MinutesIdle:       minutes(idle),
			Active:            active,
		})
	}
	return r
}

func minutes(d time.Duration) float64 {
	return math.Round(d.Minutes()*100) / 100
}

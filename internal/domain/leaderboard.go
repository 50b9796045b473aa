package domain

import (
	"sort"
	"time"
)

// RowStatus describes how a report row was resolved
type RowStatus string

const (
	RowOK         RowStatus = "ok"
	RowFailed     RowStatus = "failed"
	RowNoBaseline RowStatus = "no_baseline"
)

// Row is one roster entry in a stats report
type Row struct {
	Username string    `json:"username"`
	Status   RowStatus `json:"status"`
	// Current holds absolute values, or the delta when the report has a Since date
	Current Profile `json:"current"`
	Error   string  `json:"error,omitempty"`
}

// Report is the aggregated stats for the whole roster
type Report struct {
	RunID       string    `json:"run_id"`
	Since       *Date     `json:"since,omitempty"`
	Rows        []Row     `json:"rows"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Failed returns the number of rows that could not be resolved
func (r Report) Failed() int {
	n := 0
	for _, row := range r.Rows {
		if row.Status != RowOK {
			n++
		}
	}
	return n
}

// SortRows orders successful rows by score descending, then resolved-but-
// unavailable rows, then failures; ties are broken by username.
func (r *Report) SortRows() {
	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if ra, rb := statusOrder(a.Status), statusOrder(b.Status); ra != rb {
			return ra < rb
		}
		if a.Status == RowOK && a.Current.Score != b.Current.Score {
			return a.Current.Score > b.Current.Score
		}
		return a.Username < b.Username
	})
}

func statusOrder(s RowStatus) int {
	switch s {
	case RowOK:
		return 0
	case RowNoBaseline:
		return 1
	default:
		return 2
	}
}

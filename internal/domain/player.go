package domain

import "time"

// Rank is an overall Codewars rank such as "4 kyu"
type Rank struct {
	// Value is negative for kyu and positive for dan
	Value int    `json:"rank"`
	Name  string `json:"name"`
}

// Profile is a snapshot of one Codewars account as of FetchedAt
type Profile struct {
	Username            string    `json:"username"`
	Name                string    `json:"name,omitempty"`
	Clan                string    `json:"clan,omitempty"`
	Honor               int64     `json:"honor"`
	Score               int64     `json:"score"`
	Rank                Rank      `json:"rank"`
	Completed           int64     `json:"completed"`
	LeaderboardPosition int64     `json:"leaderboard_position,omitempty"`
	FetchedAt           time.Time `json:"fetched_at"`
}

// Delta returns the numeric difference p - base. Identity fields come from p.
func (p Profile) Delta(base Profile) Profile {
	d := p
	d.Honor = p.Honor - base.Honor
	d.Score = p.Score - base.Score
	d.Completed = p.Completed - base.Completed
	d.LeaderboardPosition = p.LeaderboardPosition - base.LeaderboardPosition
	return d
}

// SnapshotEvent is published whenever a profile is fetched
type SnapshotEvent struct {
	RunID     string    `json:"run_id"`
	Profile   Profile   `json:"profile"`
	Timestamp time.Time `json:"timestamp"`
}

package domain

import (
	"encoding/json"
	"fmt"
)

// Contribution is one user's total toward a part within a goal cycle.
type Contribution struct {
	UserID string `json:"user_id"`
	User   string `json:"user"`
	Total  int    `json:"total"`
}

// PartSnapshot freezes a part's state at the moment its project completed.
type PartSnapshot struct {
	PartID        uint           `json:"part_id"`
	PartName      string         `json:"part_name"`
	Goal          int            `json:"goal"`
	Progress      int            `json:"progress"`
	Contributions []Contribution `json:"contributions"`
}

// Snapshot is the archived contribution record of a completed project.
type Snapshot []PartSnapshot

// Encode returns the JSON form stored in CompletedGoal.UserContributions.
func (s Snapshot) Encode() (string, error) {
	if s == nil {
		s = Snapshot{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// Snapshot decodes the archived contributions.
func (c CompletedGoal) Snapshot() (Snapshot, error) {
	var s Snapshot
	if c.UserContributions == "" {
		return Snapshot{}, nil
	}
	if err := json.Unmarshal([]byte(c.UserContributions), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", c.ID, err)
	}
	return s, nil
}

// TotalsByUser sums every part's contributions per user id.
func (s Snapshot) TotalsByUser() map[string]int {
	out := make(map[string]int)
	for _, p := range s {
		for _, c := range p.Contributions {
			out[c.UserID] += c.Total
		}
	}
	return out
}

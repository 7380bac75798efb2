package model

import "sort"

type ScoreboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Solved      int    `json:"solved"`
}

// Scoreboard ranks participants by solved count, highest first. Ties keep
// the players' join order and share a rank (1, 1, 3). Users with progress
// but no player entry are appended after the players, by user id.
func (g *Game) Scoreboard() []ScoreboardEntry {
	entries := make([]ScoreboardEntry, 0, len(g.Players))
	seen := make(map[string]bool, len(g.Players))
	for _, p := range g.Players {
		if seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		name := p.DisplayName
		if pr, ok := g.Progress[p.UserID]; ok && name == "" {
			name = pr.DisplayName
		}
		entries = append(entries, ScoreboardEntry{UserID: p.UserID, DisplayName: name, Solved: g.SolvedCount(p.UserID)})
	}

	var extra []string
	for uid := range g.Progress {
		if !seen[uid] {
			extra = append(extra, uid)
		}
	}
	sort.Strings(extra)
	for _, uid := range extra {
		entries = append(entries, ScoreboardEntry{UserID: uid, DisplayName: g.Progress[uid].DisplayName, Solved: g.SolvedCount(uid)})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Solved > entries[j].Solved })
	for i := range entries {
		if i > 0 && entries[i].Solved == entries[i-1].Solved {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}

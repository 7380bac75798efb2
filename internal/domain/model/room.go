package model

import (
	"sort"
	"strings"
	"time"
)

type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "WAITING"
	RoomStatusRunning  RoomStatus = "RUNNING"
	RoomStatusFinished RoomStatus = "FINISHED"
)

const (
	RoomCodeLength    = 8
	MinPlayers        = 1
	MaxPlayers        = 4
	DefaultMaxPlayers = 4
	MaxTaskCount      = 20
)

type RoomMember struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type RoomSettings struct {
	Language         Language     `json:"language"`
	Difficulty       Difficulty   `json:"difficulty"`
	DurationMinutes  int          `json:"durationMinutes"` // 0 = unlimited
	TaskCount        int          `json:"taskCount"`
	TaskDifficulties []Difficulty `json:"taskDifficulties,omitempty"`
	MaxPlayers       int          `json:"maxPlayers"`
}

type Room struct {
	Code           string                `json:"code"`
	Name           string                `json:"name"`
	OwnerUserID    string                `json:"ownerUserId"`
	IsPrivate      bool                  `json:"isPrivate"`
	PasswordSecret string                `json:"passwordSecret,omitempty"` // Never leaves the server, see Redacted
	Settings       RoomSettings          `json:"settings"`
	Members        map[string]RoomMember `json:"members,omitempty"`
	PlayerCount    int                   `json:"playerCount"`
	Status         RoomStatus            `json:"status"`
	ActiveGameID   string                `json:"activeGameId,omitempty"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
	StartedAt      *time.Time            `json:"startedAt,omitempty"`
}

// CanonicalRoomCode upper-cases and trims a user supplied room code.
func CanonicalRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Room) HasMember(userID string) bool {
	if r == nil || r.Members == nil {
		return false
	}
	_, ok := r.Members[userID]
	return ok
}

// MembersInJoinOrder returns members sorted by JoinedAt, user id breaking ties.
func (r *Room) MembersInJoinOrder() []RoomMember {
	out := make([]RoomMember, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Members != nil {
		cp.Members = make(map[string]RoomMember, len(r.Members))
		for k, v := range r.Members {
			cp.Members[k] = v
		}
	}
	if r.Settings.TaskDifficulties != nil {
		cp.Settings.TaskDifficulties = append([]Difficulty(nil), r.Settings.TaskDifficulties...)
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}

// Redacted strips the password secret. When the viewer is not a member the
// member map is hidden as well; PlayerCount stays accurate either way.
func (r *Room) Redacted(viewerUserID string) *Room {
	cp := r.Clone()
	if cp == nil {
		return nil
	}
	cp.PasswordSecret = ""
	cp.PlayerCount = len(r.Members)
	if viewerUserID == "" || !r.HasMember(viewerUserID) {
		cp.Members = nil
	}
	return cp
}

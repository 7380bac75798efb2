package model

import (
	"time"
)

type ProblemStatus string

const (
	StatusDraft     ProblemStatus = "DRAFT"
	StatusPublished ProblemStatus = "PUBLISHED"
)

type Problem struct {
	ID           string        `json:"id"`
	Slug         string        `json:"slug"`
	Title        string        `json:"title"`
	Difficulty   Difficulty    `json:"difficulty"`
	Status       ProblemStatus `json:"status"`
	Statement    string        `json:"statement"`
	InputFormat  string        `json:"inputFormat,omitempty"`
	OutputFormat string        `json:"outputFormat,omitempty"`
	Samples      []Sample      `json:"samples,omitempty"` // Public test cases
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type Sample struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Snapshot freezes the parts of a catalog problem a game needs.
func (p *Problem) Snapshot() GameProblem {
	return GameProblem{
		ID:           p.ID,
		Title:        p.Title,
		Difficulty:   p.Difficulty,
		Statement:    p.Statement,
		InputFormat:  p.InputFormat,
		OutputFormat: p.OutputFormat,
		Samples:      append([]Sample(nil), p.Samples...),
	}
}
